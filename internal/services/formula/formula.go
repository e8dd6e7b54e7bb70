// Package formula implements the pure KPI formulas for officer metrics.
//
// Every function here is stateless and performs no I/O. Division by zero
// returns 0 by business rule: an officer with no disbursements has a FIMR
// of 0, not an error. Ratio-typed raw facts are clamped to [0,1] before use.
package formula

import (
	"math"

	"loan-metrics-engine/internal/models"
)

// Version pins the canonical formula set. Snapshots record it so reports
// computed under older weight sets remain reproducible.
const Version = "v2"

// SafeDiv divides num by den, returning 0 when the denominator is 0.
func SafeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Clamp limits v to the [lo, hi] range.
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 limits a ratio-typed value to [0,1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// FIMR is the first-installment miss rate: misses over disbursed loans.
func FIMR(firstInstallmentMisses, disbursedCount int) float64 {
	return SafeDiv(float64(firstInstallmentMisses), float64(disbursedCount))
}

// Slippage is the D0-6 slippage ratio: DPD 1-6 balance over amount due
// in the last 7 days.
func Slippage(dpd1to6Balance, amountDue7Days float64) float64 {
	return SafeDiv(dpd1to6Balance, amountDue7Days)
}

// Roll is the share of the previous DPD 1-6 balance that worsened into
// the DPD 7-30 bucket.
func Roll(movedDpd7to30, previousDpd1to6Balance float64) float64 {
	return SafeDiv(movedDpd7to30, previousDpd1to6Balance)
}

// FRR is the fees realization rate: fees collected over fees due.
func FRR(feesCollected, feesDue float64) float64 {
	return SafeDiv(feesCollected, feesDue)
}

// AYR is the adjusted yield ratio: collected revenue over the PAR15
// exposure at mid-month. This is the canonical form; the historical
// (interest+fees)/(1+overdue15d/portfolio) variant is not used.
func AYR(interestCollected, feesCollected, par15MidMonth float64) float64 {
	return SafeDiv(interestCollected+feesCollected, par15MidMonth)
}

// RepaymentDelayRate measures repayment recency against loan age:
//
//	(1 - (avgDaysSinceLastRepayment/avgLoanAgeDays)/0.25) * 100
//
// Returns 0 when avgLoanAgeDays is 0. Negative results are allowed and
// indicate repayments lagging far behind loan age.
func RepaymentDelayRate(avgDaysSinceLastRepayment, avgLoanAgeDays float64) float64 {
	if avgLoanAgeDays == 0 {
		return 0
	}
	ratio := avgDaysSinceLastRepayment / avgLoanAgeDays
	return (1.0 - ratio/0.25) * 100
}

// DQI is the delinquency quality index on a 0-100 scale:
//
//	round(100 * (0.50*riskScoreNorm + 0.35*onTimeRate + 0.15*(1-FIMR)))
//
// Ratio inputs are clamped to [0,1]; the result is clamped to [0,100].
func DQI(riskScoreNorm, onTimeRate, fimr float64) int {
	dqi := 0.50*Clamp01(riskScoreNorm) +
		0.35*Clamp01(onTimeRate) +
		0.15*Clamp01(1.0-fimr)

	score := int(math.Round(dqi * 100))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// RiskScore is the weighted-penalty officer risk score on a 0-100 scale:
//
//	100 - 20*PORR - 15*FIMR - 10*Roll
//	    - 40*(1 - clamp(RepaymentDelayRate,0,100)/100)
//	    - 15*(1 - min(AYR,1.0))
//
// floored at 0 and rounded to the nearest integer.
func RiskScore(porr, fimr, roll, repaymentDelayRate, ayr float64) int {
	score := 100.0
	score -= 20 * Clamp01(porr)
	score -= 15 * fimr
	score -= 10 * roll
	score -= 40 * (1.0 - Clamp(repaymentDelayRate, 0, 100)/100.0)
	score -= 15 * (1.0 - math.Min(ayr, 1.0))

	if score < 0 {
		score = 0
	}
	return int(math.Round(score))
}

// Calculate derives the full metric set for one officer from raw facts.
// The result is recomputed wholesale each cycle and depends on nothing
// but the input, so identical facts always yield identical metrics.
func Calculate(raw models.RawOfficerFacts) models.CalculatedMetrics {
	calc := models.CalculatedMetrics{
		FIMR:               FIMR(raw.FirstInstallmentMisses, raw.DisbursedCount),
		Slippage:           Slippage(raw.Dpd1to6Balance, raw.AmountDue7Days),
		Roll:               Roll(raw.MovedDpd7to30, raw.PreviousDpd1to6Balance),
		FRR:                FRR(raw.FeesCollected, raw.FeesDue),
		AYR:                AYR(raw.InterestCollected, raw.FeesCollected, raw.Par15MidMonth),
		RepaymentDelayRate: RepaymentDelayRate(raw.AvgDaysSinceLastRepayment, raw.AvgLoanAgeDays),
		YieldTotal:         raw.InterestCollected + raw.FeesCollected,
		Overdue15dVolume:   raw.Overdue15dVolume,
		PORR:               Clamp01(raw.PORR),
		OnTimeRate:         Clamp01(raw.OnTimeRate),
		RiskScoreNorm:      Clamp01(raw.RiskScoreNorm),
	}

	calc.DQI = DQI(calc.RiskScoreNorm, calc.OnTimeRate, calc.FIMR)
	calc.RiskScore = RiskScore(calc.PORR, calc.FIMR, calc.Roll, calc.RepaymentDelayRate, calc.AYR)

	return calc
}

// Round rounds a float to n decimal places.
func Round(val float64, places int) float64 {
	multiplier := math.Pow(10, float64(places))
	return math.Round(val*multiplier) / multiplier
}
