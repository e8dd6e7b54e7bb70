// Package classify implements the loan-level categorical rules: activity,
// roll-off risk, delinquency severity, missed-repayment-today and the
// provisional NPL approximation.
//
// Each taxonomy is independent and classification is exhaustive: a loan
// always gets exactly one tag per taxonomy, with no fall-through to an
// unknown state. All predicates are stateless and perform no I/O.
package classify

import (
	"time"

	"loan-metrics-engine/internal/models"
	"loan-metrics-engine/internal/services/formula"
)

// Exact thresholds shared with downstream filters and exports. These are
// contractual values, not tunables.
const (
	// ActiveBalanceFloor is the outstanding balance above which a loan can
	// count as active.
	ActiveBalanceFloor = 2000.0

	// ActiveRecencyDays is the repayment-recency bound for active loans:
	// strictly fewer days since the last repayment.
	ActiveRecencyDays = 6

	// RollOffAgeDays splits early from late roll-off risk.
	RollOffAgeDays = 7

	// RollOffDPD is the DPD above which a slipping loan is roll-off risk.
	RollOffDPD = 4

	// AtRiskDPD, CriticalDPD and Overdue15DPD are the severity thresholds.
	// Overdue15DPD intentionally differs from AtRiskDPD by one day; the
	// two drive different reports and are not duplicates.
	AtRiskDPD    = 14
	CriticalDPD  = 21
	Overdue15DPD = 15

	// RiskyDelayRate is the repayment delay rate below which an active
	// loan is tagged as risky delay (strict comparison).
	RiskyDelayRate = 60.0
)

// Activity classifies a loan as active or inactive. A loan is active only
// when it still carries a meaningful balance and has been repaid recently;
// everything else is inactive regardless of recency.
func Activity(loan *models.LoanFact) models.ActivityTag {
	if loan.OutstandingBalance > ActiveBalanceFloor && loan.DaysSinceLastRepayment < ActiveRecencyDays {
		return models.ActivityActive
	}
	return models.ActivityInactive
}

// RollOff classifies roll-off risk by loan age at slippage: loans under
// RollOffAgeDays old with DPD above RollOffDPD are early roll-off, older
// ones late roll-off.
func RollOff(loan *models.LoanFact, today time.Time) models.RollOffTag {
	if loan.CurrentDPD <= RollOffDPD {
		return models.RollOffNone
	}
	if loan.AgeDays(today) < RollOffAgeDays {
		return models.RollOffEarly
	}
	return models.RollOffLate
}

// Severity buckets a loan by delinquency severity. A loan carries exactly
// one severity tag; Critical subsumes AtRisk.
func Severity(loan *models.LoanFact, today time.Time) models.SeverityTag {
	switch {
	case loan.CurrentDPD > CriticalDPD:
		return models.SeverityCritical
	case loan.CurrentDPD > AtRiskDPD:
		return models.SeverityAtRisk
	case pastMaturity(loan, today):
		return models.SeverityPastMaturity
	default:
		return models.SeverityPerforming
	}
}

func pastMaturity(loan *models.LoanFact, today time.Time) bool {
	return loan.Status == models.LoanStatusOpen &&
		loan.MaturityDate != nil &&
		today.After(*loan.MaturityDate)
}

// Overdue15d reports whether the loan is in the 15+ DPD exposure bucket.
func Overdue15d(loan *models.LoanFact) bool {
	return loan.CurrentDPD > Overdue15DPD
}

// MissedToday reports whether the loan had an installment scheduled today
// with no repayment received. HasRepaymentToday already excludes reversed
// repayments upstream.
func MissedToday(loan *models.LoanFact) bool {
	return loan.ScheduledDueToday && !loan.HasRepaymentToday
}

// DelayRate computes the per-loan repayment delay rate from recency and age.
func DelayRate(loan *models.LoanFact, today time.Time) float64 {
	return formula.RepaymentDelayRate(
		float64(loan.DaysSinceLastRepayment),
		float64(loan.AgeDays(today)),
	)
}

// RiskyDelay reports whether an open loan with a meaningful balance has a
// repayment delay rate below the risky threshold (strictly below).
func RiskyDelay(loan *models.LoanFact, delayRate float64) bool {
	return loan.Status == models.LoanStatusOpen &&
		loan.OutstandingBalance > ActiveBalanceFloor &&
		delayRate < RiskyDelayRate
}

// Loan classifies a single loan across every taxonomy.
func Loan(loan *models.LoanFact, today time.Time) models.LoanClassification {
	delayRate := DelayRate(loan, today)

	return models.LoanClassification{
		LoanID:      loan.LoanID,
		Activity:    Activity(loan),
		RollOff:     RollOff(loan, today),
		Severity:    Severity(loan, today),
		Overdue15d:  Overdue15d(loan),
		MissedToday: MissedToday(loan),
		RiskyDelay:  RiskyDelay(loan, delayRate),
		DelayRate:   delayRate,
	}
}

// Summarize classifies every loan and folds the tags into scope-level
// counts and volumes. Loans with missing facts still classify (missing
// numbers arrive as zero) so no loan is silently dropped from the rollup.
func Summarize(loans []models.LoanFact, today time.Time) models.ClassificationSummary {
	var summary models.ClassificationSummary

	for i := range loans {
		loan := &loans[i]
		c := Loan(loan, today)

		switch c.Activity {
		case models.ActivityActive:
			summary.ActiveCount++
			summary.ActiveVolume += loan.OutstandingBalance
		case models.ActivityInactive:
			summary.InactiveCount++
			summary.InactiveVolume += loan.OutstandingBalance
		}

		switch c.RollOff {
		case models.RollOffEarly:
			summary.EarlyRollOffCount++
			summary.EarlyRollOffVolume += loan.OutstandingBalance
		case models.RollOffLate:
			summary.LateRollOffCount++
			summary.LateRollOffVolume += loan.OutstandingBalance
		case models.RollOffNone:
		}

		// AtRisk counts everything past the at-risk threshold, so critical
		// loans contribute to both counters.
		if loan.CurrentDPD > AtRiskDPD {
			summary.AtRiskCount++
		}
		if c.Severity == models.SeverityCritical {
			summary.CriticalCount++
		}
		if c.Overdue15d {
			summary.Overdue15dCount++
		}
		if c.MissedToday {
			summary.MissedTodayCount++
		}
		if c.RiskyDelay {
			summary.RiskyDelayCount++
		}

		if loan.CurrentDPD > 0 {
			summary.TotalAmountInDPD += loan.OutstandingBalance
		}
		summary.TotalPortfolioVolume += loan.OutstandingBalance
	}

	// Provisional by design: there is no canonical NPL definition upstream,
	// so this ratio is published as an approximation and nothing else may
	// depend on it.
	summary.NPLApproximation = formula.SafeDiv(summary.TotalAmountInDPD, summary.TotalPortfolioVolume)

	return summary
}
