// Package formula implements the pure KPI formulas for officer metrics.
package formula

import (
	"loan-metrics-engine/internal/models"
)

// Band boundaries are inclusive on the better side: FIMR of exactly 3%
// is still Green, 3.0001% is Watch. Downstream filters rely on these
// exact edges, so comparisons here must not be reordered.

var (
	bandGreen = models.Band{Color: models.BandGreen, Label: "Green"}
	bandWatch = models.Band{Color: models.BandWatch, Label: "Watch"}
	bandAmber = models.Band{Color: models.BandAmber, Label: "Amber"}
	bandFlag  = models.Band{Color: models.BandFlag, Label: "Flag"}
	bandRed   = models.Band{Color: models.BandRed, Label: "Red"}
)

// FIMRBand bands FIMR: <=3% Green, 3-6% Watch, >6% Flag.
func FIMRBand(fimr float64) models.Band {
	switch {
	case fimr <= 0.03:
		return bandGreen
	case fimr <= 0.06:
		return bandWatch
	default:
		return bandFlag
	}
}

// SlippageBand bands D0-6 slippage: <=5% Green, 5-8% Watch, >8% Flag.
func SlippageBand(slippage float64) models.Band {
	switch {
	case slippage <= 0.05:
		return bandGreen
	case slippage <= 0.08:
		return bandWatch
	default:
		return bandFlag
	}
}

// RollBand bands the 0-6 to 7-30 roll rate: <=25% Green, 25-35% Watch,
// >35% Flag.
func RollBand(roll float64) models.Band {
	switch {
	case roll <= 0.25:
		return bandGreen
	case roll <= 0.35:
		return bandWatch
	default:
		return bandFlag
	}
}

// AYRBand bands the adjusted yield ratio: >=0.50 Green, 0.30-0.49 Watch,
// <0.30 Red. Higher is better, so the inclusive edge sits on the lower
// bound of each tier.
func AYRBand(ayr float64) models.Band {
	switch {
	case ayr >= 0.50:
		return bandGreen
	case ayr >= 0.30:
		return bandWatch
	default:
		return bandRed
	}
}

// DQIBand bands the delinquency quality index: >=75 Green, 65-74 Watch,
// <65 Red.
func DQIBand(dqi int) models.Band {
	switch {
	case dqi >= 75:
		return bandGreen
	case dqi >= 65:
		return bandWatch
	default:
		return bandRed
	}
}

// RiskScoreBand bands the officer risk score: >=80 Green, 60-79 Watch,
// 40-59 Amber, <40 Red.
func RiskScoreBand(riskScore int) models.Band {
	switch {
	case riskScore >= 80:
		return bandGreen
	case riskScore >= 60:
		return bandWatch
	case riskScore >= 40:
		return bandAmber
	default:
		return bandRed
	}
}

// delayTierWidth splits the 0-100 repayment delay range into 9 equal
// tiers of ~11.11 points each.
const delayTierWidth = 100.0 / 9.0

// delayTiers runs best to worst; tier i starts at (8-i)*delayTierWidth.
var delayTiers = []models.Band{
	{Color: models.BandGreen, Label: "Healthy1"},
	{Color: models.BandGreen, Label: "Healthy2"},
	{Color: models.BandGreen, Label: "Healthy3"},
	{Color: models.BandAmber, Label: "Moderate1"},
	{Color: models.BandAmber, Label: "Moderate2"},
	{Color: models.BandAmber, Label: "Moderate3"},
	{Color: models.BandRed, Label: "Risky1"},
	{Color: models.BandRed, Label: "Risky2"},
	{Color: models.BandRed, Label: "Risky3"},
}

// RepaymentDelayBand maps a repayment delay rate onto the 9-tier scale,
// Healthy1 (>=88.89%) down to Risky3 (<11.11%). Rates outside [0,100]
// land in the outermost tiers.
func RepaymentDelayBand(rate float64) models.Band {
	for i := 0; i < 8; i++ {
		if rate >= float64(8-i)*delayTierWidth {
			return delayTiers[i]
		}
	}
	return delayTiers[8]
}
