// Package rollup combines officer-level calculated metrics into branch,
// region, vertical-lead and portfolio scope metrics.
//
// Ratio KPIs are volume-weighted, not plain means: an officer carrying a
// large book moves the scope score more than one with a small book.
// Volumes and counts are summed, MaxDPD is max-propagated.
package rollup

import (
	"loan-metrics-engine/internal/models"
	"loan-metrics-engine/internal/services/formula"
)

// Aggregate rolls a set of officer metrics up into one scope result.
//
// An empty officer set returns an explicit HasData=false result rather
// than synthetic zeros; a non-empty set with zero total volume likewise
// reports HasData=false so a volume-less scope can't read as a perfect
// score. Parent portfolio volume is the sum of child volumes by
// construction.
func Aggregate(officers []models.OfficerMetrics) models.RollupMetrics {
	if len(officers) == 0 {
		return models.RollupMetrics{}
	}

	var r models.RollupMetrics
	var totalVolume float64

	// Volume-weighted numerators, divided by total volume at the end.
	var fimr, slippage, roll, frr, ayr, dqi, riskScore, delayRate float64

	for i := range officers {
		o := &officers[i]
		volume := o.Raw.TotalPortfolioVolume

		fimr += o.Calc.FIMR * volume
		slippage += o.Calc.Slippage * volume
		roll += o.Calc.Roll * volume
		frr += o.Calc.FRR * volume
		ayr += o.Calc.AYR * volume
		dqi += float64(o.Calc.DQI) * volume
		riskScore += float64(o.Calc.RiskScore) * volume
		delayRate += o.Calc.RepaymentDelayRate * volume

		r.YieldTotal += o.Calc.YieldTotal
		r.Overdue15dVolume += o.Calc.Overdue15dVolume
		r.LoanCount += o.Raw.LoanCount

		if o.Raw.MaxDPD > r.MaxDPD {
			r.MaxDPD = o.Raw.MaxDPD
		}

		totalVolume += volume
	}

	r.OfficerCount = len(officers)
	r.PortfolioVolume = totalVolume
	r.HasData = totalVolume > 0

	r.FIMR = formula.SafeDiv(fimr, totalVolume)
	r.Slippage = formula.SafeDiv(slippage, totalVolume)
	r.Roll = formula.SafeDiv(roll, totalVolume)
	r.FRR = formula.SafeDiv(frr, totalVolume)
	r.AYR = formula.SafeDiv(ayr, totalVolume)
	r.DQI = formula.SafeDiv(dqi, totalVolume)
	r.RiskScore = formula.SafeDiv(riskScore, totalVolume)
	r.RepaymentDelayRate = formula.SafeDiv(delayRate, totalVolume)

	return r
}

// FilterScope returns the officers belonging to the given scope-key.
func FilterScope(officers []models.OfficerMetrics, scope models.ScopeKey) []models.OfficerMetrics {
	filtered := make([]models.OfficerMetrics, 0, len(officers))
	for i := range officers {
		if scope.Matches(officers[i].Info) {
			filtered = append(filtered, officers[i])
		}
	}
	return filtered
}

// Breakdown aggregates officers into one rollup per distinct scope name at
// the given level, e.g. one RollupMetrics per branch. Officers without a
// value for the level (such as a missing vertical lead) are skipped.
func Breakdown(officers []models.OfficerMetrics, level models.ScopeLevel) map[string]models.RollupMetrics {
	groups := make(map[string][]models.OfficerMetrics)
	for i := range officers {
		name := scopeName(officers[i].Info, level)
		if name == "" {
			continue
		}
		groups[name] = append(groups[name], officers[i])
	}

	result := make(map[string]models.RollupMetrics, len(groups))
	for name, group := range groups {
		result[name] = Aggregate(group)
	}
	return result
}

func scopeName(info models.OfficerInfo, level models.ScopeLevel) string {
	switch level {
	case models.ScopeBranch:
		return info.Branch
	case models.ScopeRegion:
		return info.Region
	case models.ScopeVerticalLead:
		return info.VerticalLeadEmail
	case models.ScopeOfficer:
		return info.OfficerID
	}
	return ""
}
