package rollup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-metrics-engine/internal/models"
	"loan-metrics-engine/internal/services/formula"
	"loan-metrics-engine/internal/services/rollup"
)

func officer(id, branch, region string, volume float64, calc models.CalculatedMetrics) models.OfficerMetrics {
	return models.OfficerMetrics{
		Info: models.OfficerInfo{
			OfficerID: id,
			Name:      "Officer " + id,
			Branch:    branch,
			Region:    region,
		},
		Raw: models.RawOfficerFacts{
			TotalPortfolioVolume: volume,
		},
		Calc: calc,
	}
}

func TestAggregate_EmptySet(t *testing.T) {
	r := rollup.Aggregate(nil)

	assert.False(t, r.HasData)
	assert.Equal(t, 0, r.OfficerCount)
	assert.Equal(t, 0.0, r.PortfolioVolume)
	assert.Equal(t, 0.0, r.DQI)
}

func TestAggregate_ZeroVolumeScope(t *testing.T) {
	// Officers exist but carry no book; a perfect-looking score here would
	// be a lie, so the scope reports no data.
	officers := []models.OfficerMetrics{
		officer("A", "Kampala Central", "Central", 0, models.CalculatedMetrics{DQI: 100, RiskScore: 100}),
		officer("B", "Kampala Central", "Central", 0, models.CalculatedMetrics{DQI: 95, RiskScore: 90}),
	}

	r := rollup.Aggregate(officers)

	assert.False(t, r.HasData)
	assert.Equal(t, 2, r.OfficerCount)
	assert.Equal(t, 0.0, r.DQI)
	assert.Equal(t, 0.0, r.RiskScore)
}

func TestAggregate_VolumeWeighted(t *testing.T) {
	officers := []models.OfficerMetrics{
		officer("A", "Kampala Central", "Central", 100, models.CalculatedMetrics{
			DQI:  80,
			FIMR: 0.02,
		}),
		officer("B", "Kampala Central", "Central", 300, models.CalculatedMetrics{
			DQI:  60,
			FIMR: 0.06,
		}),
	}

	r := rollup.Aggregate(officers)

	require.True(t, r.HasData)
	// (80*100 + 60*300) / 400
	assert.InDelta(t, 65, r.DQI, 1e-12)
	// (0.02*100 + 0.06*300) / 400
	assert.InDelta(t, 0.05, r.FIMR, 1e-12)
	assert.Equal(t, 400.0, r.PortfolioVolume)
}

func TestAggregate_SumsAndMax(t *testing.T) {
	a := officer("A", "Gulu", "North", 1000, models.CalculatedMetrics{
		YieldTotal:       500,
		Overdue15dVolume: 120,
	})
	a.Raw.LoanCount = 40
	a.Raw.MaxDPD = 12

	b := officer("B", "Gulu", "North", 2000, models.CalculatedMetrics{
		YieldTotal:       700,
		Overdue15dVolume: 80,
	})
	b.Raw.LoanCount = 55
	b.Raw.MaxDPD = 31

	r := rollup.Aggregate([]models.OfficerMetrics{a, b})

	assert.Equal(t, 1200.0, r.YieldTotal)
	assert.Equal(t, 200.0, r.Overdue15dVolume)
	assert.Equal(t, 95, r.LoanCount)
	assert.Equal(t, 31, r.MaxDPD)
	assert.Equal(t, 2, r.OfficerCount)
}

func TestAggregate_VolumeConservation(t *testing.T) {
	officers := []models.OfficerMetrics{
		officer("A", "Kampala Central", "Central", 1000, models.CalculatedMetrics{DQI: 80}),
		officer("B", "Kampala Central", "Central", 2500, models.CalculatedMetrics{DQI: 70}),
		officer("C", "Jinja", "East", 1500, models.CalculatedMetrics{DQI: 90}),
	}

	parent := rollup.Aggregate(officers)
	branches := rollup.Breakdown(officers, models.ScopeBranch)

	var childVolume float64
	for _, b := range branches {
		childVolume += b.PortfolioVolume
	}
	assert.Equal(t, parent.PortfolioVolume, childVolume)
	assert.Equal(t, 4000.0, parent.PortfolioVolume)
}

func TestFilterScope(t *testing.T) {
	officers := []models.OfficerMetrics{
		officer("A", "Kampala Central", "Central", 100, models.CalculatedMetrics{}),
		officer("B", "Jinja", "East", 200, models.CalculatedMetrics{}),
		officer("C", "Kampala Central", "Central", 300, models.CalculatedMetrics{}),
	}

	filtered := rollup.FilterScope(officers, models.BranchScope("Kampala Central"))
	require.Len(t, filtered, 2)
	assert.Equal(t, "A", filtered[0].Info.OfficerID)
	assert.Equal(t, "C", filtered[1].Info.OfficerID)

	assert.Len(t, rollup.FilterScope(officers, models.PortfolioScope), 3)
	assert.Empty(t, rollup.FilterScope(officers, models.BranchScope("Mbale")))
}

func TestBreakdown_SkipsMissingNames(t *testing.T) {
	a := officer("A", "Gulu", "North", 100, models.CalculatedMetrics{})
	a.Info.VerticalLeadEmail = "lead@lender.example"
	b := officer("B", "Gulu", "North", 200, models.CalculatedMetrics{})

	byLead := rollup.Breakdown([]models.OfficerMetrics{a, b}, models.ScopeVerticalLead)
	require.Len(t, byLead, 1)
	assert.Equal(t, 100.0, byLead["lead@lender.example"].PortfolioVolume)
}

func TestAggregate_FromCalculatedFacts(t *testing.T) {
	// End to end: raw facts through the formula library, then rolled up.
	raws := []models.RawOfficerFacts{
		{
			FirstInstallmentMisses: 150,
			DisbursedCount:         5000,
			TotalPortfolioVolume:   10000,
			AvgLoanAgeDays:         40,
			RiskScoreNorm:          0.9,
			OnTimeRate:             0.95,
		},
		{
			FirstInstallmentMisses: 400,
			DisbursedCount:         5000,
			TotalPortfolioVolume:   30000,
			AvgLoanAgeDays:         40,
			RiskScoreNorm:          0.6,
			OnTimeRate:             0.7,
		},
	}

	officers := make([]models.OfficerMetrics, len(raws))
	for i, raw := range raws {
		officers[i] = models.OfficerMetrics{
			Info: models.OfficerInfo{OfficerID: "OFF", Branch: "Kampala Central", Region: "Central"},
			Raw:  raw,
			Calc: formula.Calculate(raw),
		}
	}

	assert.Equal(t, 0.03, officers[0].Calc.FIMR)
	assert.Equal(t, models.BandGreen, formula.FIMRBand(officers[0].Calc.FIMR).Color)
	assert.InDelta(t, 0.08, officers[1].Calc.FIMR, 1e-12)
	assert.Equal(t, models.BandFlag, formula.FIMRBand(officers[1].Calc.FIMR).Color)

	r := rollup.Aggregate(officers)
	require.True(t, r.HasData)
	// (0.03*10000 + 0.08*30000) / 40000
	assert.InDelta(t, 0.0675, r.FIMR, 1e-12)
	weightedDQI := (float64(officers[0].Calc.DQI)*10000 + float64(officers[1].Calc.DQI)*30000) / 40000
	assert.InDelta(t, weightedDQI, r.DQI, 1e-12)
}
