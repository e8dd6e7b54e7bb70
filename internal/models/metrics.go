// Package models defines the data structures for the loan metrics engine.
package models

// BandColor is the qualitative tier assigned to a banded metric.
type BandColor string

const (
	BandGreen BandColor = "green"
	BandWatch BandColor = "watch"
	BandAmber BandColor = "amber"
	BandFlag  BandColor = "flag"
	BandRed   BandColor = "red"
)

// Band pairs a tier color with a display label.
type Band struct {
	Color BandColor `json:"color"`
	Label string    `json:"label"`
}

// CalculatedMetrics holds every derived KPI for one officer.
// The whole struct is recomputed from raw facts each cycle, never patched.
type CalculatedMetrics struct {
	FIMR               float64 `json:"fimr"`
	Slippage           float64 `json:"slippage"`
	Roll               float64 `json:"roll"`
	FRR                float64 `json:"frr"`
	AYR                float64 `json:"ayr"`
	DQI                int     `json:"dqi"`
	RiskScore          int     `json:"riskScore"`
	RepaymentDelayRate float64 `json:"repaymentDelayRate"`
	YieldTotal         float64 `json:"yieldTotal"`
	Overdue15dVolume   float64 `json:"overdue15dVolume"`
	PORR               float64 `json:"porr"`
	OnTimeRate         float64 `json:"onTimeRate"`
	RiskScoreNorm      float64 `json:"riskScoreNorm"`
}

// OfficerMetrics is one officer's full computed row in a snapshot.
type OfficerMetrics struct {
	Info     OfficerInfo       `json:"info"`
	Raw      RawOfficerFacts   `json:"rawMetrics"`
	Calc     CalculatedMetrics `json:"calculatedMetrics"`
	RiskBand Band              `json:"riskBand"`
}

// RollupMetrics carries the same KPI shape as CalculatedMetrics aggregated
// to a branch, region, vertical-lead or portfolio scope.
//
// HasData is false for scopes with zero officers: an empty scope is reported
// explicitly instead of a synthetic zero that could read as a healthy score.
type RollupMetrics struct {
	HasData bool `json:"hasData"`

	FIMR               float64 `json:"fimr"`
	Slippage           float64 `json:"slippage"`
	Roll               float64 `json:"roll"`
	FRR                float64 `json:"frr"`
	AYR                float64 `json:"ayr"`
	DQI                float64 `json:"dqi"`
	RiskScore          float64 `json:"riskScore"`
	RepaymentDelayRate float64 `json:"repaymentDelayRate"`

	YieldTotal       float64 `json:"yieldTotal"`
	Overdue15dVolume float64 `json:"overdue15dVolume"`
	MaxDPD           int     `json:"maxDpd"`

	OfficerCount    int     `json:"officerCount"`
	LoanCount       int     `json:"loanCount"`
	PortfolioVolume float64 `json:"portfolioVolume"`
}

// ActivityTag classifies a loan as contributing to the active book or not.
type ActivityTag string

const (
	ActivityActive   ActivityTag = "active"
	ActivityInactive ActivityTag = "inactive"
)

// RollOffTag classifies a loan's roll-off risk by age at first slippage.
type RollOffTag string

const (
	RollOffNone  RollOffTag = "none"
	RollOffEarly RollOffTag = "early"
	RollOffLate  RollOffTag = "late"
)

// SeverityTag buckets a loan by delinquency severity. A loan carries exactly
// one severity tag; Overdue15d is tracked separately because its threshold
// (DPD>15) intentionally differs from AtRisk (DPD>14).
type SeverityTag string

const (
	SeverityPerforming   SeverityTag = "performing"
	SeverityPastMaturity SeverityTag = "past_maturity"
	SeverityAtRisk       SeverityTag = "at_risk"
	SeverityCritical     SeverityTag = "critical"
)

// LoanClassification is the full tag set for one loan: at most one tag per
// taxonomy, taxonomies independent of each other.
type LoanClassification struct {
	LoanID      string      `json:"loan_id"`
	Activity    ActivityTag `json:"activity"`
	RollOff     RollOffTag  `json:"rollOff"`
	Severity    SeverityTag `json:"severity"`
	Overdue15d  bool        `json:"overdue15d"`
	MissedToday bool        `json:"missedToday"`
	RiskyDelay  bool        `json:"riskyDelay"`
	DelayRate   float64     `json:"delayRate"`
}

// ClassificationSummary folds per-loan tags into scope-level counts and
// volumes for KPI cards.
type ClassificationSummary struct {
	ActiveCount    int     `json:"activeLoansCount"`
	ActiveVolume   float64 `json:"activeLoansVolume"`
	InactiveCount  int     `json:"inactiveLoansCount"`
	InactiveVolume float64 `json:"inactiveLoansVolume"`

	EarlyRollOffCount  int     `json:"earlyRollOffCount"`
	EarlyRollOffVolume float64 `json:"earlyRollOffVolume"`
	LateRollOffCount   int     `json:"lateRollOffCount"`
	LateRollOffVolume  float64 `json:"lateRollOffVolume"`

	AtRiskCount      int `json:"atRiskCount"`
	CriticalCount    int `json:"criticalCount"`
	Overdue15dCount  int `json:"overdue15dCount"`
	MissedTodayCount int `json:"missedTodayCount"`
	RiskyDelayCount  int `json:"riskyDelayCount"`

	TotalAmountInDPD     float64 `json:"totalAmountInDPD"`
	TotalPortfolioVolume float64 `json:"totalPortfolioVolume"`

	// NPLApproximation is totalAmountInDPD / totalPortfolioVolume. There is
	// no canonical NPL definition upstream; treat this as a labeled
	// approximation only, never as an input to other invariants.
	NPLApproximation float64 `json:"nplApproximation"`
}
