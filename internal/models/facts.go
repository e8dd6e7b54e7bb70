// Package models defines the data structures for the loan metrics engine.
package models

import (
	"time"
)

// LoanStatus represents the lifecycle status of a loan.
type LoanStatus string

const (
	LoanStatusOpen       LoanStatus = "open"
	LoanStatusClosed     LoanStatus = "closed"
	LoanStatusDefaulted  LoanStatus = "defaulted"
	LoanStatusWrittenOff LoanStatus = "written_off"
)

// IsValid checks whether the status is one of the known values.
func (s LoanStatus) IsValid() bool {
	switch s {
	case LoanStatusOpen, LoanStatusClosed, LoanStatusDefaulted, LoanStatusWrittenOff:
		return true
	}
	return false
}

// NormalizeLoanStatus converts loose upstream status strings to the closed enum.
// Unknown values map to closed so they never count toward active books.
func NormalizeLoanStatus(status string) LoanStatus {
	switch status {
	case "open", "Open", "Active", "active", "Disbursed", "disbursed":
		return LoanStatusOpen
	case "defaulted", "Defaulted":
		return LoanStatusDefaulted
	case "written_off", "WrittenOff", "Written Off":
		return LoanStatusWrittenOff
	default:
		return LoanStatusClosed
	}
}

// RawOfficerFacts is the per-officer input tuple for one reporting cycle.
// Values are produced fresh on every recompute and never mutated afterwards.
// Missing upstream values arrive as zero/false, which every formula accepts.
type RawOfficerFacts struct {
	FirstInstallmentMisses int     `json:"firstInstallmentMisses"`
	DisbursedCount         int     `json:"disbursedCount"`
	Dpd1to6Balance         float64 `json:"dpd1to6Balance"`
	AmountDue7Days         float64 `json:"amountDue7Days"`
	MovedDpd7to30          float64 `json:"movedDpd7to30"`
	PreviousDpd1to6Balance float64 `json:"previousDpd1to6Balance"`
	FeesCollected          float64 `json:"feesCollected"`
	FeesDue                float64 `json:"feesDue"`
	InterestCollected      float64 `json:"interestCollected"`
	Overdue15dVolume       float64 `json:"overdue15dVolume"`
	TotalPortfolioVolume   float64 `json:"totalPortfolioVolume"`
	Par15MidMonth          float64 `json:"par15MidMonth"`

	// Ratio-typed facts, clamped to [0,1] before entering any formula.
	RiskScoreNorm float64 `json:"riskScoreNorm"`
	OnTimeRate    float64 `json:"onTimeRate"`
	ChannelPurity float64 `json:"channelPurity"`
	PORR          float64 `json:"porr"`

	WaiverVolume        float64 `json:"waiverVolume"`
	BackdatedEntryCount int     `json:"backdatedEntryCount"`
	TotalEntryCount     int     `json:"totalEntryCount"`
	ReversalCount       int     `json:"reversalCount"`
	HadFloatGap         bool    `json:"hadFloatGap"`

	AvgDaysSinceLastRepayment float64 `json:"avgDaysSinceLastRepayment"`
	AvgLoanAgeDays            float64 `json:"avgLoanAgeDays"`

	LoanCount int `json:"loanCount"`
	MaxDPD    int `json:"maxDpd"`
}

// OfficerInfo identifies an officer and their place in the reporting hierarchy.
type OfficerInfo struct {
	OfficerID         string `json:"officer_id"`
	Name              string `json:"name"`
	Branch            string `json:"branch"`
	Region            string `json:"region"`
	VerticalLeadEmail string `json:"vertical_lead_email,omitempty"`
}

// OfficerFacts pairs an officer's identity with their raw facts for a cycle.
type OfficerFacts struct {
	Info OfficerInfo     `json:"info"`
	Raw  RawOfficerFacts `json:"raw"`
}

// LoanFact is the read-only per-loan view consumed by the classification engine.
type LoanFact struct {
	LoanID                 string     `json:"loan_id"`
	OfficerID              string     `json:"officer_id"`
	OutstandingBalance     float64    `json:"outstanding_balance"`
	CurrentDPD             int        `json:"current_dpd"`
	DaysSinceLastRepayment int        `json:"days_since_last_repayment"`
	DisbursementDate       time.Time  `json:"disbursement_date"`
	MaturityDate           *time.Time `json:"maturity_date,omitempty"`
	Status                 LoanStatus `json:"status"`
	HasRepaymentToday      bool       `json:"has_repayment_today"`
	ScheduledDueToday      bool       `json:"scheduled_due_today"`
}

// AgeDays returns the loan age in whole days as of the given date.
func (l *LoanFact) AgeDays(today time.Time) int {
	return int(today.Sub(l.DisbursementDate).Hours() / 24)
}
