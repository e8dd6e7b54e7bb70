// Package models defines the data structures for the loan metrics engine.
package models

import (
	"time"
)

// MetricsSnapshot is one published reporting view for a scope-key.
//
// A snapshot is created only by a successful recompute and replaced
// atomically by the next one; readers never observe a half-written
// snapshot, and a failed recompute leaves the prior snapshot visible.
type MetricsSnapshot struct {
	ID        string    `json:"id"`
	Scope     ScopeKey  `json:"scope"`
	AsOf      time.Time `json:"asOf"`
	TTLExpiry time.Time `json:"ttlExpiry"`

	// FormulaVersion pins the KPI formula set the snapshot was computed
	// with, so historical reports stay reproducible across formula changes.
	FormulaVersion string `json:"formulaVersion"`

	Officers    []OfficerMetrics      `json:"officers"`
	Rollup      RollupMetrics         `json:"rollup"`
	LoanSummary ClassificationSummary `json:"loanSummary"`
}

// Expired reports whether the snapshot's TTL has elapsed at the given time.
func (s *MetricsSnapshot) Expired(now time.Time) bool {
	return !now.Before(s.TTLExpiry)
}
