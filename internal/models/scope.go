// Package models defines the data structures for the loan metrics engine.
package models

import (
	"fmt"
	"strings"
)

// ScopeLevel is the aggregation level a scope-key addresses.
type ScopeLevel string

const (
	ScopePortfolio    ScopeLevel = "portfolio"
	ScopeBranch       ScopeLevel = "branch"
	ScopeRegion       ScopeLevel = "region"
	ScopeVerticalLead ScopeLevel = "verticalLead"
	ScopeOfficer      ScopeLevel = "officer"
)

// ScopeKey identifies one aggregation scope, e.g. "portfolio",
// "branch:Kampala Central" or "verticalLead:jane@lender.example".
// Scope is always passed explicitly; the engine holds no ambient
// "current filter" state.
type ScopeKey struct {
	Level ScopeLevel
	Name  string
}

// PortfolioScope is the whole-book scope-key.
var PortfolioScope = ScopeKey{Level: ScopePortfolio}

// BranchScope builds a branch scope-key.
func BranchScope(branch string) ScopeKey {
	return ScopeKey{Level: ScopeBranch, Name: branch}
}

// RegionScope builds a region scope-key.
func RegionScope(region string) ScopeKey {
	return ScopeKey{Level: ScopeRegion, Name: region}
}

// VerticalLeadScope builds a vertical-lead scope-key from the lead's email.
func VerticalLeadScope(email string) ScopeKey {
	return ScopeKey{Level: ScopeVerticalLead, Name: email}
}

// OfficerScope builds a single-officer scope-key.
func OfficerScope(officerID string) ScopeKey {
	return ScopeKey{Level: ScopeOfficer, Name: officerID}
}

// String renders the canonical "level:name" form used as cache key.
func (k ScopeKey) String() string {
	if k.Level == ScopePortfolio {
		return string(ScopePortfolio)
	}
	return string(k.Level) + ":" + k.Name
}

// ParseScopeKey parses the canonical "level:name" form.
func ParseScopeKey(s string) (ScopeKey, error) {
	if s == string(ScopePortfolio) {
		return PortfolioScope, nil
	}

	level, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return ScopeKey{}, fmt.Errorf("%w: %q", ErrInvalidScopeKey, s)
	}

	switch ScopeLevel(level) {
	case ScopeBranch, ScopeRegion, ScopeVerticalLead, ScopeOfficer:
		return ScopeKey{Level: ScopeLevel(level), Name: name}, nil
	default:
		return ScopeKey{}, fmt.Errorf("%w: unknown level %q", ErrInvalidScopeKey, level)
	}
}

// Matches reports whether an officer belongs to this scope.
func (k ScopeKey) Matches(info OfficerInfo) bool {
	switch k.Level {
	case ScopePortfolio:
		return true
	case ScopeBranch:
		return info.Branch == k.Name
	case ScopeRegion:
		return info.Region == k.Name
	case ScopeVerticalLead:
		return info.VerticalLeadEmail == k.Name
	case ScopeOfficer:
		return info.OfficerID == k.Name
	}
	return false
}
