// Package database provides the PostgreSQL-backed raw fact provider for
// the loan metrics engine.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"loan-metrics-engine/internal/models"
)

// FactRepository reads scope-filtered raw aggregates from storage. It
// implements engine.RawFactProvider.
//
// The officer aggregation query is expensive, so results are cached for a
// short TTL per scope-key. The cache only smooths bursts of overlapping
// recomputes; snapshot freshness is governed by the engine's own TTL.
type FactRepository struct {
	db    *DB
	cache *ttlcache.Cache[string, []models.OfficerFacts]
}

// NewFactRepository creates a fact repository with the given raw-fact
// cache TTL.
func NewFactRepository(db *DB, cacheTTL time.Duration) *FactRepository {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []models.OfficerFacts](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, []models.OfficerFacts](),
	)

	return &FactRepository{
		db:    db,
		cache: cache,
	}
}

// scopeFilter renders a scope-key as a WHERE fragment on the officers table.
func scopeFilter(scope models.ScopeKey, argIndex int) (string, []interface{}) {
	switch scope.Level {
	case models.ScopeBranch:
		return fmt.Sprintf(" AND o.branch = $%d", argIndex), []interface{}{scope.Name}
	case models.ScopeRegion:
		return fmt.Sprintf(" AND o.region = $%d", argIndex), []interface{}{scope.Name}
	case models.ScopeVerticalLead:
		return fmt.Sprintf(" AND o.vertical_lead_email = $%d", argIndex), []interface{}{scope.Name}
	case models.ScopeOfficer:
		return fmt.Sprintf(" AND o.officer_id = $%d", argIndex), []interface{}{scope.Name}
	default:
		return "", nil
	}
}

// OfficerFacts returns per-officer raw aggregates for the scope as of the
// given reporting date.
func (r *FactRepository) OfficerFacts(ctx context.Context, scope models.ScopeKey, asOf time.Time) ([]models.OfficerFacts, error) {
	cacheKey := scope.String()
	if item := r.cache.Get(cacheKey); item != nil {
		return item.Value(), nil
	}

	query := `
		SELECT
			o.officer_id,
			o.officer_name,
			o.branch,
			o.region,
			COALESCE(o.vertical_lead_email, '') as vertical_lead_email,
			COALESCE(SUM(CASE WHEN l.fimr_tagged THEN 1 ELSE 0 END), 0) as first_installment_misses,
			COALESCE(COUNT(DISTINCT l.loan_id), 0) as disbursed_count,
			COALESCE(SUM(CASE WHEN l.current_dpd BETWEEN 1 AND 6 THEN l.principal_outstanding ELSE 0 END), 0) as dpd1to6_balance,
			COALESCE(SUM(CASE WHEN l.next_due_date <= $1::date + 7 THEN l.amount_due ELSE 0 END), 0) as amount_due_7d,
			COALESCE(SUM(CASE WHEN l.current_dpd BETWEEN 7 AND 30 AND l.prev_dpd BETWEEN 1 AND 6 THEN l.principal_outstanding ELSE 0 END), 0) as moved_dpd7to30,
			COALESCE(SUM(CASE WHEN l.prev_dpd BETWEEN 1 AND 6 THEN l.prev_principal_outstanding ELSE 0 END), 0) as previous_dpd1to6_balance,
			COALESCE(SUM(l.fees_collected), 0) as fees_collected,
			COALESCE(SUM(l.fee_amount), 0) as fees_due,
			COALESCE(SUM(l.interest_collected), 0) as interest_collected,
			COALESCE(SUM(CASE WHEN l.current_dpd >= 15 THEN l.principal_outstanding ELSE 0 END), 0) as overdue_15d_volume,
			COALESCE(SUM(l.principal_outstanding), 0) as total_portfolio_volume,
			COALESCE(SUM(l.par15_mid_month), 0) as par15_mid_month,
			COALESCE(AVG(l.risk_score_norm), 0) as risk_score_norm,
			COALESCE(AVG(l.on_time_rate), 0) as on_time_rate,
			COALESCE(AVG(l.channel_purity), 0) as channel_purity,
			COALESCE(AVG(l.porr), 0) as porr,
			COALESCE(SUM(l.waiver_amount), 0) as waiver_volume,
			COALESCE(SUM(l.backdated_entries), 0) as backdated_entry_count,
			COALESCE(SUM(l.total_entries), 0) as total_entry_count,
			COALESCE(SUM(l.reversal_count), 0) as reversal_count,
			COALESCE(BOOL_OR(l.had_float_gap), false) as had_float_gap,
			COALESCE(AVG(CASE WHEN (l.principal_outstanding + l.interest_outstanding + l.fees_outstanding) > 2000 THEN l.days_since_last_repayment ELSE NULL END), 0) as avg_days_since_last_repayment,
			COALESCE(AVG(CASE WHEN (l.principal_outstanding + l.interest_outstanding + l.fees_outstanding) > 2000 THEN l.loan_age ELSE NULL END), 0) as avg_loan_age_days,
			COALESCE(COUNT(l.loan_id), 0) as loan_count,
			COALESCE(MAX(l.current_dpd), 0) as max_dpd
		FROM officers o
		LEFT JOIN loans l ON o.officer_id = l.officer_id AND l.disbursement_date <= $1::date
		WHERE 1=1
	`

	args := []interface{}{asOf}
	clause, extra := scopeFilter(scope, len(args)+1)
	query += clause
	args = append(args, extra...)
	query += " GROUP BY o.officer_id, o.officer_name, o.branch, o.region, o.vertical_lead_email"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query officer facts: %w", err)
	}
	defer rows.Close()

	var officers []models.OfficerFacts
	for rows.Next() {
		var of models.OfficerFacts
		err := rows.Scan(
			&of.Info.OfficerID,
			&of.Info.Name,
			&of.Info.Branch,
			&of.Info.Region,
			&of.Info.VerticalLeadEmail,
			&of.Raw.FirstInstallmentMisses,
			&of.Raw.DisbursedCount,
			&of.Raw.Dpd1to6Balance,
			&of.Raw.AmountDue7Days,
			&of.Raw.MovedDpd7to30,
			&of.Raw.PreviousDpd1to6Balance,
			&of.Raw.FeesCollected,
			&of.Raw.FeesDue,
			&of.Raw.InterestCollected,
			&of.Raw.Overdue15dVolume,
			&of.Raw.TotalPortfolioVolume,
			&of.Raw.Par15MidMonth,
			&of.Raw.RiskScoreNorm,
			&of.Raw.OnTimeRate,
			&of.Raw.ChannelPurity,
			&of.Raw.PORR,
			&of.Raw.WaiverVolume,
			&of.Raw.BackdatedEntryCount,
			&of.Raw.TotalEntryCount,
			&of.Raw.ReversalCount,
			&of.Raw.HadFloatGap,
			&of.Raw.AvgDaysSinceLastRepayment,
			&of.Raw.AvgLoanAgeDays,
			&of.Raw.LoanCount,
			&of.Raw.MaxDPD,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan officer facts: %w", err)
		}
		officers = append(officers, of)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read officer facts: %w", err)
	}

	r.cache.Set(cacheKey, officers, ttlcache.DefaultTTL)

	return officers, nil
}

// LoanFacts returns the per-loan read-only view for the scope as of the
// given reporting date. Repayment checks only count non-reversed entries.
func (r *FactRepository) LoanFacts(ctx context.Context, scope models.ScopeKey, asOf time.Time) ([]models.LoanFact, error) {
	query := `
		SELECT
			l.loan_id,
			l.officer_id,
			(l.principal_outstanding + l.interest_outstanding + l.fees_outstanding)::float as outstanding_balance,
			l.current_dpd,
			COALESCE(l.days_since_last_repayment, 0) as days_since_last_repayment,
			l.disbursement_date,
			l.maturity_date,
			l.status,
			EXISTS (
				SELECT 1 FROM repayments r
				WHERE r.loan_id = l.loan_id
					AND r.payment_date = $1::date
					AND r.is_reversed = false
			) as has_repayment_today,
			EXISTS (
				SELECT 1 FROM loan_schedule s
				WHERE s.loan_id = l.loan_id
					AND s.due_date = $1::date
			) as scheduled_due_today
		FROM loans l
		INNER JOIN officers o ON l.officer_id = o.officer_id
		WHERE l.disbursement_date <= $1::date
	`

	args := []interface{}{asOf}
	clause, extra := scopeFilter(scope, len(args)+1)
	query += clause
	args = append(args, extra...)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loan facts: %w", err)
	}
	defer rows.Close()

	var loans []models.LoanFact
	for rows.Next() {
		var loan models.LoanFact
		var status string
		err := rows.Scan(
			&loan.LoanID,
			&loan.OfficerID,
			&loan.OutstandingBalance,
			&loan.CurrentDPD,
			&loan.DaysSinceLastRepayment,
			&loan.DisbursementDate,
			&loan.MaturityDate,
			&status,
			&loan.HasRepaymentToday,
			&loan.ScheduledDueToday,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan fact: %w", err)
		}
		loan.Status = models.NormalizeLoanStatus(status)
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read loan facts: %w", err)
	}

	return loans, nil
}
