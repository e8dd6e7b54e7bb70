// Package engine owns the metrics snapshot lifecycle: recompute, caching,
// staleness and request coalescing per scope-key.
//
// Reads never block on an in-flight recompute; they return the last
// published snapshot immediately, stale or not. Recompute is the only
// operation that touches the raw fact provider and therefore the only
// suspend point. A recompute either publishes a complete snapshot or
// leaves the previous one untouched.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"loan-metrics-engine/internal/models"
	"loan-metrics-engine/internal/services/classify"
	"loan-metrics-engine/internal/services/formula"
	"loan-metrics-engine/internal/services/rollup"
	"loan-metrics-engine/internal/utils"
)

// RawFactProvider supplies scope-filtered raw aggregates as of a given
// timestamp. The engine treats it as read-only and possibly slow; any
// error fails the whole recompute for that scope-key, never partial data.
type RawFactProvider interface {
	OfficerFacts(ctx context.Context, scope models.ScopeKey, asOf time.Time) ([]models.OfficerFacts, error)
	LoanFacts(ctx context.Context, scope models.ScopeKey, asOf time.Time) ([]models.LoanFact, error)
}

// Staleness describes the freshness of a snapshot returned by GetSnapshot.
type Staleness string

const (
	// StalenessMissing means no snapshot has ever been published for the
	// scope-key.
	StalenessMissing Staleness = "missing"
	// StalenessFresh means the snapshot is within its TTL.
	StalenessFresh Staleness = "fresh"
	// StalenessStale means the TTL has elapsed; the snapshot is still
	// served while a background refresh runs.
	StalenessStale Staleness = "stale"
)

// Options configures an Engine. Cadence and TTL are deployment inputs,
// not engine constants.
type Options struct {
	// SnapshotTTL is how long a published snapshot counts as fresh.
	SnapshotTTL time.Duration
	// RecomputeInterval is the cadence of the periodic refresh loop.
	RecomputeInterval time.Duration
	// Clock defaults to the real clock; tests inject a fake one.
	Clock clockwork.Clock
}

// Engine computes, caches and serves metrics snapshots per scope-key.
type Engine struct {
	provider RawFactProvider
	ttl      time.Duration
	interval time.Duration
	clock    clockwork.Clock

	group singleflight.Group

	mu        sync.RWMutex
	snapshots map[string]*models.MetricsSnapshot
	inflight  map[string]struct{}
	scopes    map[string]models.ScopeKey
}

// New creates an engine over the given raw fact provider.
func New(provider RawFactProvider, opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Engine{
		provider:  provider,
		ttl:       opts.SnapshotTTL,
		interval:  opts.RecomputeInterval,
		clock:     clock,
		snapshots: make(map[string]*models.MetricsSnapshot),
		inflight:  make(map[string]struct{}),
		scopes:    make(map[string]models.ScopeKey),
	}
}

// GetSnapshot returns the current snapshot for a scope-key without
// blocking. A stale snapshot is still returned (bounded staleness is
// acceptable) and a background refresh is kicked off for it.
func (e *Engine) GetSnapshot(scope models.ScopeKey) (*models.MetricsSnapshot, Staleness) {
	key := scope.String()

	e.mu.Lock()
	e.scopes[key] = scope
	snap := e.snapshots[key]
	e.mu.Unlock()

	if snap == nil {
		return nil, StalenessMissing
	}

	if snap.Expired(e.clock.Now()) {
		e.TriggerRecompute(scope)
		return snap, StalenessStale
	}

	return snap, StalenessFresh
}

// Recompute synchronously recomputes the snapshot for a scope-key and
// returns the published result. Concurrent calls for the same scope-key
// coalesce into one underlying computation; every caller observes the
// same snapshot or the same error.
func (e *Engine) Recompute(ctx context.Context, scope models.ScopeKey) (*models.MetricsSnapshot, error) {
	key := scope.String()

	e.mu.Lock()
	e.scopes[key] = scope
	e.mu.Unlock()

	v, err, shared := e.group.Do(key, func() (interface{}, error) {
		e.setInflight(key, true)
		defer e.setInflight(key, false)
		return e.compute(ctx, scope)
	})
	if err != nil {
		return nil, err
	}

	snap := v.(*models.MetricsSnapshot)
	if shared {
		utils.Logger.Debug("Recompute coalesced with in-flight computation",
			zap.String("scope", key),
			zap.String("snapshot_id", snap.ID),
		)
	}
	return snap, nil
}

// TriggerRecompute starts a background recompute for a scope-key. It
// returns false when a computation for the key is already in flight, in
// which case the trigger attaches to it instead of starting a duplicate.
func (e *Engine) TriggerRecompute(scope models.ScopeKey) bool {
	key := scope.String()

	e.mu.Lock()
	e.scopes[key] = scope
	_, running := e.inflight[key]
	e.mu.Unlock()

	go func() {
		if _, err := e.Recompute(context.Background(), scope); err != nil {
			utils.Logger.Error("Background recompute failed",
				zap.String("scope", key),
				zap.Error(err),
			)
		}
	}()

	return !running
}

// Scopes lists every scope-key the engine has been asked about.
func (e *Engine) Scopes() []models.ScopeKey {
	e.mu.RLock()
	defer e.mu.RUnlock()

	scopes := make([]models.ScopeKey, 0, len(e.scopes))
	for _, s := range e.scopes {
		scopes = append(scopes, s)
	}
	return scopes
}

// Run refreshes every known scope-key on the configured cadence until the
// context is cancelled. Failures are logged per scope and do not stop the
// loop; the prior snapshot stays visible.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	utils.Logger.Info("Starting periodic recompute loop",
		zap.Duration("interval", e.interval),
		zap.Duration("snapshot_ttl", e.ttl),
	)

	for {
		select {
		case <-ctx.Done():
			utils.Logger.Info("Stopping periodic recompute loop")
			return ctx.Err()
		case <-ticker.Chan():
			e.RefreshAll(ctx)
		}
	}
}

// RefreshAll recomputes every known scope-key once, sequentially. Each
// scope fails or publishes independently.
func (e *Engine) RefreshAll(ctx context.Context) {
	for _, scope := range e.Scopes() {
		if _, err := e.Recompute(ctx, scope); err != nil {
			utils.Logger.Warn("Periodic recompute failed for scope",
				zap.String("scope", scope.String()),
				zap.Error(err),
			)
		}
	}
}

// compute pulls raw facts and derives a complete snapshot. It publishes
// all-or-nothing: any provider error aborts before the cache is touched.
func (e *Engine) compute(ctx context.Context, scope models.ScopeKey) (*models.MetricsSnapshot, error) {
	key := scope.String()
	asOf := e.clock.Now()
	started := time.Now()

	officerFacts, err := e.provider.OfficerFacts(ctx, scope, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch officer facts for %s: %w", key, err)
	}

	loans, err := e.provider.LoanFacts(ctx, scope, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch loan facts for %s: %w", key, err)
	}

	officers := make([]models.OfficerMetrics, len(officerFacts))
	for i, of := range officerFacts {
		calc := formula.Calculate(of.Raw)
		officers[i] = models.OfficerMetrics{
			Info:     of.Info,
			Raw:      of.Raw,
			Calc:     calc,
			RiskBand: formula.RiskScoreBand(calc.RiskScore),
		}
	}

	snap := &models.MetricsSnapshot{
		ID:             uuid.NewString(),
		Scope:          scope,
		AsOf:           asOf,
		TTLExpiry:      asOf.Add(e.ttl),
		FormulaVersion: formula.Version,
		Officers:       officers,
		Rollup:         rollup.Aggregate(officers),
		LoanSummary:    classify.Summarize(loans, asOf),
	}

	// Single pointer swap: readers see either the old snapshot or the new
	// one, never a partial write.
	e.mu.Lock()
	e.snapshots[key] = snap
	e.mu.Unlock()

	utils.Logger.Info("Published metrics snapshot",
		zap.String("scope", key),
		zap.String("snapshot_id", snap.ID),
		zap.Int("officers", len(officers)),
		zap.Int("loans", len(loans)),
		zap.Duration("compute_time", time.Since(started)),
	)

	return snap, nil
}

func (e *Engine) setInflight(key string, running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if running {
		e.inflight[key] = struct{}{}
	} else {
		delete(e.inflight, key)
	}
}
