package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-metrics-engine/internal/models"
	"loan-metrics-engine/internal/services/engine"
	"loan-metrics-engine/internal/services/formula"
)

var errProvider = errors.New("facts unavailable")

// fakeProvider serves fixed facts, counts fetches, and can fail or block
// on demand.
type fakeProvider struct {
	officers []models.OfficerFacts
	loans    []models.LoanFact

	calls atomic.Int32

	mu  sync.Mutex
	err error

	// When set, OfficerFacts signals entered and parks until release closes.
	entered chan struct{}
	release chan struct{}
}

func (p *fakeProvider) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakeProvider) OfficerFacts(ctx context.Context, scope models.ScopeKey, asOf time.Time) ([]models.OfficerFacts, error) {
	p.calls.Add(1)

	if p.entered != nil {
		p.entered <- struct{}{}
		<-p.release
	}

	p.mu.Lock()
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return p.officers, nil
}

func (p *fakeProvider) LoanFacts(ctx context.Context, scope models.ScopeKey, asOf time.Time) ([]models.LoanFact, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.loans, nil
}

func testFacts() []models.OfficerFacts {
	return []models.OfficerFacts{
		{
			Info: models.OfficerInfo{
				OfficerID: "OFF-001",
				Name:      "Agnes K",
				Branch:    "Kampala Central",
				Region:    "Central",
			},
			Raw: models.RawOfficerFacts{
				FirstInstallmentMisses: 150,
				DisbursedCount:         5000,
				TotalPortfolioVolume:   100000,
				LoanCount:              120,
				MaxDPD:                 12,
				RiskScoreNorm:          0.8,
				OnTimeRate:             0.9,
				AvgLoanAgeDays:         40,
			},
		},
	}
}

func newTestEngine(p *fakeProvider, fc clockwork.Clock) *engine.Engine {
	return engine.New(p, engine.Options{
		SnapshotTTL:       5 * time.Minute,
		RecomputeInterval: time.Minute,
		Clock:             fc,
	})
}

func TestRecompute_PublishesSnapshot(t *testing.T) {
	fc := clockwork.NewFakeClock()
	provider := &fakeProvider{officers: testFacts()}
	eng := newTestEngine(provider, fc)

	snap, err := eng.Recompute(context.Background(), models.PortfolioScope)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, models.PortfolioScope, snap.Scope)
	assert.Equal(t, formula.Version, snap.FormulaVersion)
	assert.Equal(t, fc.Now(), snap.AsOf)
	assert.Equal(t, fc.Now().Add(5*time.Minute), snap.TTLExpiry)

	require.Len(t, snap.Officers, 1)
	assert.Equal(t, 0.03, snap.Officers[0].Calc.FIMR)
	assert.True(t, snap.Rollup.HasData)
	assert.Equal(t, 100000.0, snap.Rollup.PortfolioVolume)

	got, staleness := eng.GetSnapshot(models.PortfolioScope)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, engine.StalenessFresh, staleness)
}

func TestGetSnapshot_MissingScope(t *testing.T) {
	eng := newTestEngine(&fakeProvider{}, clockwork.NewFakeClock())

	snap, staleness := eng.GetSnapshot(models.BranchScope("Jinja"))
	assert.Nil(t, snap)
	assert.Equal(t, engine.StalenessMissing, staleness)
}

func TestRecompute_FailureRetainsPriorSnapshot(t *testing.T) {
	fc := clockwork.NewFakeClock()
	provider := &fakeProvider{officers: testFacts()}
	eng := newTestEngine(provider, fc)

	first, err := eng.Recompute(context.Background(), models.PortfolioScope)
	require.NoError(t, err)

	provider.setErr(errProvider)
	_, err = eng.Recompute(context.Background(), models.PortfolioScope)
	require.ErrorIs(t, err, errProvider)

	// The failed recompute must not have touched the published snapshot.
	got, staleness := eng.GetSnapshot(models.PortfolioScope)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, engine.StalenessFresh, staleness)
}

func TestRecompute_IdempotentOnFrozenFacts(t *testing.T) {
	fc := clockwork.NewFakeClock()
	provider := &fakeProvider{officers: testFacts()}
	eng := newTestEngine(provider, fc)

	first, err := eng.Recompute(context.Background(), models.PortfolioScope)
	require.NoError(t, err)
	second, err := eng.Recompute(context.Background(), models.PortfolioScope)
	require.NoError(t, err)

	// Same facts, same clock: everything but the snapshot identity matches.
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.AsOf, second.AsOf)
	assert.Equal(t, first.Officers, second.Officers)
	assert.Equal(t, first.Rollup, second.Rollup)
	assert.Equal(t, first.LoanSummary, second.LoanSummary)
}

func TestGetSnapshot_ServesStaleAndRefreshes(t *testing.T) {
	fc := clockwork.NewFakeClock()
	provider := &fakeProvider{officers: testFacts()}
	eng := newTestEngine(provider, fc)

	first, err := eng.Recompute(context.Background(), models.PortfolioScope)
	require.NoError(t, err)

	fc.Advance(5 * time.Minute)

	got, staleness := eng.GetSnapshot(models.PortfolioScope)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, engine.StalenessStale, staleness)

	// The stale read kicked off a background refresh.
	require.Eventually(t, func() bool {
		snap, s := eng.GetSnapshot(models.PortfolioScope)
		return s == engine.StalenessFresh && snap.ID != first.ID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecompute_CoalescesConcurrentCalls(t *testing.T) {
	fc := clockwork.NewFakeClock()
	provider := &fakeProvider{
		officers: testFacts(),
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	eng := newTestEngine(provider, fc)

	type result struct {
		snap *models.MetricsSnapshot
		err  error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			snap, err := eng.Recompute(context.Background(), models.PortfolioScope)
			results <- result{snap, err}
		}()
	}

	// First caller is parked inside the provider; give the second caller
	// time to attach to the in-flight computation, then let it finish.
	<-provider.entered
	time.Sleep(100 * time.Millisecond)
	close(provider.release)

	a := <-results
	b := <-results
	require.NoError(t, a.err)
	require.NoError(t, b.err)

	assert.Equal(t, a.snap.ID, b.snap.ID)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestTriggerRecompute_ReportsInFlight(t *testing.T) {
	fc := clockwork.NewFakeClock()
	provider := &fakeProvider{
		officers: testFacts(),
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	eng := newTestEngine(provider, fc)

	started := eng.TriggerRecompute(models.PortfolioScope)
	assert.True(t, started)

	<-provider.entered
	// A second trigger while the first is parked attaches instead of
	// starting a new computation.
	assert.False(t, eng.TriggerRecompute(models.PortfolioScope))

	close(provider.release)
	require.Eventually(t, func() bool {
		snap, _ := eng.GetSnapshot(models.PortfolioScope)
		return snap != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScopes_TracksEveryRequestedScope(t *testing.T) {
	eng := newTestEngine(&fakeProvider{officers: testFacts()}, clockwork.NewFakeClock())

	eng.GetSnapshot(models.PortfolioScope)
	eng.GetSnapshot(models.BranchScope("Kampala Central"))
	eng.GetSnapshot(models.BranchScope("Kampala Central"))
	eng.GetSnapshot(models.RegionScope("Central"))

	assert.Len(t, eng.Scopes(), 3)
}

func TestRun_RefreshesOnCadence(t *testing.T) {
	fc := clockwork.NewFakeClock()
	provider := &fakeProvider{officers: testFacts()}
	eng := newTestEngine(provider, fc)

	_, err := eng.Recompute(context.Background(), models.PortfolioScope)
	require.NoError(t, err)
	require.Equal(t, int32(1), provider.calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	// Wait for the loop to park on the ticker before advancing the clock.
	fc.BlockUntil(1)
	fc.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return provider.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
