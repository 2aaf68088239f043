package di

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/domain"
	"github.com/aristath/brain/internal/risk"
	"github.com/aristath/brain/internal/router"
)

type fakePositionRepo struct {
	positions []domain.Position
	calls     int
}

func (f *fakePositionRepo) SavePosition(ctx context.Context, p domain.Position) error { return nil }
func (f *fakePositionRepo) DeletePosition(ctx context.Context, symbol string) error    { return nil }
func (f *fakePositionRepo) AllPositions(ctx context.Context) ([]domain.Position, error) {
	f.calls++
	return f.positions, nil
}

func TestPositionBookServesFromCacheUntilTTLExpires(t *testing.T) {
	repo := &fakePositionRepo{positions: []domain.Position{{Symbol: "BTCUSDT", Size: 1, MarkPrice: 50000}}}
	book := newPositionBook(repo, nil)
	book.ttl = time.Millisecond

	first := book.Snapshot(context.Background())
	require.Len(t, first, 1)
	assert.Equal(t, 1, repo.calls, "seed is empty so the first Snapshot must load from the repository")

	second := book.Snapshot(context.Background())
	assert.Equal(t, 1, repo.calls, "second call within the TTL window must be served from cache")
	assert.Equal(t, first, second)

	time.Sleep(2 * time.Millisecond)
	repo.positions = append(repo.positions, domain.Position{Symbol: "ETHUSDT", Size: 2, MarkPrice: 3000})
	third := book.Snapshot(context.Background())
	assert.Equal(t, 2, repo.calls, "a stale cache must refresh from the repository")
	assert.Len(t, third, 2)
}

func TestPositionBookSeedIsUsedBeforeFirstLoad(t *testing.T) {
	repo := &fakePositionRepo{}
	seed := map[string]domain.Position{"BTCUSDT": {Symbol: "BTCUSDT", Size: 1, MarkPrice: 10}}
	book := newPositionBook(repo, seed)
	book.ttl = time.Hour

	snap := book.Snapshot(context.Background())
	assert.Equal(t, seed, snap)
	assert.Zero(t, repo.calls, "a fresh seed must not trigger a repository round trip")
}

type fakeEquitySource struct {
	equity float64
	err    error
}

func (f fakeEquitySource) CurrentEquity(ctx context.Context) (float64, error) { return f.equity, f.err }

type fakeCapSource struct {
	vector *domain.AllocationVector
	err    error
}

func (f fakeCapSource) LoadSnapshot(ctx context.Context) (*domain.AllocationVector, error) {
	return f.vector, f.err
}

type fakeDecisionRepo struct {
	saved []domain.RiskDecision
}

func (f *fakeDecisionRepo) SaveDecision(ctx context.Context, intentID string, d domain.RiskDecision) error {
	f.saved = append(f.saved, d)
	return nil
}
func (f *fakeDecisionRepo) RecentDecisions(ctx context.Context, limit int) ([]domain.RiskDecision, error) {
	return f.saved, nil
}

type fakeEventAppender struct{ nextID int64 }

func (f *fakeEventAppender) Append(ctx context.Context, subject domain.EventSubject, payload []byte) (domain.EventLogEntry, error) {
	f.nextID++
	return domain.EventLogEntry{ID: f.nextID, Subject: subject, Payload: payload}, nil
}
func (f *fakeEventAppender) StreamFrom(ctx context.Context, fromID int64, limit int) ([]domain.EventLogEntry, error) {
	return nil, nil
}
func (f *fakeEventAppender) LatestID(ctx context.Context) (int64, error) { return f.nextID, nil }

func permissiveRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MinStopMultiplier:      1,
		MaxPositionNotional:    1_000_000,
		MaxEndToEndLatency:     time.Second,
		TailExponentThreshold:  2,
		TailLeverageCap:        100,
		MaxAccountLeverage:     50,
		CorrelationPenalty:     0.2,
		CorrelationTTL:         time.Minute,
		CorrelationRingBufferN: 50,
		Phase3ID:               "P3",
		Phase1ID:               "P1",
	}
}

func newIntent(symbol string, size float64, price float64) *domain.IntentSignal {
	entry := price
	return &domain.IntentSignal{
		ID:            "intent-1",
		PhaseID:       "P2",
		Symbol:        symbol,
		Side:          domain.SideBuy,
		RequestedSize: size,
		EntryPrice:    &entry,
		Confidence:    60,
	}
}

func TestRiskGateApprovesWithinLimits(t *testing.T) {
	guardian := risk.New(permissiveRiskConfig(), &fakeEventAppender{}, &fakeDecisionRepo{}, nil, nil, zerolog.Nop())
	book := newPositionBook(&fakePositionRepo{}, map[string]domain.Position{})
	equity := fakeEquitySource{equity: 100_000}
	caps := fakeCapSource{vector: &domain.AllocationVector{MaxLeverage: 5}}

	gate := riskGate(guardian, book, equity, caps, zerolog.Nop())

	env := &domain.SignalEnvelope{Intent: newIntent("BTCUSDT", 1, 100)}
	kept := gate(env)

	assert.True(t, kept)
	assert.Empty(t, env.DropReason)
}

func TestRiskGateRejectsNotionalAboveCeiling(t *testing.T) {
	cfg := permissiveRiskConfig()
	cfg.MaxPositionNotional = 10
	guardian := risk.New(cfg, &fakeEventAppender{}, &fakeDecisionRepo{}, nil, nil, zerolog.Nop())
	book := newPositionBook(&fakePositionRepo{}, map[string]domain.Position{})
	equity := fakeEquitySource{equity: 100_000}
	caps := fakeCapSource{vector: &domain.AllocationVector{MaxLeverage: 5}}

	gate := riskGate(guardian, book, equity, caps, zerolog.Nop())

	env := &domain.SignalEnvelope{Intent: newIntent("BTCUSDT", 1, 100)}
	kept := gate(env)

	assert.False(t, kept)
	assert.Equal(t, domain.ReasonMaxNotional, env.DropReason)
}

func TestRiskGateDropsOnEquityError(t *testing.T) {
	guardian := risk.New(permissiveRiskConfig(), &fakeEventAppender{}, &fakeDecisionRepo{}, nil, nil, zerolog.Nop())
	book := newPositionBook(&fakePositionRepo{}, map[string]domain.Position{})
	equity := fakeEquitySource{err: assertError("exchange unreachable")}
	caps := fakeCapSource{vector: &domain.AllocationVector{MaxLeverage: 5}}

	gate := riskGate(guardian, book, equity, caps, zerolog.Nop())

	env := &domain.SignalEnvelope{Intent: newIntent("BTCUSDT", 1, 100)}
	kept := gate(env)

	assert.False(t, kept)
	assert.Equal(t, "equity unavailable", env.DropReason)
}

func TestRiskGateDropsNilIntent(t *testing.T) {
	guardian := risk.New(permissiveRiskConfig(), &fakeEventAppender{}, &fakeDecisionRepo{}, nil, nil, zerolog.Nop())
	book := newPositionBook(&fakePositionRepo{}, map[string]domain.Position{})
	gate := riskGate(guardian, book, fakeEquitySource{equity: 1000}, fakeCapSource{}, zerolog.Nop())

	env := &domain.SignalEnvelope{}
	assert.False(t, gate(env))
}

type assertError string

func (e assertError) Error() string { return string(e) }

type fakeVenueSource struct{ venues []domain.Venue }

func (f fakeVenueSource) ActiveVenues() []domain.Venue { return f.venues }

type fakeMarketData struct {
	snapshot domain.MarketSnapshot
	ok       bool
}

func (f fakeMarketData) Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, bool) {
	return f.snapshot, f.ok
}

func testRouterConfig() config.RouterConfig {
	return config.RouterConfig{
		TimeSlices:        4,
		MinOrderSize:      0.0001,
		MaxOrderSize:       1_000_000,
		MarketDataTimeout: time.Minute,
	}
}

func TestRoutingSinkRoutesSurvivingEnvelopes(t *testing.T) {
	venues := fakeVenueSource{venues: []domain.Venue{{
		ID: "primary", Active: true, AvailableSize: 10, RecentVolume: 1000,
		Fees: domain.VenueFees{MakerBps: 1, TakerBps: 2},
	}}}
	market := fakeMarketData{ok: true, snapshot: domain.MarketSnapshot{
		Symbol: "BTCUSDT", Bid: 100, Ask: 100.1, BidSize: 10, AskSize: 10, Observed: nowMillis(),
	}}
	rt := router.New(testRouterConfig(), venues, market, nil, zerolog.Nop())

	sink := routingSink(rt, zerolog.Nop())
	env := &domain.SignalEnvelope{Intent: newIntent("BTCUSDT", 1, 100)}

	assert.NotPanics(t, func() { sink([]*domain.SignalEnvelope{env}) })
}

func TestRoutingSinkSkipsEnvelopesWithoutIntent(t *testing.T) {
	venues := fakeVenueSource{}
	market := fakeMarketData{}
	rt := router.New(testRouterConfig(), venues, market, nil, zerolog.Nop())

	sink := routingSink(rt, zerolog.Nop())
	assert.NotPanics(t, func() { sink([]*domain.SignalEnvelope{{}}) })
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
