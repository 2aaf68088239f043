package router

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/domain"
)

type fakeVenues struct{ venues []domain.Venue }

func (f fakeVenues) ActiveVenues() []domain.Venue { return f.venues }

type fakeMarket struct {
	snapshot domain.MarketSnapshot
	ok       bool
}

func (f fakeMarket) Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, bool) {
	return f.snapshot, f.ok
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testVenues() []domain.Venue {
	return []domain.Venue{
		{ID: "binance", Type: domain.VenueExchange, Active: true, LatencyMicros: 500, Liquidity: domain.VenueLiquidity{MarketShare: 0.5}, RecentVolume: 1000, AvailableSize: 200, Fees: domain.VenueFees{TakerBps: 4}},
		{ID: "okx", Type: domain.VenueExchange, Active: true, LatencyMicros: 800, Liquidity: domain.VenueLiquidity{MarketShare: 0.3}, RecentVolume: 500, AvailableSize: 150, Fees: domain.VenueFees{TakerBps: 5}},
		{ID: "bybit", Type: domain.VenueExchange, Active: true, LatencyMicros: 300, Liquidity: domain.VenueLiquidity{MarketShare: 0.2}, RecentVolume: 300, AvailableSize: 100, Fees: domain.VenueFees{TakerBps: 3}},
		{ID: "dark1", Type: domain.VenueDarkPool, Active: true, LatencyMicros: 600, Fees: domain.VenueFees{TakerBps: 2}},
	}
}

func newTestRouter(now time.Time) *Router {
	cfg := config.RouterConfig{
		TimeSlices:        10,
		MinOrderSize:      1,
		MaxOrderSize:      1_000_000,
		MarketDataTimeout: 5 * time.Second,
	}
	market := fakeMarket{ok: true, snapshot: domain.MarketSnapshot{Symbol: "BTCUSDT", Bid: 99, Ask: 101, Observed: now.UnixMilli()}}
	return New(cfg, fakeVenues{venues: testVenues()}, market, fixedClock{now}, zerolog.Nop())
}

func TestRouteRejectsOutOfBoundsQuantity(t *testing.T) {
	r := newTestRouter(time.Now())
	_, err := r.Route(context.Background(), domain.OrderRequest{RequestID: "r1", Symbol: "BTCUSDT", Quantity: 0.0001})
	assert.Error(t, err)
}

func TestRouteRejectsStaleMarketData(t *testing.T) {
	now := time.Now()
	cfg := config.RouterConfig{MinOrderSize: 1, MaxOrderSize: 1000, MarketDataTimeout: 1 * time.Second}
	stale := fakeMarket{ok: true, snapshot: domain.MarketSnapshot{Observed: now.Add(-10 * time.Second).UnixMilli()}}
	r := New(cfg, fakeVenues{venues: testVenues()}, stale, fixedClock{now}, zerolog.Nop())
	_, err := r.Route(context.Background(), domain.OrderRequest{RequestID: "r2", Symbol: "BTCUSDT", Quantity: 10})
	assert.Error(t, err)
}

func TestVWAPDefaultAlgorithm(t *testing.T) {
	r := newTestRouter(time.Now())
	decision, err := r.Route(context.Background(), domain.OrderRequest{RequestID: "r3", Symbol: "BTCUSDT", Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.AlgoVWAP, decision.Algorithm)
	assert.Equal(t, 90.0, decision.Confidence)

	var total float64
	for _, route := range decision.Routes {
		total += route.Quantity
	}
	assert.LessOrEqual(t, total, 10.0+1e-9)
}

func TestTWAPExplicitOrderType(t *testing.T) {
	r := newTestRouter(time.Now())
	decision, err := r.Route(context.Background(), domain.OrderRequest{RequestID: "r4", Symbol: "BTCUSDT", Quantity: 30, OrderType: "TWAP"})
	require.NoError(t, err)
	assert.Equal(t, domain.AlgoTWAP, decision.Algorithm)
	require.Len(t, decision.Routes, 3)
	for _, route := range decision.Routes {
		assert.Equal(t, 10, route.TimeSlices)
		assert.InDelta(t, route.Quantity/10, route.SliceQuantity, 1e-9)
	}
}

func TestAggressiveSortsByLatency(t *testing.T) {
	r := newTestRouter(time.Now())
	decision, err := r.Route(context.Background(), domain.OrderRequest{RequestID: "r5", Symbol: "BTCUSDT", Quantity: 50, Strategy: domain.StrategyAggressive})
	require.NoError(t, err)
	assert.Equal(t, domain.AlgoAggressive, decision.Algorithm)
	require.NotEmpty(t, decision.Routes)
	assert.Equal(t, "bybit", decision.Routes[0].VenueID) // lowest latency
}

func TestStealthSplitsDarkPoolAndExchanges(t *testing.T) {
	r := newTestRouter(time.Now())
	decision, err := r.Route(context.Background(), domain.OrderRequest{RequestID: "r6", Symbol: "BTCUSDT", Quantity: 100, Strategy: domain.StrategyStealth})
	require.NoError(t, err)
	assert.Equal(t, domain.AlgoStealth, decision.Algorithm)

	var darkQty, exchangeQty float64
	for _, route := range decision.Routes {
		if route.VenueID == "dark1" {
			darkQty += route.Quantity
		} else {
			exchangeQty += route.Quantity
		}
	}
	assert.InDelta(t, 70, darkQty, 1e-9)
	assert.InDelta(t, 30, exchangeQty, 1e-9)
}
