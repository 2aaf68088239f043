// Package router implements the Order-Routing Core: algorithm selection and
// venue-splitting for an accepted, sized order.
package router

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/domain"
)

// MarketDataSource supplies the current snapshot for a symbol and the
// observation's age, used to validate freshness against marketDataTimeout.
type MarketDataSource interface {
	Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, bool)
}

// Router produces a RoutingDecision for an accepted order by selecting one
// of the four execution algorithms and splitting it across venues. Per-
// symbol calls are expected to be serialized by the caller (§5's Router
// worker), so the router itself holds no mutable per-symbol state.
type Router struct {
	cfg     config.RouterConfig
	venues  VenueSource
	market  MarketDataSource
	clock   Clock
	log     zerolog.Logger
}

// VenueSource supplies the currently active venue registry.
type VenueSource interface {
	ActiveVenues() []domain.Venue
}

// Clock abstracts wall-clock access for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// New constructs a Router.
func New(cfg config.RouterConfig, venues VenueSource, market MarketDataSource, clock Clock, log zerolog.Logger) *Router {
	if clock == nil {
		clock = SystemClock
	}
	return &Router{cfg: cfg, venues: venues, market: market, clock: clock, log: log.With().Str("component", "router").Logger()}
}

// Route validates the request and produces a RoutingDecision.
func (r *Router) Route(ctx context.Context, req domain.OrderRequest) (domain.RoutingDecision, error) {
	if req.Quantity < r.cfg.MinOrderSize || req.Quantity > r.cfg.MaxOrderSize {
		return domain.RoutingDecision{}, fmt.Errorf("quantity %.8f outside [%.8f, %.8f]", req.Quantity, r.cfg.MinOrderSize, r.cfg.MaxOrderSize)
	}
	if req.MaxSlippage < 0 {
		return domain.RoutingDecision{}, fmt.Errorf("maxSlippage must be non-negative")
	}

	snapshot, ok := r.market.Snapshot(ctx, req.Symbol)
	if !ok {
		return domain.RoutingDecision{}, fmt.Errorf("no market data for symbol %q", req.Symbol)
	}
	age := r.clock.Now().Sub(time.UnixMilli(snapshot.Observed))
	if age > r.cfg.MarketDataTimeout {
		return domain.RoutingDecision{}, fmt.Errorf("market data for %q is stale: %s old", req.Symbol, age)
	}

	venues := r.venues.ActiveVenues()
	algo := selectAlgorithm(req)

	var routes []domain.Route
	var confidence float64
	var reasoning string

	switch algo {
	case domain.AlgoTWAP:
		routes, confidence, reasoning = twap(venues, req, r.cfg.TimeSlices)
	case domain.AlgoVWAP:
		routes, confidence, reasoning = vwap(venues, req)
	case domain.AlgoAggressive:
		routes, confidence, reasoning = aggressive(venues, req)
	case domain.AlgoStealth:
		routes, confidence, reasoning = stealth(venues, req)
	}

	if r.cfg.EnableCoLocation {
		routes = prioritizeCoLocation(routes, venues)
	}
	if r.cfg.EnableNetworkOptimization {
		routes = applyNetworkOptimization(routes, venues)
	}

	refPrice := midPrice(snapshot)
	cost := totalCostBps(routes, req.Quantity, refPrice)

	decision := domain.RoutingDecision{
		RequestID:             req.RequestID,
		Routes:                routes,
		TotalExpectedCost:     cost,
		ExpectedLatencyMicros: maxLatency(routes),
		Confidence:            confidence,
		Reasoning:             reasoning,
		Algorithm:             algo,
	}

	r.log.Info().
		Str("request_id", req.RequestID).
		Str("algorithm", string(algo)).
		Int("routes", len(routes)).
		Float64("cost_bps", cost).
		Msg("routing decision")

	return decision, nil
}

func midPrice(s domain.MarketSnapshot) float64 {
	if s.Bid == 0 || s.Ask == 0 {
		return s.Bid + s.Ask
	}
	return (s.Bid + s.Ask) / 2
}

// selectAlgorithm picks the execution algorithm: explicit order type takes
// priority, then the strategy tag, then VWAP by default.
func selectAlgorithm(req domain.OrderRequest) domain.RoutingAlgorithm {
	switch req.OrderType {
	case string(domain.AlgoTWAP):
		return domain.AlgoTWAP
	case string(domain.AlgoVWAP):
		return domain.AlgoVWAP
	}
	switch req.Strategy {
	case domain.StrategyAggressive:
		return domain.AlgoAggressive
	case domain.StrategyStealth:
		return domain.AlgoStealth
	}
	return domain.AlgoVWAP
}

func maxLatency(routes []domain.Route) int64 {
	var max int64
	for _, r := range routes {
		if r.ExpectedLatencyMicros > max {
			max = r.ExpectedLatencyMicros
		}
	}
	return max
}

func totalCostBps(routes []domain.Route, quantity, refPrice float64) float64 {
	if quantity <= 0 || refPrice <= 0 {
		return 0
	}
	var fees float64
	for _, r := range routes {
		fees += r.ExpectedFees
	}
	return fees / (quantity * refPrice) * 10000
}

func topNByMarketShare(venues []domain.Venue, n int) []domain.Venue {
	active := activeOnly(venues)
	sort.Slice(active, func(i, j int) bool { return active[i].Liquidity.MarketShare > active[j].Liquidity.MarketShare })
	if len(active) > n {
		active = active[:n]
	}
	return active
}

func activeOnly(venues []domain.Venue) []domain.Venue {
	out := make([]domain.Venue, 0, len(venues))
	for _, v := range venues {
		if v.Active {
			out = append(out, v)
		}
	}
	return out
}

func prioritizeCoLocation(routes []domain.Route, venues []domain.Venue) []domain.Route {
	coLocated := make(map[string]bool, len(venues))
	for _, v := range venues {
		coLocated[v.ID] = v.CoLocated
	}
	out := make([]domain.Route, len(routes))
	copy(out, routes)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := coLocated[out[i].VenueID], coLocated[out[j].VenueID]
		if ci != cj {
			return ci
		}
		return out[i].ExpectedLatencyMicros < out[j].ExpectedLatencyMicros
	})
	return out
}

func applyNetworkOptimization(routes []domain.Route, venues []domain.Venue) []domain.Route {
	optimized := make(map[string]bool, len(venues))
	for _, v := range venues {
		optimized[v.ID] = v.NetworkOptimized
	}
	out := make([]domain.Route, len(routes))
	for i, r := range routes {
		out[i] = r
		if optimized[r.VenueID] {
			out[i].ExpectedLatencyMicros = int64(float64(r.ExpectedLatencyMicros) * 0.8)
		}
	}
	return out
}
