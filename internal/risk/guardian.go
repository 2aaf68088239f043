// Package risk implements the RiskGuardian: the single veto point between
// an IntentSignal and order routing.
package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/domain"
	"github.com/aristath/brain/internal/events"
	"github.com/aristath/brain/internal/repository"
	"github.com/aristath/brain/pkg/formulas"
)

// Clock abstracts wall-clock access for deterministic tests and replay.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// positionView is the minimal snapshot of an open position the Guardian
// needs, kept separate from domain.Position so callers can pass a plain
// read-only snapshot without sharing the live position map.
type positionView struct {
	side        string // domain.Side: BUY-equivalent LONG or SELL-equivalent SHORT
	notional    float64
	signedDelta float64
	leverage    float64
}

func positionViewsFrom(positions map[string]domain.Position) map[string]positionView {
	out := make(map[string]positionView, len(positions))
	for symbol, p := range positions {
		side := string(domain.SideBuy)
		if p.Side == domain.PositionShort {
			side = string(domain.SideSell)
		}
		out[symbol] = positionView{
			side:        side,
			notional:    p.Notional(),
			signedDelta: p.SignedDelta(),
			leverage:    p.Leverage,
		}
	}
	return out
}

// Guardian gates every IntentSignal against leverage, correlation,
// volatility/tail-risk, expectancy, and stop-distance constraints.
type Guardian struct {
	cfg          config.RiskConfig
	store        repository.EventStore
	decisionRepo repository.DecisionRepository
	bus          *events.Bus
	clock        Clock
	log          zerolog.Logger

	mu        sync.RWMutex
	history   map[string]*ringBuffer
	corrCache *correlationCache
}

// New constructs a Guardian.
func New(cfg config.RiskConfig, store repository.EventStore, decisionRepo repository.DecisionRepository, bus *events.Bus, clock Clock, log zerolog.Logger) *Guardian {
	if clock == nil {
		clock = SystemClock
	}
	return &Guardian{
		cfg:          cfg,
		store:        store,
		decisionRepo: decisionRepo,
		bus:          bus,
		clock:        clock,
		log:          log.With().Str("component", "risk_guardian").Logger(),
		history:      make(map[string]*ringBuffer),
		corrCache:    newCorrelationCache(cfg.CorrelationTTL, clock),
	}
}

// ObservePrice feeds a market tick into the symbol's price ring buffer,
// backing the correlation and derived-volatility computations.
func (g *Guardian) ObservePrice(symbol string, price float64, ts time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	buf, ok := g.history[symbol]
	if !ok {
		n := g.cfg.CorrelationRingBufferN
		if n <= 0 {
			n = 100
		}
		buf = newRingBuffer(n)
		g.history[symbol] = buf
	}
	buf.push(price, ts)
}

// Evaluate runs every gate in spec order against intent, given the current
// open positions, account equity, and the allocation-derived leverage cap
// for the intent's phase. The first failing gate wins; gate 1 can
// short-circuit straight to approval.
func (g *Guardian) Evaluate(ctx context.Context, intent domain.IntentSignal, positions map[string]domain.Position, equity, allocationCap float64) (domain.RiskDecision, error) {
	views := positionViewsFrom(positions)
	portfolioDelta := 0.0
	for _, v := range views {
		portfolioDelta += v.signedDelta
	}

	price := resolvePrice(intent, views)

	// Gate 1: Phase-3 hedge short-circuit.
	if intent.PhaseID == domain.PhaseID(g.cfg.Phase3ID) && price > 0 {
		signalDelta := intent.RequestedSize * price
		if intent.Side == domain.SideSell {
			signalDelta = -signalDelta
		}
		newDelta := portfolioDelta + signalDelta
		if math.Abs(newDelta) < math.Abs(portfolioDelta) {
			decision := domain.RiskDecision{
				Approved:     true,
				Reason:       "phase3 hedge reduces portfolio delta",
				AdjustedSize: intent.RequestedSize,
				RiskMetrics: domain.RiskMetrics{
					PortfolioDelta: newDelta,
				},
			}
			return g.finalize(ctx, intent, decision)
		}
	}

	// Gate 2: stop distance.
	volatility := resolveVolatility(g, intent, price)
	if intent.StopLossPrice != nil && volatility != nil && price > 0 {
		distance := math.Abs(price - *intent.StopLossPrice)
		if distance < *volatility*g.cfg.MinStopMultiplier {
			return g.finalize(ctx, intent, rejected(domain.ReasonStopDistance))
		}
	}

	// Gate 3: policy vetoes.
	projectedNotional := intent.RequestedSize * price
	if projectedNotional > g.cfg.MaxPositionNotional {
		return g.finalize(ctx, intent, rejected(domain.ReasonMaxNotional))
	}
	if len(g.cfg.SymbolWhitelist) > 0 && !contains(g.cfg.SymbolWhitelist, intent.Symbol) {
		return g.finalize(ctx, intent, rejected(domain.ReasonSymbolNotAllowed))
	}

	// Gate 4: expectancy.
	if g.cfg.CostVetoEnabled && intent.EntryPrice != nil && intent.TargetPrice != nil && intent.StopLossPrice != nil {
		p := intent.Confidence / 100
		profit := math.Abs(*intent.TargetPrice - *intent.EntryPrice)
		loss := math.Abs(*intent.EntryPrice - *intent.StopLossPrice)
		ev := p*profit - (1-p)*loss
		cost := *intent.EntryPrice * g.cfg.BaseFeeBps / 10000
		if ev < cost*g.cfg.MinExpectancyRatio {
			return g.finalize(ctx, intent, rejected(domain.ReasonExpectancy))
		}
	}

	// Gate 5: latency veto.
	if intent.LatencyProfile != nil {
		e2e := time.Duration(intent.LatencyProfile.EndToEndMillis) * time.Millisecond
		if e2e > g.cfg.MaxEndToEndLatency {
			return g.finalize(ctx, intent, rejected(domain.ReasonLatencyVeto))
		}
	}

	// Gate 6: PowerLaw / regime vetoes.
	if intent.Regime == domain.RegimeExpanding && intent.PhaseID == domain.PhaseID(g.cfg.Phase1ID) {
		return g.finalize(ctx, intent, rejected(domain.ReasonRegimeVeto))
	}

	existing := views[intent.Symbol]
	projectedLeverage := computeProjectedLeverage(intent, existing, price, equity)

	if intent.TailExponent != nil && *intent.TailExponent < g.cfg.TailExponentThreshold && projectedLeverage > g.cfg.TailLeverageCap {
		return g.finalize(ctx, intent, rejected(domain.ReasonTailRisk))
	}

	// Gate 7: leverage cap.
	cap := allocationCap
	if g.cfg.MaxAccountLeverage < cap {
		cap = g.cfg.MaxAccountLeverage
	}
	if projectedLeverage > cap {
		return g.finalize(ctx, intent, rejected(domain.ReasonLeverage))
	}

	metrics := domain.RiskMetrics{
		CurrentLeverage:   existing.leverage,
		ProjectedLeverage: projectedLeverage,
		PortfolioDelta:    portfolioDelta,
	}

	adjustedSize := intent.RequestedSize

	// Gate 8: correlation adjustment (non-veto).
	maxCorr, breach := g.maxCorrelationAgainstPositions(intent.Symbol, string(intent.Side), views)
	metrics.MaxCorrelation = maxCorr
	if breach {
		adjustedSize *= 1 - g.cfg.CorrelationPenalty
	}

	// Gate 9: latency soft penalty.
	if intent.LatencyProfile != nil {
		e2e := intent.LatencyProfile.EndToEndMillis
		if e2e > 200 && e2e <= 500 {
			adjustedSize *= 0.75
		}
	}

	// Gate 10: PowerLaw soft penalty.
	if intent.TailExponent != nil && *intent.TailExponent < 3.0 {
		factor := clamp(0.6*(*intent.TailExponent)-0.8, 0, 1)
		adjustedSize *= factor
	}

	// The soft penalties above can compound to a negligible or zero size;
	// an approval must never carry a size that can't actually be routed.
	if adjustedSize <= 0 {
		return g.finalize(ctx, intent, rejected(domain.ReasonSizeExhausted))
	}

	decision := domain.RiskDecision{
		Approved:     true,
		Reason:       "approved",
		AdjustedSize: adjustedSize,
		RiskMetrics:  metrics,
	}
	return g.finalize(ctx, intent, decision)
}

func (g *Guardian) finalize(ctx context.Context, intent domain.IntentSignal, decision domain.RiskDecision) (domain.RiskDecision, error) {
	if err := g.decisionRepo.SaveDecision(ctx, intent.ID, decision); err != nil {
		return domain.RiskDecision{}, fmt.Errorf("save risk decision: %w", err)
	}

	payload, err := events.Encode(events.RiskDecisionData{IntentID: intent.ID, Decision: decision})
	if err != nil {
		return domain.RiskDecision{}, fmt.Errorf("encode risk decision event: %w", err)
	}
	entry, err := g.store.Append(ctx, domain.SubjectRiskDecision, payload)
	if err != nil {
		return domain.RiskDecision{}, fmt.Errorf("append risk decision event: %w", err)
	}

	if g.bus != nil {
		g.bus.Publish(events.Published{
			ID:      entry.ID,
			Subject: string(domain.SubjectRiskDecision),
			Data:    events.RiskDecisionData{IntentID: intent.ID, Decision: decision},
		})
	}

	g.log.Info().
		Str("intent_id", intent.ID).
		Bool("approved", decision.Approved).
		Str("reason", decision.Reason).
		Float64("adjusted_size", decision.AdjustedSize).
		Msg("risk decision")

	return decision, nil
}

func rejected(reason string) domain.RiskDecision {
	return domain.RiskDecision{Approved: false, Reason: reason, AdjustedSize: 0}
}

func resolvePrice(intent domain.IntentSignal, views map[string]positionView) float64 {
	if intent.EntryPrice != nil {
		return *intent.EntryPrice
	}
	return 0
}

func resolveVolatility(g *Guardian, intent domain.IntentSignal, price float64) *float64 {
	if intent.Volatility != nil {
		return intent.Volatility
	}
	g.mu.RLock()
	buf, ok := g.history[intent.Symbol]
	g.mu.RUnlock()
	if !ok {
		return nil
	}
	derived := formulas.DerivedVolatility(buf.closes(), 14)
	if derived == 0 {
		return nil
	}
	return &derived
}

// computeProjectedLeverage respects whether the incoming signal adds to,
// reduces, or flips the existing same-symbol position.
func computeProjectedLeverage(intent domain.IntentSignal, existing positionView, price, equity float64) float64 {
	if equity <= 0 || price <= 0 {
		return 0
	}
	signedExisting := existing.notional
	if existing.side == string(domain.SideSell) {
		signedExisting = -signedExisting
	}

	signalNotional := intent.RequestedSize * price
	if intent.Side == domain.SideSell {
		signalNotional = -signalNotional
	}

	newSigned := signedExisting + signalNotional
	return math.Abs(newSigned) / equity
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
