package di

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/domain"
	"github.com/aristath/brain/internal/repository"
	"github.com/aristath/brain/internal/risk"
	"github.com/aristath/brain/internal/router"
)

// positionBook is a read-through cache over PositionRepository: the HFT
// pipeline's hot path evaluates risk against it on every envelope and
// cannot afford a database round trip per signal.
type positionBook struct {
	mu        sync.RWMutex
	repo      repository.PositionRepository
	positions map[string]domain.Position
	lastLoad  time.Time
	ttl       time.Duration
}

func newPositionBook(repo repository.PositionRepository, seed map[string]domain.Position) *positionBook {
	b := &positionBook{repo: repo, positions: seed, ttl: time.Second}
	if seed == nil {
		b.positions = make(map[string]domain.Position)
	} else {
		b.lastLoad = time.Now()
	}
	return b
}

// Snapshot returns the cached position set, refreshing from the repository
// if the cache has gone stale.
func (b *positionBook) Snapshot(ctx context.Context) map[string]domain.Position {
	b.mu.RLock()
	fresh := time.Since(b.lastLoad) < b.ttl
	current := b.positions
	b.mu.RUnlock()
	if fresh {
		return current
	}

	all, err := b.repo.AllPositions(ctx)
	if err != nil {
		return current
	}
	next := make(map[string]domain.Position, len(all))
	for _, p := range all {
		next[p.Symbol] = p
	}

	b.mu.Lock()
	b.positions = next
	b.lastLoad = time.Now()
	b.mu.Unlock()
	return next
}

// equitySource supplies the current account equity the risk gates and
// allocation recompute both scale against.
type equitySource interface {
	CurrentEquity(ctx context.Context) (float64, error)
}

// allocationCapSource supplies the leverage cap the risk gates enforce,
// read from the AllocationEngine's latest persisted vector rather than
// recomputing it on every signal.
type allocationCapSource interface {
	LoadSnapshot(ctx context.Context) (*domain.AllocationVector, error)
}

// riskGate is the hft.Stage that gates every admitted intent through the
// RiskGuardian before it is allowed to reach the routing stage. A signal
// the guardian rejects is dropped (envelope.Dropped=true); it never reaches
// the sink, so it never consumes a routing decision.
func riskGate(guardian *risk.Guardian, book *positionBook, equity equitySource, capSource allocationCapSource, log zerolog.Logger) func(*domain.SignalEnvelope) bool {
	return func(env *domain.SignalEnvelope) bool {
		ctx := context.Background()
		if env.Intent == nil {
			return false
		}

		currentEquity, err := equity.CurrentEquity(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("risk gate: failed to read current equity, dropping signal")
			env.DropReason = "equity unavailable"
			return false
		}

		leverageCap := currentEquity // degrades to an uncapped gate if no vector exists yet
		if vector, err := capSource.LoadSnapshot(ctx); err == nil && vector != nil {
			leverageCap = vector.MaxLeverage
		}

		decision, err := guardian.Evaluate(ctx, *env.Intent, book.Snapshot(ctx), currentEquity, leverageCap)
		if err != nil {
			log.Error().Err(err).Str("intent_id", env.Intent.ID).Msg("risk gate: evaluation failed")
			env.DropReason = "evaluation error"
			return false
		}
		if !decision.Approved {
			env.DropReason = decision.Reason
			return false
		}
		env.Intent.RequestedSize = decision.AdjustedSize
		return true
	}
}

// routingSink is the hft.Sink that converts every surviving envelope into a
// RoutingDecision and logs it. Order execution against the venue itself is
// out of scope: the Brain's HFT pipeline produces the routing plan the
// execution layer consumes, it does not place the order.
func routingSink(rt *router.Router, log zerolog.Logger) func([]*domain.SignalEnvelope) {
	return func(batch []*domain.SignalEnvelope) {
		ctx := context.Background()
		for _, env := range batch {
			if env.Intent == nil {
				continue
			}
			req := domain.OrderRequest{
				RequestID:   env.Intent.ID,
				Symbol:      env.Intent.Symbol,
				Side:        env.Intent.Side,
				Quantity:    env.Intent.RequestedSize,
				MaxSlippage: 0.001,
			}
			decision, err := rt.Route(ctx, req)
			if err != nil {
				log.Warn().Err(err).Str("intent_id", env.Intent.ID).Msg("routing failed")
				continue
			}
			log.Info().
				Str("intent_id", env.Intent.ID).
				Str("algorithm", string(decision.Algorithm)).
				Int("routes", len(decision.Routes)).
				Float64("expected_cost_bps", decision.TotalExpectedCost).
				Msg("routing decision produced")
		}
	}
}
