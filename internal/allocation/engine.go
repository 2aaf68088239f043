// Package allocation converts equity and phase performance into a normalized
// weight vector and leverage cap.
package allocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/domain"
	"github.com/aristath/brain/internal/events"
	"github.com/aristath/brain/internal/repository"
)

// Clock abstracts wall-clock access for deterministic tests and replay.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// PerformanceSource is the subset of the PerformanceTracker the engine
// depends on, kept narrow to avoid a cyclic import between the two packages
// (§9's dependency-inversion note: performance feeds allocation, not the
// reverse).
type PerformanceSource interface {
	Modifier(ctx context.Context, phaseID domain.PhaseID) (float64, error)
}

// Engine computes the AllocationVector from current equity and phase
// performance modifiers.
type Engine struct {
	cfg   config.AllocationConfig
	perf  PerformanceSource
	repo  repository.AllocationRepository
	store repository.EventStore
	bus   *events.Bus
	clock Clock
	log   zerolog.Logger

	mu       sync.Mutex
	override *domain.AllocationOverride
	halted   bool
}

// New constructs an Engine.
func New(cfg config.AllocationConfig, perf PerformanceSource, repo repository.AllocationRepository, store repository.EventStore, bus *events.Bus, clock Clock, log zerolog.Logger) *Engine {
	if clock == nil {
		clock = SystemClock
	}
	return &Engine{
		cfg:   cfg,
		perf:  perf,
		repo:  repo,
		store: store,
		bus:   bus,
		clock: clock,
		log:   log.With().Str("component", "allocation_engine").Logger(),
	}
}

// baseWeights computes the deterministic equity-curve base weights before
// any performance modifier is applied.
func baseWeights(equity float64, cfg config.AllocationConfig) (b1, b2, b3 float64) {
	if equity <= 0 {
		return 1, 0, 0
	}
	if equity < cfg.StartP2Equity {
		return 1, 0, 0
	}

	// Phase 2 unlocks linearly between startP2 and fullP2.
	p2Frac := 1.0
	if equity < cfg.FullP2Equity {
		p2Frac = (equity - cfg.StartP2Equity) / (cfg.FullP2Equity - cfg.StartP2Equity)
	}

	if equity < cfg.StartP3Equity {
		b2 = 0.5 * p2Frac
		b1 = 1 - b2
		return b1, b2, 0
	}

	// Phase 3 unlocks above startP3; phase 2 holds its fully unlocked share.
	p3Frac := (equity - cfg.StartP3Equity) / cfg.StartP3Equity
	if p3Frac > 1 {
		p3Frac = 1
	}
	b2 = 0.5
	b3 = 0.3 * p3Frac
	b1 = 1 - b2 - b3
	return b1, b2, b3
}

// Tier resolves the equity tier for a given equity figure. Boundaries are
// inclusive of their band's upper threshold (equity=1000 is MICRO, not
// SMALL) so the cutoffs are driven by config rather than hardcoded magic
// numbers.
func Tier(equity float64, cfg config.AllocationConfig) domain.EquityTier {
	switch {
	case equity <= cfg.MicroMaxEquity:
		return domain.TierMicro
	case equity <= cfg.SmallMaxEquity:
		return domain.TierSmall
	case equity <= cfg.MediumMaxEquity:
		return domain.TierMedium
	case equity <= cfg.LargeMaxEquity:
		return domain.TierLarge
	default:
		return domain.TierInstitutional
	}
}

// Recompute runs the full allocation algorithm: base weights from the
// equity curve, scaled by each phase's performance modifier, normalized to
// sum to 1, capped by the resolved tier's max leverage. Emits
// ALLOCATION_UPDATED to the event log and publishes it on the bus.
func (e *Engine) Recompute(ctx context.Context, equity float64) (domain.AllocationVector, error) {
	if override, halted := e.activeLock(); halted {
		return e.emit(ctx, domain.AllocationVector{Equity: equity, Timestamp: e.clock.Now()})
	} else if override != nil {
		vector := override.Allocation
		vector.Equity = equity
		vector.Timestamp = e.clock.Now()
		return e.emit(ctx, vector)
	}

	b1, b2, b3 := baseWeights(equity, e.cfg)

	m1, err := e.perf.Modifier(ctx, domain.PhaseScavenger)
	if err != nil {
		return domain.AllocationVector{}, fmt.Errorf("phase1 modifier: %w", err)
	}
	m2, err := e.perf.Modifier(ctx, domain.PhaseHunter)
	if err != nil {
		return domain.AllocationVector{}, fmt.Errorf("phase2 modifier: %w", err)
	}
	m3, err := e.perf.Modifier(ctx, domain.PhaseSentinel)
	if err != nil {
		return domain.AllocationVector{}, fmt.Errorf("phase3 modifier: %w", err)
	}

	w1raw, w2raw, w3raw := b1*m1, b2*m2, b3*m3
	sum := w1raw + w2raw + w3raw

	var w1, w2, w3 float64
	if sum <= 0 {
		// Degenerate case (e.g. equity=0 already handled by baseWeights, but
		// a pathological all-zero modifier set must still fall back safely).
		w1, w2, w3 = 1, 0, 0
	} else {
		w1, w2, w3 = w1raw/sum, w2raw/sum, w3raw/sum
	}

	tier := Tier(equity, e.cfg)
	maxLeverage := e.cfg.LeverageCaps[string(tier)]

	vector := domain.AllocationVector{
		W1:          w1,
		W2:          w2,
		W3:          w3,
		Tier:        tier,
		MaxLeverage: maxLeverage,
		Equity:      equity,
		Timestamp:   e.clock.Now(),
	}

	return e.emit(ctx, vector)
}

// activeLock reports whether an unexpired admin override or a risk halt is
// currently locking the allocation vector. A halt takes priority over any
// override.
func (e *Engine) activeLock() (*domain.AllocationOverride, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted {
		return nil, true
	}
	if e.override != nil && e.clock.Now().After(e.override.ExpiresAt) {
		e.override = nil
	}
	return e.override, false
}

// ExpireStaleOverride proactively clears an override past its ExpiresAt,
// reporting whether one was cleared. Recompute already applies this check
// lazily on every call; this method exists so a background scheduler tick
// can clear (and log) an expiry even when nothing is actively recomputing.
func (e *Engine) ExpireStaleOverride() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.override == nil || !e.clock.Now().After(e.override.ExpiresAt) {
		return false
	}
	e.override = nil
	return true
}

// SetOverride locks the allocation vector to override.Allocation until
// override.ExpiresAt, per the /admin/override control endpoint.
func (e *Engine) SetOverride(override domain.AllocationOverride) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.override = &override
}

// Halt forces the allocation vector to (0,0,0) until explicitly cleared,
// per the /risk/halt control endpoint. Overrides are superseded while
// halted.
func (e *Engine) Halt(ctx context.Context, operatorID, reason string) (domain.AllocationVector, error) {
	e.mu.Lock()
	e.halted = true
	e.mu.Unlock()
	e.log.Warn().Str("operator_id", operatorID).Str("reason", reason).Msg("risk halt engaged: allocation forced to zero")
	return e.Recompute(ctx, 0)
}

// ClearHalt lifts a prior Halt, allowing Recompute to resume normal
// computation (or a still-active override) on the next call.
func (e *Engine) ClearHalt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.halted = false
}

// emit persists and publishes vector, the tail shared by every Recompute
// path (normal computation, override lock, halt).
func (e *Engine) emit(ctx context.Context, vector domain.AllocationVector) (domain.AllocationVector, error) {
	if err := e.repo.SaveSnapshot(ctx, vector); err != nil {
		return domain.AllocationVector{}, fmt.Errorf("save allocation snapshot: %w", err)
	}

	payload, err := events.Encode(events.AllocationUpdatedData{Vector: vector})
	if err != nil {
		return domain.AllocationVector{}, fmt.Errorf("encode allocation event: %w", err)
	}
	entry, err := e.store.Append(ctx, domain.SubjectAllocationUpdated, payload)
	if err != nil {
		return domain.AllocationVector{}, fmt.Errorf("append allocation event: %w", err)
	}

	if e.bus != nil {
		e.bus.Publish(events.Published{
			ID:      entry.ID,
			Subject: string(domain.SubjectAllocationUpdated),
			Data:    events.AllocationUpdatedData{Vector: vector},
		})
	}

	e.log.Info().
		Float64("w1", vector.W1).Float64("w2", vector.W2).Float64("w3", vector.W3).
		Str("tier", string(vector.Tier)).Float64("equity", vector.Equity).
		Msg("allocation recomputed")

	return vector, nil
}
