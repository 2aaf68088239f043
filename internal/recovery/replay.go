// Package recovery rebuilds the Brain's in-memory read models
// deterministically by scanning the durable event log from an empty state,
// the one path every restart and every explicit reset must take.
package recovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/domain"
	"github.com/aristath/brain/internal/events"
	"github.com/aristath/brain/internal/repository"
)

const defaultBatchSize = 1000

// State is the complete set of read-model projections the replay invariant
// covers: AllocationVector, HighWatermark, totalSwept, and the open
// position set must come out byte-identical across any two replays of the
// same log.
type State struct {
	Allocation    domain.AllocationVector
	HighWatermark float64
	TotalSwept    float64
	Positions     map[string]domain.Position

	initialEquity float64
	lastEventID   int64
}

// LastEventID is the id of the last entry applied, used to resume streaming
// from a live tail after an initial replay.
func (s State) LastEventID() int64 { return s.lastEventID }

// Replayer streams the event log and applies each entry to a fresh State
// without touching the bus or any external collaborator: recovery never
// re-publishes and never calls out to an exchange.
type Replayer struct {
	store        repository.EventStore
	allocRepo    repository.AllocationRepository
	treasuryRepo repository.TreasuryRepository
	positionRepo repository.PositionRepository
	cfg          config.Config
	log          zerolog.Logger
}

// New constructs a Replayer.
func New(
	store repository.EventStore,
	allocRepo repository.AllocationRepository,
	treasuryRepo repository.TreasuryRepository,
	positionRepo repository.PositionRepository,
	cfg config.Config,
	log zerolog.Logger,
) *Replayer {
	return &Replayer{
		store:        store,
		allocRepo:    allocRepo,
		treasuryRepo: treasuryRepo,
		positionRepo: positionRepo,
		cfg:          cfg,
		log:          log.With().Str("component", "recovery").Logger(),
	}
}

// Replay streams the event log in ascending id order, batches of batchSize
// (defaultBatchSize if <= 0), applying every entry to a fresh State. If the
// log is empty it initializes State from configured defaults. On
// completion it persists a consolidated snapshot so a subsequent cold
// start can skip straight to LoadSnapshot.
func (r *Replayer) Replay(ctx context.Context, batchSize int) (State, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	state := State{
		HighWatermark: r.cfg.Treasury.InitialCapital,
		initialEquity: r.cfg.Treasury.InitialCapital,
		Positions:     make(map[string]domain.Position),
	}

	var cumulativePnL float64
	fromID := int64(0)
	seen := 0

	for {
		entries, err := r.store.StreamFrom(ctx, fromID, batchSize)
		if err != nil {
			return state, fmt.Errorf("recovery: stream event log: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			data, err := events.Decode(entry.Subject, entry.Payload)
			if err != nil {
				return state, fmt.Errorf("recovery: decode entry %d: %w", entry.ID, err)
			}
			apply(&state, data, &cumulativePnL)
			state.lastEventID = entry.ID
			fromID = entry.ID + 1
			seen++
		}

		if len(entries) < batchSize {
			break
		}
	}

	r.log.Info().Int("events_applied", seen).Int64("last_id", state.lastEventID).
		Float64("high_watermark", state.HighWatermark).Float64("total_swept", state.TotalSwept).
		Int("open_positions", len(state.Positions)).Msg("replay complete")

	if err := r.persist(ctx, state); err != nil {
		return state, fmt.Errorf("recovery: persist snapshot: %w", err)
	}
	return state, nil
}

// apply dispatches one decoded event onto state by subject. Only the three
// subjects that carry read-model-relevant facts (allocation, fill, sweep)
// mutate state; intent/decision/breaker/override events are audit-only
// from the replay's point of view and are no-ops here.
func apply(state *State, data events.EventData, cumulativePnL *float64) {
	switch v := data.(type) {
	case events.AllocationUpdatedData:
		state.Allocation = v.Vector

	case events.ExecutionFillData:
		applyFill(state, v.Fill, cumulativePnL)

	case events.TreasurySweepData:
		if v.Operation.Type == domain.TreasuryOpSweep {
			state.TotalSwept += v.Operation.Amount
		}

	case events.IntentReceivedData, events.RiskDecisionData,
		events.BreakerTripData, events.BreakerResetData, events.ConfigOverrideData:
		// no read-model projection carried by the replay invariant
	}
}

func applyFill(state *State, f domain.Fill, cumulativePnL *float64) {
	*cumulativePnL += f.PnL
	equity := state.initialEquity + *cumulativePnL
	if equity > state.HighWatermark {
		state.HighWatermark = equity
	}

	existing, ok := state.Positions[f.Symbol]
	if !ok {
		side := domain.PositionLong
		if f.Side == domain.SideSell {
			side = domain.PositionShort
		}
		state.Positions[f.Symbol] = domain.Position{
			Symbol:     f.Symbol,
			Side:       side,
			Size:       f.Size,
			EntryPrice: f.Price,
			MarkPrice:  f.Price,
		}
		return
	}

	fillIsLong := f.Side == domain.SideBuy
	positionIsLong := existing.Side == domain.PositionLong

	if fillIsLong == positionIsLong {
		totalSize := existing.Size + f.Size
		existing.EntryPrice = (existing.EntryPrice*existing.Size + f.Price*f.Size) / totalSize
		existing.Size = totalSize
		existing.MarkPrice = f.Price
		state.Positions[f.Symbol] = existing
		return
	}

	remaining := existing.Size - f.Size
	switch {
	case remaining > 0:
		existing.Size = remaining
		existing.MarkPrice = f.Price
		state.Positions[f.Symbol] = existing
	case remaining < 0:
		flipped := existing
		if positionIsLong {
			flipped.Side = domain.PositionShort
		} else {
			flipped.Side = domain.PositionLong
		}
		flipped.Size = -remaining
		flipped.EntryPrice = f.Price
		flipped.MarkPrice = f.Price
		state.Positions[f.Symbol] = flipped
	default:
		delete(state.Positions, f.Symbol)
	}
}

// persist writes the replayed State to the latest-snapshot tables so a
// subsequent process start can skip replay via LoadSnapshot.
func (r *Replayer) persist(ctx context.Context, state State) error {
	if state.Allocation != (domain.AllocationVector{}) {
		if err := r.allocRepo.SaveSnapshot(ctx, state.Allocation); err != nil {
			return err
		}
	}
	if err := r.treasuryRepo.SaveState(ctx, state.HighWatermark, state.TotalSwept); err != nil {
		return err
	}
	for _, pos := range state.Positions {
		if err := r.positionRepo.SavePosition(ctx, pos); err != nil {
			return err
		}
	}
	return nil
}
