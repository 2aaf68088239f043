// Package treasury implements the CapitalFlowManager: the high-watermark
// ratchet and the futures->spot sweep.
package treasury

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
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

// TransferResult is the outcome of one transfer attempt against the
// exchange.
type TransferResult struct {
	OK    bool
	TxID  string
	Err   error
}

// ExchangeWalletAPI is the external collaborator the sweep executes
// transfers against.
type ExchangeWalletAPI interface {
	GetFuturesBalance(ctx context.Context) (float64, error)
	GetSpotBalance(ctx context.Context) (float64, error)
	TransferToSpot(ctx context.Context, amount float64) TransferResult
}

// Manager owns the high-watermark ratchet and total-swept counter: the two
// monotonic invariants the treasury layer exists to protect.
type Manager struct {
	cfg   config.TreasuryConfig
	api   ExchangeWalletAPI
	repo  repository.TreasuryRepository
	store repository.EventStore
	bus   *events.Bus
	clock Clock
	log   zerolog.Logger

	mu             sync.Mutex
	highWatermark  float64
	totalSwept     float64
	targetAllocation float64
}

// New constructs a Manager, restoring highWatermark and totalSwept from the
// repository. A highWatermark of 0 (none persisted yet) falls back to
// cfg.InitialCapital.
func New(cfg config.TreasuryConfig, api ExchangeWalletAPI, repo repository.TreasuryRepository, store repository.EventStore, bus *events.Bus, clock Clock, log zerolog.Logger) (*Manager, error) {
	if clock == nil {
		clock = SystemClock
	}
	hw, swept, err := repo.LoadState(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load treasury state: %w", err)
	}
	if hw == 0 {
		hw = cfg.InitialCapital
	}
	return &Manager{
		cfg:           cfg,
		api:           api,
		repo:          repo,
		store:         store,
		bus:           bus,
		clock:         clock,
		log:           log.With().Str("component", "treasury_manager").Logger(),
		highWatermark: hw,
		totalSwept:    swept,
	}, nil
}

// HighWatermark returns the current ratchet value.
func (m *Manager) HighWatermark() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highWatermark
}

// TotalSwept returns the cumulative amount swept to spot.
func (m *Manager) TotalSwept() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalSwept
}

// SetTargetAllocation updates the futures-wallet target the sweep trigger
// is computed against; called whenever the AllocationEngine recomputes.
func (m *Manager) SetTargetAllocation(target float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targetAllocation = target
}

// UpdateHighWatermark advances the ratchet if equity exceeds it. This is the
// system's one regression-proof invariant: HW never decreases.
func (m *Manager) UpdateHighWatermark(ctx context.Context, equity float64) error {
	m.mu.Lock()
	if equity <= m.highWatermark {
		m.mu.Unlock()
		return nil
	}
	m.highWatermark = equity
	hw, swept := m.highWatermark, m.totalSwept
	m.mu.Unlock()

	if err := m.repo.SaveState(ctx, hw, swept); err != nil {
		return fmt.Errorf("persist high watermark: %w", err)
	}
	return nil
}

// CheckSweepConditions evaluates whether the current futures balance
// exceeds its trigger threshold and how much could be swept.
func (m *Manager) CheckSweepConditions(ctx context.Context) (domain.SweepDecision, error) {
	futuresBalance, err := m.api.GetFuturesBalance(ctx)
	if err != nil {
		return domain.SweepDecision{}, fmt.Errorf("get futures balance: %w", err)
	}

	m.mu.Lock()
	target := m.targetAllocation
	m.mu.Unlock()

	trigger := target * m.cfg.SweepThreshold
	if futuresBalance <= trigger {
		return domain.SweepDecision{ShouldSweep: false, Reason: "futures balance below sweep trigger"}, nil
	}

	excess := futuresBalance - trigger
	maxSweepable := futuresBalance - m.cfg.ReserveLimit
	if maxSweepable <= 0 {
		return domain.SweepDecision{ShouldSweep: false, Reason: "no sweepable balance above reserve limit"}, nil
	}

	amount := math.Min(excess, maxSweepable)
	return domain.SweepDecision{ShouldSweep: true, Amount: amount}, nil
}

// ExecuteSweep transfers amount from futures to spot with exponential
// backoff, up to cfg.MaxRetries attempts. On success totalSwept increases
// (monotonic invariant) and a TreasuryOperation is appended to the event
// log. On exhausted retries, state is left unmodified.
func (m *Manager) ExecuteSweep(ctx context.Context, amount float64) error {
	futuresBalance, err := m.api.GetFuturesBalance(ctx)
	if err != nil {
		return fmt.Errorf("get futures balance: %w", err)
	}
	if futuresBalance-amount < m.cfg.ReserveLimit {
		return fmt.Errorf("sweep precondition violated: futures balance %.2f minus %.2f would breach reserve limit %.2f",
			futuresBalance, amount, m.cfg.ReserveLimit)
	}

	var result TransferResult
	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		result = m.api.TransferToSpot(ctx, amount)
		if result.OK {
			break
		}
		if attempt == m.cfg.MaxRetries {
			break
		}
		delay := m.cfg.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if !result.OK {
		m.log.Warn().Float64("amount", amount).Err(result.Err).Msg("sweep exhausted retries")
		return fmt.Errorf("sweep failed after %d attempts: %w", m.cfg.MaxRetries, result.Err)
	}

	m.mu.Lock()
	m.totalSwept += amount
	hw, swept := m.highWatermark, m.totalSwept
	m.mu.Unlock()

	if err := m.repo.SaveState(ctx, hw, swept); err != nil {
		return fmt.Errorf("persist swept total: %w", err)
	}

	op := domain.TreasuryOperation{
		ID:                  uuid.NewString(),
		Timestamp:           m.clock.Now(),
		Type:                domain.TreasuryOpSweep,
		Amount:              amount,
		FromWallet:          "FUTURES",
		ToWallet:             "SPOT",
		HighWatermarkAtTime: hw,
	}
	if err := m.repo.RecordOperation(ctx, op); err != nil {
		return fmt.Errorf("record sweep operation: %w", err)
	}

	payload, err := events.Encode(events.TreasurySweepData{Operation: op})
	if err != nil {
		return fmt.Errorf("encode sweep event: %w", err)
	}
	entry, err := m.store.Append(ctx, domain.SubjectTreasurySweep, payload)
	if err != nil {
		return fmt.Errorf("append sweep event: %w", err)
	}

	if m.bus != nil {
		m.bus.Publish(events.Published{
			ID:      entry.ID,
			Subject: string(domain.SubjectTreasurySweep),
			Data:    events.TreasurySweepData{Operation: op},
		})
	}

	m.log.Info().Float64("amount", amount).Float64("total_swept", swept).Msg("sweep executed")
	return nil
}

// ShouldTriggerSweepOnEquityIncrease reports whether an equity jump from
// prev to curr exceeds the configured trigger percentage.
func (m *Manager) ShouldTriggerSweepOnEquityIncrease(prev, curr float64) bool {
	if prev <= 0 {
		return false
	}
	return (curr-prev)/prev > m.cfg.SweepTriggerPct
}

// RestoreFromReplay sets highWatermark and totalSwept directly, bypassing
// the monotonicity check. Startup recovery does not call it: the replayer
// persists its rebuilt state to the repository, which New then loads.
func (m *Manager) RestoreFromReplay(highWatermark, totalSwept float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highWatermark = highWatermark
	m.totalSwept = totalSwept
}
