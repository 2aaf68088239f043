package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/allocation"
	"github.com/aristath/brain/internal/domain"
	"github.com/aristath/brain/internal/treasury"
)

// EquitySource resolves the current account equity, needed by the treasury
// maintenance job to drive the high-watermark ratchet independently of the
// order-fill path.
type EquitySource interface {
	CurrentEquity(ctx context.Context) (float64, error)
}

// SweepJob evaluates the treasury's sweep conditions and executes a sweep
// when the futures balance has drifted past its trigger threshold.
type SweepJob struct {
	treasury *treasury.Manager
	log      zerolog.Logger
}

// NewSweepJob constructs a SweepJob.
func NewSweepJob(mgr *treasury.Manager, log zerolog.Logger) *SweepJob {
	return &SweepJob{treasury: mgr, log: log.With().Str("job", "treasury_sweep").Logger()}
}

func (j *SweepJob) Name() string { return "treasury_sweep_check" }

func (j *SweepJob) Run() error {
	ctx := context.Background()
	decision, err := j.treasury.CheckSweepConditions(ctx)
	if err != nil {
		return err
	}
	if !decision.ShouldSweep {
		j.log.Debug().Str("reason", decision.Reason).Msg("sweep conditions not met")
		return nil
	}
	j.log.Info().Float64("amount", decision.Amount).Msg("sweep conditions met, executing")
	return j.treasury.ExecuteSweep(ctx, decision.Amount)
}

// HighWatermarkJob ratchets the treasury's high watermark against the
// account's current equity; the fill path does not call
// UpdateHighWatermark, so this job is what advances it at runtime.
type HighWatermarkJob struct {
	treasury *treasury.Manager
	equity   EquitySource
	log      zerolog.Logger
}

// NewHighWatermarkJob constructs a HighWatermarkJob.
func NewHighWatermarkJob(mgr *treasury.Manager, equity EquitySource, log zerolog.Logger) *HighWatermarkJob {
	return &HighWatermarkJob{treasury: mgr, equity: equity, log: log.With().Str("job", "high_watermark").Logger()}
}

func (j *HighWatermarkJob) Name() string { return "high_watermark_maintenance" }

func (j *HighWatermarkJob) Run() error {
	ctx := context.Background()
	equity, err := j.equity.CurrentEquity(ctx)
	if err != nil {
		return err
	}
	return j.treasury.UpdateHighWatermark(ctx, equity)
}

// OverrideExpiryJob clears an admin override past its ExpiresAt so a
// forgotten override doesn't silently lock allocation forever between
// Recompute calls.
type OverrideExpiryJob struct {
	engine *allocation.Engine
	log    zerolog.Logger
}

// NewOverrideExpiryJob constructs an OverrideExpiryJob.
func NewOverrideExpiryJob(engine *allocation.Engine, log zerolog.Logger) *OverrideExpiryJob {
	return &OverrideExpiryJob{engine: engine, log: log.With().Str("job", "override_expiry").Logger()}
}

func (j *OverrideExpiryJob) Name() string { return "admin_override_expiry" }

func (j *OverrideExpiryJob) Run() error {
	if j.engine.ExpireStaleOverride() {
		j.log.Info().Msg("admin override expired, allocation resumes normal computation")
	}
	return nil
}

// BreakerSnapshot is the subset of hft.Processor the persistence job reads
// every tick; kept narrow so this package never imports hft directly.
type BreakerSnapshot interface {
	BreakerState() domain.BreakerState
	BreakerConsecutiveFailures() int
	BreakerReason() string
}

// BreakerRepository persists the circuit breaker's state machine so a
// restart doesn't silently forget a trip.
type BreakerRepository interface {
	SaveState(ctx context.Context, state domain.BreakerState, consecutiveFailures int, reason string) error
}

// BreakerPersistJob periodically snapshots the HFT circuit breaker's state
// machine to durable storage, independently of the in-memory state the
// processor otherwise only ever holds for the life of the process.
type BreakerPersistJob struct {
	processor BreakerSnapshot
	repo      BreakerRepository
	log       zerolog.Logger
}

// NewBreakerPersistJob constructs a BreakerPersistJob.
func NewBreakerPersistJob(processor BreakerSnapshot, repo BreakerRepository, log zerolog.Logger) *BreakerPersistJob {
	return &BreakerPersistJob{processor: processor, repo: repo, log: log.With().Str("job", "breaker_persist").Logger()}
}

func (j *BreakerPersistJob) Name() string { return "breaker_state_persist" }

func (j *BreakerPersistJob) Run() error {
	return j.repo.SaveState(context.Background(), j.processor.BreakerState(), j.processor.BreakerConsecutiveFailures(), j.processor.BreakerReason())
}
