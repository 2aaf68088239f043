package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/allocation"
	"github.com/aristath/brain/internal/backup"
	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/events"
	"github.com/aristath/brain/internal/exchange"
	"github.com/aristath/brain/internal/hft"
	"github.com/aristath/brain/internal/marketdata"
	"github.com/aristath/brain/internal/performance"
	"github.com/aristath/brain/internal/recovery"
	"github.com/aristath/brain/internal/repository/sqlite"
	"github.com/aristath/brain/internal/risk"
	"github.com/aristath/brain/internal/router"
	"github.com/aristath/brain/internal/scheduler"
	"github.com/aristath/brain/internal/server"
	"github.com/aristath/brain/internal/telemetry"
	"github.com/aristath/brain/internal/treasury"
)

const eventBusCapacity = 1024

// Wire constructs every dependency in order: database, repositories, event
// replay, engines, the HFT pipeline, then the scheduler/backup/telemetry
// and HTTP surface that sit on top of them. Any failure tears down what was
// already opened and returns the error; there is no partially-wired
// Container handed back to the caller.
func Wire(cfg *config.Config, log zerolog.Logger) (c *Container, err error) {
	c = &Container{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if c.DB, err = sqlite.Open(cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("di: open database: %w", err)
	}

	c.EventStore = sqlite.NewEventStore(c.DB)
	c.AllocationRepo = sqlite.NewAllocationRepository(c.DB)
	c.PerformanceRepo = sqlite.NewPerformanceRepository(c.DB)
	c.DecisionRepo = sqlite.NewDecisionRepository(c.DB)
	c.TreasuryRepo = sqlite.NewTreasuryRepository(c.DB)
	c.BreakerRepo = sqlite.NewBreakerRepository(c.DB)
	c.PositionRepo = sqlite.NewPositionRepository(c.DB)

	c.Bus = events.NewBus(eventBusCapacity, log)

	replayer := recovery.New(c.EventStore, c.AllocationRepo, c.TreasuryRepo, c.PositionRepo, *cfg, log)
	if c.RecoveredState, err = replayer.Replay(context.Background(), 0); err != nil {
		return nil, fmt.Errorf("di: replay event log: %w", err)
	}
	log.Info().
		Int64("last_event_id", c.RecoveredState.LastEventID()).
		Int("open_positions", len(c.RecoveredState.Positions)).
		Msg("state recovery complete")

	c.Performance = performance.New(c.PerformanceRepo, cfg.Performance, nil, log)
	c.Allocation = allocation.New(cfg.Allocation, c.Performance, c.AllocationRepo, c.EventStore, c.Bus, nil, log)
	c.Risk = risk.New(cfg.Risk, c.EventStore, c.DecisionRepo, c.Bus, nil, log)

	c.Wallet = exchange.NewBinanceWallet(cfg.ExchangeAPIKey, cfg.ExchangeAPISecret, cfg.ExchangeAsset, log)
	c.Equity = newWalletEquitySource(c.Wallet)

	c.Treasury, err = treasury.New(cfg.Treasury, c.Wallet, c.TreasuryRepo, c.EventStore, c.Bus, nil, log)
	if err != nil {
		return nil, fmt.Errorf("di: construct treasury manager: %w", err)
	}

	c.Feed = marketdata.New(cfg.MarketDataURL, nil, log)
	venues := newStaticVenues(cfg.VenueIDs)
	c.Router = router.New(cfg.Router, venues, c.Feed, nil, log)

	book := newPositionBook(c.PositionRepo, c.RecoveredState.Positions)
	stages := []hft.Stage{riskGate(c.Risk, book, c.Equity, c.AllocationRepo, log)}
	sink := hft.Sink(routingSink(c.Router, log))
	c.Processor = hft.New(cfg.HFT, stages, sink, nil, log)
	if breakerState, consecutiveFailures, reason, loadErr := c.BreakerRepo.LoadState(context.Background()); loadErr == nil && breakerState != "" {
		c.Processor.RestoreBreakerState(breakerState, consecutiveFailures, reason)
		log.Info().Str("state", string(breakerState)).Msg("restored circuit breaker state from persistence")
	}

	c.processorCtx, c.processorCancel = context.WithCancel(context.Background())
	go c.Processor.Run(c.processorCtx)

	if err = c.Feed.Start(); err != nil {
		log.Warn().Err(err).Msg("market data feed did not connect on startup, retrying in background")
	}

	c.Scheduler = scheduler.New(log)
	if err = c.Scheduler.AddJob("0 */5 * * * *", scheduler.NewSweepJob(c.Treasury, log)); err != nil {
		return nil, fmt.Errorf("di: register sweep job: %w", err)
	}
	if err = c.Scheduler.AddJob("0 * * * * *", scheduler.NewHighWatermarkJob(c.Treasury, c.Equity, log)); err != nil {
		return nil, fmt.Errorf("di: register high watermark job: %w", err)
	}
	if err = c.Scheduler.AddJob("0 */1 * * * *", scheduler.NewOverrideExpiryJob(c.Allocation, log)); err != nil {
		return nil, fmt.Errorf("di: register override expiry job: %w", err)
	}
	if err = c.Scheduler.AddJob("*/10 * * * * *", scheduler.NewBreakerPersistJob(c.Processor, c.BreakerRepo, log)); err != nil {
		return nil, fmt.Errorf("di: register breaker persist job: %w", err)
	}
	c.Scheduler.Start()

	if cfg.S3Bucket != "" {
		s3Client, s3Err := backup.NewS3Client(context.Background(), cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint, cfg.S3AccessKeyID, cfg.S3SecretAccessKey)
		if s3Err != nil {
			return nil, fmt.Errorf("di: construct backup client: %w", s3Err)
		}
		c.Archiver = backup.NewArchiver(s3Client, cfg.DatabasePath, "./data/staging", log)
		if err = c.Scheduler.AddJob(fmt.Sprintf("0 0 */%d * * *", cfg.BackupIntervalHours), backupJob{archiver: c.Archiver, retentionDays: cfg.BackupRetentionDays, log: log}); err != nil {
			return nil, fmt.Errorf("di: register backup job: %w", err)
		}
	}

	reporter := telemetry.NewReporter(log)
	c.Monitor = telemetry.NewMonitor(reporter, c.Processor, log)
	c.Monitor.Start(30 * time.Second)

	c.HTTPServer = server.New(server.Config{
		Log:             log,
		Port:            cfg.Port,
		DevMode:         cfg.DevMode,
		Auth:            cfg.Auth,
		AllocationEngine: c.Allocation,
		Treasury:        c.Treasury,
		Processor:       c.Processor,
		Performance:     c.Performance,
		AllocationRepo:  c.AllocationRepo,
		PositionRepo:    c.PositionRepo,
		DecisionRepo:    c.DecisionRepo,
		TreasuryRepo:    c.TreasuryRepo,
	})

	log.Info().Msg("dependency wiring complete")
	return c, nil
}

// backupJob adapts Archiver into the scheduler.Job interface.
type backupJob struct {
	archiver      *backup.Archiver
	retentionDays int
	log           zerolog.Logger
}

func (j backupJob) Name() string { return "database_backup" }

func (j backupJob) Run() error {
	ctx := context.Background()
	if err := j.archiver.CreateAndUpload(ctx); err != nil {
		return fmt.Errorf("backup job: %w", err)
	}
	if err := j.archiver.Rotate(ctx, j.retentionDays); err != nil {
		return fmt.Errorf("backup job: rotate: %w", err)
	}
	j.log.Debug().Msg("database backup archived and rotated")
	return nil
}
