// Package di wires every engine, repository, and background process into a
// single Container, the composition root cmd/brain's main calls into.
package di

import (
	"context"
	"fmt"

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

// Container holds every wired dependency the Brain needs to run. It is the
// single source of truth for service instances, constructed once by Wire
// and torn down once by Close.
type Container struct {
	cfg *config.Config
	log zerolog.Logger

	DB *sqlite.DB

	EventStore     *sqlite.EventStore
	AllocationRepo *sqlite.AllocationRepository
	PerformanceRepo *sqlite.PerformanceRepository
	DecisionRepo   *sqlite.DecisionRepository
	TreasuryRepo   *sqlite.TreasuryRepository
	BreakerRepo    *sqlite.BreakerRepository
	PositionRepo   *sqlite.PositionRepository

	Bus *events.Bus

	RecoveredState recovery.State

	Allocation  *allocation.Engine
	Performance *performance.Tracker
	Risk        *risk.Guardian
	Router      *router.Router
	Processor   *hft.Processor
	Treasury    *treasury.Manager

	Wallet   *exchange.BinanceWallet
	Feed     *marketdata.Feed
	Equity   *walletEquitySource

	Scheduler *scheduler.Scheduler
	Archiver  *backup.Archiver
	Monitor   *telemetry.Monitor

	HTTPServer *server.Server

	processorCtx    context.Context
	processorCancel context.CancelFunc
}

// Close releases every resource Wire acquired, in the reverse order they
// were acquired.
func (c *Container) Close() error {
	if c.Monitor != nil {
		c.Monitor.Stop()
	}
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.processorCancel != nil {
		c.processorCancel()
	}
	if c.Processor != nil {
		c.Processor.Stop()
	}
	if c.Feed != nil {
		_ = c.Feed.Stop()
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
	}
	return nil
}
