// Package performance maintains phase-scoped trade history and derives the
// Sharpe-driven modifier the AllocationEngine scales its base weights by.
package performance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/domain"
	"github.com/aristath/brain/internal/repository"
	"github.com/aristath/brain/pkg/formulas"
)

// Clock abstracts wall-clock access so tests and replay can drive time
// explicitly instead of depending on time.Now.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// Tracker computes rolling per-phase Sharpe ratios and the performance
// modifier the AllocationEngine applies to its base weights. It owns no
// mutable history in memory beyond an append-only in-process cache; the
// repository remains the source of truth for rebuildFromHistory.
type Tracker struct {
	mu    sync.RWMutex
	repo  repository.PerformanceRepository
	cfg   config.PerformanceConfig
	clock Clock
	log   zerolog.Logger

	cache map[domain.PhaseID][]domain.TradeRecord
}

// New constructs a Tracker bound to repo for durable trade history.
func New(repo repository.PerformanceRepository, cfg config.PerformanceConfig, clock Clock, log zerolog.Logger) *Tracker {
	if clock == nil {
		clock = SystemClock
	}
	return &Tracker{
		repo:  repo,
		cfg:   cfg,
		clock: clock,
		log:   log.With().Str("component", "performance_tracker").Logger(),
		cache: make(map[domain.PhaseID][]domain.TradeRecord),
	}
}

// RecordTrade appends a realized-PnL fact to the phase's trade log.
// Persistence errors bubble up unmodified; there is no partial write.
func (t *Tracker) RecordTrade(ctx context.Context, phaseID domain.PhaseID, pnl float64, ts time.Time, symbol string, side domain.Side) error {
	record := domain.TradeRecord{
		PhaseID:   phaseID,
		PnL:       pnl,
		Timestamp: ts,
		Symbol:    symbol,
		Side:      side,
	}
	if err := t.repo.RecordTrade(ctx, record); err != nil {
		return fmt.Errorf("record trade: %w", err)
	}

	t.mu.Lock()
	t.cache[phaseID] = append(t.cache[phaseID], record)
	t.mu.Unlock()
	return nil
}

// Sharpe computes the annualized Sharpe ratio over the trailing windowDays
// of pnl for phaseID. Returns 0 with fewer than 2 samples; saturates to
// ±3.0 when stddev is zero.
func (t *Tracker) Sharpe(ctx context.Context, phaseID domain.PhaseID, windowDays int) (float64, error) {
	pnl, err := t.windowPnL(ctx, phaseID, windowDays)
	if err != nil {
		return 0, err
	}
	return formulas.Sharpe(pnl), nil
}

// Modifier returns the weight multiplier the AllocationEngine applies for
// phaseID, based on the configured Sharpe window.
func (t *Tracker) Modifier(ctx context.Context, phaseID domain.PhaseID) (float64, error) {
	pnl, err := t.windowPnL(ctx, phaseID, t.cfg.WindowDays)
	if err != nil {
		return 0, err
	}
	if len(pnl) < t.cfg.MinTradeCount {
		return 1.0, nil
	}

	sharpe := formulas.Sharpe(pnl)
	switch {
	case sharpe < t.cfg.MalusThreshold:
		return t.cfg.MalusMultiplier, nil
	case sharpe > t.cfg.BonusThreshold:
		return t.cfg.BonusMultiplier, nil
	default:
		return 1.0, nil
	}
}

// Snapshot returns a PhasePerformance summary over the configured window.
func (t *Tracker) Snapshot(ctx context.Context, phaseID domain.PhaseID) (domain.PhasePerformance, error) {
	pnl, err := t.windowPnL(ctx, phaseID, t.cfg.WindowDays)
	if err != nil {
		return domain.PhasePerformance{}, err
	}

	perf := domain.PhasePerformance{PhaseID: phaseID, TradeCount: len(pnl)}
	var wins, losses []float64
	for _, p := range pnl {
		perf.TotalPnL += p
		if p > 0 {
			wins = append(wins, p)
		} else if p < 0 {
			losses = append(losses, p)
		}
	}
	if len(pnl) > 0 {
		perf.WinRate = float64(len(wins)) / float64(len(pnl))
	}
	if len(wins) > 0 {
		perf.AvgWin = formulas.Mean(wins)
	}
	if len(losses) > 0 {
		perf.AvgLoss = formulas.Mean(losses)
	}
	perf.Sharpe = formulas.Sharpe(pnl)

	mod, err := t.Modifier(ctx, phaseID)
	if err != nil {
		return domain.PhasePerformance{}, err
	}
	perf.Modifier = mod
	return perf, nil
}

// RebuildFromHistory replaces the in-memory cache for phaseID with a
// deterministic reconstruction from the full trade log.
func (t *Tracker) RebuildFromHistory(ctx context.Context, phaseID domain.PhaseID) error {
	trades, err := t.repo.AllTrades(ctx, phaseID)
	if err != nil {
		return fmt.Errorf("rebuild from history: %w", err)
	}
	t.mu.Lock()
	t.cache[phaseID] = trades
	t.mu.Unlock()
	return nil
}

func (t *Tracker) windowPnL(ctx context.Context, phaseID domain.PhaseID, windowDays int) ([]float64, error) {
	since := t.clock.Now().AddDate(0, 0, -windowDays).UnixMilli()
	trades, err := t.repo.TradesSince(ctx, phaseID, since)
	if err != nil {
		return nil, fmt.Errorf("trades since: %w", err)
	}
	pnl := make([]float64, len(trades))
	for i, tr := range trades {
		pnl[i] = tr.PnL
	}
	return pnl, nil
}
