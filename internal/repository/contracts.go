// Package repository declares the persistence contracts the core engines
// depend on. Schema and SQL live entirely in internal/repository/sqlite;
// engines only ever see these interfaces.
package repository

import (
	"context"

	"github.com/aristath/brain/internal/domain"
)

// EventStore is the durable append-only log every mutating fact is written
// to. append is the single point of total-order assignment; streamFrom is
// used by both recovery and audit readers.
type EventStore interface {
	Append(ctx context.Context, subject domain.EventSubject, payload []byte) (domain.EventLogEntry, error)
	StreamFrom(ctx context.Context, fromID int64, limit int) ([]domain.EventLogEntry, error)
	LatestID(ctx context.Context) (int64, error)
}

// AllocationRepository persists the latest AllocationVector snapshot.
type AllocationRepository interface {
	SaveSnapshot(ctx context.Context, v domain.AllocationVector) error
	LoadSnapshot(ctx context.Context) (*domain.AllocationVector, error)
}

// PerformanceRepository persists the append-only trade log that the
// PerformanceTracker's Sharpe computation is derived from.
type PerformanceRepository interface {
	RecordTrade(ctx context.Context, t domain.TradeRecord) error
	TradesSince(ctx context.Context, phaseID domain.PhaseID, since int64) ([]domain.TradeRecord, error)
	AllTrades(ctx context.Context, phaseID domain.PhaseID) ([]domain.TradeRecord, error)
}

// DecisionRepository persists RiskDecisions for operator review.
type DecisionRepository interface {
	SaveDecision(ctx context.Context, intentID string, d domain.RiskDecision) error
	RecentDecisions(ctx context.Context, limit int) ([]domain.RiskDecision, error)
}

// TreasuryRepository persists the high-watermark ratchet, cumulative swept
// total, and the append-only sweep/transfer ledger.
type TreasuryRepository interface {
	SaveState(ctx context.Context, highWatermark, totalSwept float64) error
	LoadState(ctx context.Context) (highWatermark, totalSwept float64, err error)
	RecordOperation(ctx context.Context, op domain.TreasuryOperation) error
	RecentOperations(ctx context.Context, limit int) ([]domain.TreasuryOperation, error)
}

// BreakerRepository persists the HFT circuit breaker's state machine so it
// survives a restart without re-learning the failure count.
type BreakerRepository interface {
	SaveState(ctx context.Context, state domain.BreakerState, consecutiveFailures int, reason string) error
	LoadState(ctx context.Context) (state domain.BreakerState, consecutiveFailures int, reason string, err error)
}

// PositionRepository persists open positions for recovery.
type PositionRepository interface {
	SavePosition(ctx context.Context, p domain.Position) error
	DeletePosition(ctx context.Context, symbol string) error
	AllPositions(ctx context.Context) ([]domain.Position, error)
}

// RiskRepository is a thin alias grouping the risk-adjacent persistence the
// RiskGuardian needs beyond decisions: the per-symbol price history backing
// its correlation ring buffer is kept in memory (§9 arena-friendly design
// note) and is not itself persisted.
type RiskRepository = DecisionRepository
