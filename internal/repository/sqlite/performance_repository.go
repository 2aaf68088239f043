package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/brain/internal/domain"
)

// PerformanceRepository is the append-only trade log the PerformanceTracker
// replays to rebuild rolling Sharpe figures.
type PerformanceRepository struct {
	db *DB
}

func NewPerformanceRepository(db *DB) *PerformanceRepository { return &PerformanceRepository{db: db} }

func (r *PerformanceRepository) RecordTrade(ctx context.Context, t domain.TradeRecord) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.db.Conn().ExecContext(ctx,
		`INSERT INTO trade_records (id, phase_id, pnl, timestamp, symbol, side) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.PhaseID), t.PnL, t.Timestamp.UnixMilli(), t.Symbol, string(t.Side))
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

func (r *PerformanceRepository) TradesSince(ctx context.Context, phaseID domain.PhaseID, since int64) ([]domain.TradeRecord, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT id, phase_id, pnl, timestamp, symbol, side FROM trade_records
		 WHERE phase_id = ? AND timestamp >= ? ORDER BY timestamp ASC`,
		string(phaseID), since)
	if err != nil {
		return nil, fmt.Errorf("trades since: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (r *PerformanceRepository) AllTrades(ctx context.Context, phaseID domain.PhaseID) ([]domain.TradeRecord, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT id, phase_id, pnl, timestamp, symbol, side FROM trade_records
		 WHERE phase_id = ? ORDER BY timestamp ASC`,
		string(phaseID))
	if err != nil {
		return nil, fmt.Errorf("all trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for rows.Next() {
		var (
			t        domain.TradeRecord
			phaseID  string
			side     string
			tsMillis int64
		)
		if err := rows.Scan(&t.ID, &phaseID, &t.PnL, &tsMillis, &t.Symbol, &side); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		t.PhaseID = domain.PhaseID(phaseID)
		t.Side = domain.Side(side)
		t.Timestamp = time.UnixMilli(tsMillis).UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan trades: %w", err)
	}
	return out, nil
}
