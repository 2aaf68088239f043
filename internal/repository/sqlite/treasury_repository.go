package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/brain/internal/domain"
)

// TreasuryRepository persists the high-watermark ratchet, cumulative swept
// total, and the append-only transfer ledger.
type TreasuryRepository struct {
	db *DB
}

func NewTreasuryRepository(db *DB) *TreasuryRepository { return &TreasuryRepository{db: db} }

func (r *TreasuryRepository) SaveState(ctx context.Context, highWatermark, totalSwept float64) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO treasury_state (id, high_watermark, total_swept) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET high_watermark = excluded.high_watermark, total_swept = excluded.total_swept`,
		highWatermark, totalSwept)
	if err != nil {
		return fmt.Errorf("save treasury state: %w", err)
	}
	return nil
}

func (r *TreasuryRepository) LoadState(ctx context.Context) (float64, float64, error) {
	var hw, swept float64
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT high_watermark, total_swept FROM treasury_state WHERE id = 1`,
	).Scan(&hw, &swept)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("load treasury state: %w", err)
	}
	return hw, swept, nil
}

func (r *TreasuryRepository) RecordOperation(ctx context.Context, op domain.TreasuryOperation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO treasury_operations
			(id, timestamp, type, amount, from_wallet, to_wallet, reason, high_watermark_at_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.Timestamp.UnixMilli(), string(op.Type), op.Amount, op.FromWallet, op.ToWallet, op.Reason, op.HighWatermarkAtTime)
	if err != nil {
		return fmt.Errorf("record treasury operation: %w", err)
	}
	return nil
}

func (r *TreasuryRepository) RecentOperations(ctx context.Context, limit int) ([]domain.TreasuryOperation, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT id, timestamp, type, amount, from_wallet, to_wallet, reason, high_watermark_at_time
		 FROM treasury_operations ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent treasury operations: %w", err)
	}
	defer rows.Close()

	var out []domain.TreasuryOperation
	for rows.Next() {
		var (
			op       domain.TreasuryOperation
			opType   string
			tsMillis int64
			reason   sql.NullString
		)
		if err := rows.Scan(&op.ID, &tsMillis, &opType, &op.Amount, &op.FromWallet, &op.ToWallet, &reason, &op.HighWatermarkAtTime); err != nil {
			return nil, fmt.Errorf("scan treasury operation: %w", err)
		}
		op.Type = domain.TreasuryOperationType(opType)
		op.Timestamp = time.UnixMilli(tsMillis).UTC()
		op.Reason = reason.String
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent treasury operations: %w", err)
	}
	return out, nil
}
