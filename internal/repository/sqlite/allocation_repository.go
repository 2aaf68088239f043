package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/brain/internal/domain"
)

// AllocationRepository persists the single latest AllocationVector row.
type AllocationRepository struct {
	db *DB
}

func NewAllocationRepository(db *DB) *AllocationRepository { return &AllocationRepository{db: db} }

func (r *AllocationRepository) SaveSnapshot(ctx context.Context, v domain.AllocationVector) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO allocation_snapshot (id, w1, w2, w3, tier, max_leverage, equity, timestamp)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			w1 = excluded.w1, w2 = excluded.w2, w3 = excluded.w3,
			tier = excluded.tier, max_leverage = excluded.max_leverage,
			equity = excluded.equity, timestamp = excluded.timestamp`,
		v.W1, v.W2, v.W3, string(v.Tier), v.MaxLeverage, v.Equity, v.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("save allocation snapshot: %w", err)
	}
	return nil
}

func (r *AllocationRepository) LoadSnapshot(ctx context.Context) (*domain.AllocationVector, error) {
	var (
		v        domain.AllocationVector
		tier     string
		tsMillis int64
	)
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT w1, w2, w3, tier, max_leverage, equity, timestamp FROM allocation_snapshot WHERE id = 1`,
	).Scan(&v.W1, &v.W2, &v.W3, &tier, &v.MaxLeverage, &v.Equity, &tsMillis)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load allocation snapshot: %w", err)
	}
	v.Tier = domain.EquityTier(tier)
	v.Timestamp = time.UnixMilli(tsMillis).UTC()
	return &v, nil
}
