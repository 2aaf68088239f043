package sqlite

import (
	"context"
	"fmt"

	"github.com/aristath/brain/internal/domain"
)

// PositionRepository persists open positions so recovery can rebuild the
// in-memory position set without replaying fills past the last snapshot.
type PositionRepository struct {
	db *DB
}

func NewPositionRepository(db *DB) *PositionRepository { return &PositionRepository{db: db} }

func (r *PositionRepository) SavePosition(ctx context.Context, p domain.Position) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO positions (symbol, side, size, entry_price, mark_price, unrealized_pnl, leverage)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			side = excluded.side, size = excluded.size, entry_price = excluded.entry_price,
			mark_price = excluded.mark_price, unrealized_pnl = excluded.unrealized_pnl,
			leverage = excluded.leverage`,
		p.Symbol, string(p.Side), p.Size, p.EntryPrice, p.MarkPrice, p.UnrealizedPnL, p.Leverage)
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func (r *PositionRepository) DeletePosition(ctx context.Context, symbol string) error {
	_, err := r.db.Conn().ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

func (r *PositionRepository) AllPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT symbol, side, size, entry_price, mark_price, unrealized_pnl, leverage FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("all positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var (
			p    domain.Position
			side string
		)
		if err := rows.Scan(&p.Symbol, &side, &p.Size, &p.EntryPrice, &p.MarkPrice, &p.UnrealizedPnL, &p.Leverage); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Side = domain.PositionSide(side)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("all positions: %w", err)
	}
	return out, nil
}
