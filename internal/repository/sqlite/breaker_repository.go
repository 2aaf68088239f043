package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/brain/internal/domain"
)

// BreakerRepository persists the HFT circuit breaker's state machine.
type BreakerRepository struct {
	db *DB
}

func NewBreakerRepository(db *DB) *BreakerRepository { return &BreakerRepository{db: db} }

func (r *BreakerRepository) SaveState(ctx context.Context, state domain.BreakerState, consecutiveFailures int, reason string) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO breaker_state (id, state, consecutive_failures, reason) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state, consecutive_failures = excluded.consecutive_failures, reason = excluded.reason`,
		string(state), consecutiveFailures, reason)
	if err != nil {
		return fmt.Errorf("save breaker state: %w", err)
	}
	return nil
}

func (r *BreakerRepository) LoadState(ctx context.Context) (domain.BreakerState, int, string, error) {
	var (
		state    string
		failures int
		reason   sql.NullString
	)
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT state, consecutive_failures, reason FROM breaker_state WHERE id = 1`,
	).Scan(&state, &failures, &reason)
	if err == sql.ErrNoRows {
		return domain.BreakerClosed, 0, "", nil
	}
	if err != nil {
		return "", 0, "", fmt.Errorf("load breaker state: %w", err)
	}
	return domain.BreakerState(state), failures, reason.String, nil
}
