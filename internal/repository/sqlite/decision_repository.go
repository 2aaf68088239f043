package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/brain/internal/domain"
)

// DecisionRepository persists RiskDecisions keyed by intent id, for the
// operator-facing decision log.
type DecisionRepository struct {
	db *DB
}

func NewDecisionRepository(db *DB) *DecisionRepository { return &DecisionRepository{db: db} }

func (r *DecisionRepository) SaveDecision(ctx context.Context, intentID string, d domain.RiskDecision) error {
	metricsJSON, err := json.Marshal(d.RiskMetrics)
	if err != nil {
		return fmt.Errorf("marshal risk metrics: %w", err)
	}
	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO risk_decisions (intent_id, approved, reason, adjusted_size, metrics_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(intent_id) DO UPDATE SET
			approved = excluded.approved, reason = excluded.reason,
			adjusted_size = excluded.adjusted_size, metrics_json = excluded.metrics_json,
			timestamp = excluded.timestamp`,
		intentID, d.Approved, d.Reason, d.AdjustedSize, string(metricsJSON), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save risk decision: %w", err)
	}
	return nil
}

func (r *DecisionRepository) RecentDecisions(ctx context.Context, limit int) ([]domain.RiskDecision, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT approved, reason, adjusted_size, metrics_json FROM risk_decisions ORDER BY timestamp DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("recent risk decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.RiskDecision
	for rows.Next() {
		var (
			d           domain.RiskDecision
			metricsJSON string
		)
		if err := rows.Scan(&d.Approved, &d.Reason, &d.AdjustedSize, &metricsJSON); err != nil {
			return nil, fmt.Errorf("scan risk decision: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &d.RiskMetrics); err != nil {
			return nil, fmt.Errorf("unmarshal risk metrics: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent risk decisions: %w", err)
	}
	return out, nil
}
