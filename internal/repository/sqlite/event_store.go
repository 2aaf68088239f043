package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/brain/internal/domain"
)

// EventStore is the sqlite-backed implementation of repository.EventStore.
// Each engine appends its own events directly; id assignment is delegated
// to sqlite's AUTOINCREMENT so total order always matches insertion order.
type EventStore struct {
	db *DB
}

func NewEventStore(db *DB) *EventStore { return &EventStore{db: db} }

func (s *EventStore) Append(ctx context.Context, subject domain.EventSubject, payload []byte) (domain.EventLogEntry, error) {
	now := time.Now().UTC()
	res, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO event_log (timestamp, subject, payload) VALUES (?, ?, ?)`,
		now.UnixMilli(), string(subject), payload)
	if err != nil {
		return domain.EventLogEntry{}, fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.EventLogEntry{}, fmt.Errorf("append event: read assigned id: %w", err)
	}
	return domain.EventLogEntry{
		ID:        id,
		Timestamp: now,
		Subject:   subject,
		Payload:   payload,
	}, nil
}

func (s *EventStore) StreamFrom(ctx context.Context, fromID int64, limit int) ([]domain.EventLogEntry, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, timestamp, subject, payload FROM event_log WHERE id >= ? ORDER BY id ASC LIMIT ?`,
		fromID, limit)
	if err != nil {
		return nil, fmt.Errorf("stream events: %w", err)
	}
	defer rows.Close()

	var out []domain.EventLogEntry
	for rows.Next() {
		var (
			e        domain.EventLogEntry
			subject  string
			tsMillis int64
		)
		if err := rows.Scan(&e.ID, &tsMillis, &subject, &e.Payload); err != nil {
			return nil, fmt.Errorf("stream events: scan row: %w", err)
		}
		e.Timestamp = time.UnixMilli(tsMillis).UTC()
		e.Subject = domain.EventSubject(subject)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stream events: %w", err)
	}
	return out, nil
}

func (s *EventStore) LatestID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.Conn().QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM event_log`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("latest event id: %w", err)
	}
	return id, nil
}
