// Package sqlite implements the Brain's repository contracts over a single
// modernc.org/sqlite-backed file, using one connection profile for both the
// append-only event log and the latest-snapshot tables.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB with the connection-string PRAGMAs and pool limits the
// Brain's persistence layer needs: durability for the event log, modest
// connection counts for an embedded single-process deployment.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates (or reopens) the sqlite-backed store at path in WAL mode with
// full synchronous durability, since every row here is either an append-only
// audit fact or the latest snapshot of safety-critical state.
func Open(path string) (*DB, error) {
	if !strings.HasPrefix(path, "file:") {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		path = absPath
	}

	connStr := buildConnectionString(path)

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func buildConnectionString(path string) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(FULL)"
	connStr += "&_pragma=auto_vacuum(NONE)"
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)"
	return connStr
}

// Conn exposes the underlying *sql.DB for repositories in this package.
func (db *DB) Conn() *sql.DB { return db.conn }

// Close releases the connection pool.
func (db *DB) Close() error { return db.conn.Close() }

// HealthCheck verifies the connection is alive, for the /health endpoint.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS event_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	subject TEXT NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_log_subject ON event_log(subject);

CREATE TABLE IF NOT EXISTS allocation_snapshot (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	w1 REAL NOT NULL,
	w2 REAL NOT NULL,
	w3 REAL NOT NULL,
	tier TEXT NOT NULL,
	max_leverage REAL NOT NULL,
	equity REAL NOT NULL,
	timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS treasury_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	high_watermark REAL NOT NULL,
	total_swept REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS treasury_operations (
	id TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	type TEXT NOT NULL,
	amount REAL NOT NULL,
	from_wallet TEXT NOT NULL,
	to_wallet TEXT NOT NULL,
	reason TEXT,
	high_watermark_at_time REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_records (
	id TEXT PRIMARY KEY,
	phase_id TEXT NOT NULL,
	pnl REAL NOT NULL,
	timestamp INTEGER NOT NULL,
	symbol TEXT,
	side TEXT
);
CREATE INDEX IF NOT EXISTS idx_trade_records_phase ON trade_records(phase_id, timestamp);

CREATE TABLE IF NOT EXISTS positions (
	symbol TEXT PRIMARY KEY,
	side TEXT NOT NULL,
	size REAL NOT NULL,
	entry_price REAL NOT NULL,
	mark_price REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	leverage REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_decisions (
	intent_id TEXT PRIMARY KEY,
	approved INTEGER NOT NULL,
	reason TEXT,
	adjusted_size REAL NOT NULL,
	metrics_json TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS breaker_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	state TEXT NOT NULL,
	consecutive_failures INTEGER NOT NULL,
	opened_at INTEGER,
	reason TEXT
);
`

func (db *DB) migrate(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, schema)
	return err
}
