package sqlite

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// newTestDB builds an in-memory store using the cgo mattn/go-sqlite3 driver,
// the way the teacher's own repository tests do, instead of the pure-Go
// modernc.org/sqlite driver used in production.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	db := &DB{conn: conn, path: ":memory:"}
	_, err = conn.Exec(schema)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db
}
