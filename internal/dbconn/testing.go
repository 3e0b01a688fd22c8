package dbconn

import (
	"database/sql"

	"github.com/relaydb/sqljournal/internal/row"
)

// NewForTest wraps an already-open *sql.DB (typically a sqlmock handle) as
// a *DB, skipping Open's pool tuning, ping, and migrations. It exists so
// package write/retention/replay/tagquery/allevents tests can drive
// sqlmock expectations against the same Executor/BeginTx surface Open
// produces in production.
func NewForTest(sqlDB *sql.DB, tagMode row.TagMode) *DB {
	return &DB{sqlDB: sqlDB, TagMode: tagMode}
}
