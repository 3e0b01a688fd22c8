// Package replay implements ordered, bounded, filtered reads of one
// persistence id's event stream (spec C6).
package replay

import (
	"context"
	"fmt"
	"math"

	"github.com/relaydb/sqljournal/internal/dbconn"
	"github.com/relaydb/sqljournal/internal/row"
	"github.com/relaydb/sqljournal/internal/serializer"
)

// Replay answers messages(pid, from_seq, to_seq, max) queries.
type Replay struct {
	db  *dbconn.DB
	ser serializer.Serializer
}

// New constructs a Replay reader.
func New(db *dbconn.DB, ser serializer.Serializer) *Replay {
	return &Replay{db: db, ser: ser}
}

// Messages replays events for pid in [fromSeq, toSeq], excluding
// soft-deleted rows, ordered by sequence_number, capped at max (no LIMIT
// applied when max exceeds math.MaxInt32). The whole page is
// materialized before returning, trading memory for transactional page
// consistency, and a per-row deserialization failure surfaces as an Err
// entry for that element only, never aborting the remaining rows.
func (r *Replay) Messages(ctx context.Context, persistenceID string, fromSeq, toSeq, max int64) ([]serializer.EventResult, error) {
	query := `
		SELECT ` + row.EventRowColumnsCSV + `
		FROM journal_row
		WHERE persistence_id = $1 AND sequence_number >= $2 AND sequence_number <= $3 AND deleted = false
		ORDER BY sequence_number ASC`
	if r.db.TagMode != row.TagModeCSV {
		query = `
		SELECT ` + row.EventRowColumnsTagTable + `
		FROM journal_row
		WHERE persistence_id = $1 AND sequence_number >= $2 AND sequence_number <= $3 AND deleted = false
		ORDER BY sequence_number ASC`
	}
	if max <= math.MaxInt32 && max >= 0 {
		query += fmt.Sprintf(" LIMIT %d", max)
	}

	rows, err := r.db.Exec().QueryContext(ctx, query, persistenceID, fromSeq, toSeq)
	if err != nil {
		return nil, &row.StorageError{Op: "replay query", Err: err}
	}
	defer rows.Close()

	var results []serializer.EventResult
	for rows.Next() {
		er, err := row.ScanEventRow(rows, r.db.TagMode == row.TagModeCSV)
		if err != nil {
			results = append(results, serializer.EventResult{Err: &row.DeserializationError{Err: err}})
			continue
		}
		results = append(results, r.ser.DeserializeRow(er)...)
	}
	if err := rows.Err(); err != nil {
		return nil, &row.StorageError{Op: "replay rows", Err: err}
	}
	return results, nil
}
