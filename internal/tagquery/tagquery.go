// Package tagquery implements the tag query engine (spec C7): a
// CSV-layout substring scan with an in-memory false-positive filter, and
// a tag-table inner join, both driven by the shared gap-tolerant polling
// loop in internal/cursor.
package tagquery

import (
	"context"
	"strings"
	"time"

	"github.com/relaydb/sqljournal/internal/cursor"
	"github.com/relaydb/sqljournal/internal/dbconn"
	"github.com/relaydb/sqljournal/internal/row"
	"github.com/relaydb/sqljournal/internal/serializer"
)

// Config configures one events_by_tag run.
type Config struct {
	MaxBufferSize   int
	RefreshInterval time.Duration
	SafetyWindow    int64
}

// TagQuery answers events_by_tag(tag, offset) for both layouts.
type TagQuery struct {
	db  *dbconn.DB
	ser serializer.Serializer
}

// New constructs a TagQuery reader.
func New(db *dbconn.DB, ser serializer.Serializer) *TagQuery {
	return &TagQuery{db: db, ser: ser}
}

// EventsByTag streams envelopes for tag starting strictly after offset.
// mode selects current (terminate on catch-up) vs live (poll until ctx
// is cancelled). wake, when non-nil, lets a live poll wake early on a
// commit hint instead of waiting out a full RefreshInterval; callers
// with no hint source pass nil. Returns the cursor to resume from.
func (q *TagQuery) EventsByTag(ctx context.Context, tag string, offset int64, mode cursor.Mode, cfg Config, wake <-chan struct{}, emit func(serializer.Envelope) error) (int64, error) {
	pollCfg := cursor.Config{PageSize: cfg.MaxBufferSize, SafetyWindow: cfg.SafetyWindow, RefreshInterval: cfg.RefreshInterval, WakeCh: wake}

	maxFn := func(ctx context.Context) (int64, error) {
		return maxOrdering(ctx, q.db)
	}

	var fetchFn cursor.FetchFunc
	if q.db.TagMode == row.TagModeCSV {
		fetchFn = q.fetchCSV(tag)
	} else {
		fetchFn = q.fetchTagTable(tag)
	}

	emitFn := func(ctx context.Context, r row.EventRow) error {
		for _, res := range q.ser.DeserializeRow(r) {
			if res.Err != nil {
				// A per-row deserialization failure is reported by
				// skipping that envelope; events_by_tag has no per-element
				// error channel in its contract (unlike replay), so the
				// row is dropped rather than surfaced.
				continue
			}
			if err := emit(res.Envelope); err != nil {
				return err
			}
		}
		return nil
	}

	return cursor.Poll(ctx, mode, pollCfg, offset, maxFn, fetchFn, emitFn)
}

func maxOrdering(ctx context.Context, db *dbconn.DB) (int64, error) {
	var max int64
	err := db.Exec().QueryRowContext(ctx, `SELECT coalesce(max(ordering), 0) FROM journal_row`).Scan(&max)
	if err != nil {
		return 0, &row.StorageError{Op: "max ordering", Err: err}
	}
	return max, nil
}

// fetchCSV implements the CSV layout's LIKE '%;tag;%' substring scan with
// an in-memory post-filter: LIKE treats '_' and '%' inside the tag as
// wildcards, so a candidate row can match the pattern without carrying
// the exact tag, and every candidate is therefore re-checked against the
// exact decoded tag set (a "bluebird" row never passes for "blue").
// pageMax still counts rejected candidates.
func (q *TagQuery) fetchCSV(tag string) cursor.FetchFunc {
	pattern := "%" + row.TagSeparator + tag + row.TagSeparator + "%"
	return func(ctx context.Context, from, to int64, limit int) ([]row.EventRow, int64, error) {
		query := `
			SELECT ` + row.EventRowColumnsCSV + `
			FROM journal_row
			WHERE ordering > $1 AND ordering <= $2 AND deleted = false AND tags LIKE $3
			ORDER BY ordering ASC
			LIMIT $4`
		dbRows, err := q.db.Exec().QueryContext(ctx, query, from, to, pattern, limit)
		if err != nil {
			return nil, 0, &row.StorageError{Op: "events_by_tag query", Err: err}
		}
		defer dbRows.Close()

		var out []row.EventRow
		var pageMax int64
		for dbRows.Next() {
			r, err := row.ScanEventRow(dbRows, true)
			if err != nil {
				return nil, 0, &row.StorageError{Op: "events_by_tag scan", Err: err}
			}
			if r.Ordering > pageMax {
				pageMax = r.Ordering
			}
			if !containsTag(r.TagArray, tag) {
				continue
			}
			out = append(out, r)
		}
		return out, pageMax, dbRows.Err()
	}
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// fetchTagTable implements the tag-table layout's inner join.
func (q *TagQuery) fetchTagTable(tag string) cursor.FetchFunc {
	return func(ctx context.Context, from, to int64, limit int) ([]row.EventRow, int64, error) {
		query := `
			SELECT ` + qualify(row.EventRowColumnsTagTable) + `
			FROM journal_row jr
			INNER JOIN journal_tag_row jt ON jt.ordering_id = jr.ordering
			WHERE jt.tag_value = $1 AND jr.ordering > $2 AND jr.ordering <= $3 AND jr.deleted = false
			ORDER BY jr.ordering ASC
			LIMIT $4`
		dbRows, err := q.db.Exec().QueryContext(ctx, query, tag, from, to, limit)
		if err != nil {
			return nil, 0, &row.StorageError{Op: "events_by_tag query", Err: err}
		}
		defer dbRows.Close()

		var out []row.EventRow
		var pageMax int64
		for dbRows.Next() {
			r, err := row.ScanEventRow(dbRows, false)
			if err != nil {
				return nil, 0, &row.StorageError{Op: "events_by_tag scan", Err: err}
			}
			if r.Ordering > pageMax {
				pageMax = r.Ordering
			}
			out = append(out, r)
		}
		return out, pageMax, dbRows.Err()
	}
}

// qualify prefixes every column in cols with "jr." so the join query can
// reuse EventRowColumnsTagTable unchanged.
func qualify(cols string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = "jr." + p
	}
	return strings.Join(parts, ", ")
}
