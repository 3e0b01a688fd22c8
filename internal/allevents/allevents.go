// Package allevents implements the global all-events query (spec C8) and
// the supplemented persistence_ids operation, both built on the same
// gap-tolerant polling loop as internal/tagquery.
package allevents

import (
	"context"
	"time"

	"github.com/relaydb/sqljournal/internal/cursor"
	"github.com/relaydb/sqljournal/internal/dbconn"
	"github.com/relaydb/sqljournal/internal/row"
	"github.com/relaydb/sqljournal/internal/serializer"
)

// Config configures one all_events or persistence_ids run.
type Config struct {
	MaxBufferSize   int
	RefreshInterval time.Duration
	SafetyWindow    int64
}

// AllEvents answers all_events and persistence_ids.
type AllEvents struct {
	db  *dbconn.DB
	ser serializer.Serializer
}

// New constructs an AllEvents reader.
func New(db *dbconn.DB, ser serializer.Serializer) *AllEvents {
	return &AllEvents{db: db, ser: ser}
}

// Events streams all_events, without a tag filter. Shares the
// ordering-gap tolerance and page/envelope accounting of events_by_tag.
// wake, when non-nil, lets a live poll wake early on a commit hint
// instead of waiting out a full RefreshInterval.
func (a *AllEvents) Events(ctx context.Context, offset int64, mode cursor.Mode, cfg Config, wake <-chan struct{}, emit func(serializer.Envelope) error) (int64, error) {
	pollCfg := cursor.Config{PageSize: cfg.MaxBufferSize, SafetyWindow: cfg.SafetyWindow, RefreshInterval: cfg.RefreshInterval, WakeCh: wake}

	maxFn := func(ctx context.Context) (int64, error) { return maxOrdering(ctx, a.db) }
	fetchFn := a.fetchAll()
	emitFn := func(ctx context.Context, r row.EventRow) error {
		for _, res := range a.ser.DeserializeRow(r) {
			if res.Err != nil {
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

// PersistenceIDs runs the same global-ordering scan as Events, but emits
// each distinct persistence id exactly once per call rather than every
// event. Deduplication is scoped to one call, not persisted: resuming a
// live run from a later offset may re-emit an id already seen in an
// earlier call.
func (a *AllEvents) PersistenceIDs(ctx context.Context, offset int64, mode cursor.Mode, cfg Config, wake <-chan struct{}, emit func(string) error) (int64, error) {
	pollCfg := cursor.Config{PageSize: cfg.MaxBufferSize, SafetyWindow: cfg.SafetyWindow, RefreshInterval: cfg.RefreshInterval, WakeCh: wake}

	seen := make(map[string]struct{})
	maxFn := func(ctx context.Context) (int64, error) { return maxOrdering(ctx, a.db) }
	fetchFn := a.fetchAll()
	emitFn := func(ctx context.Context, r row.EventRow) error {
		if _, ok := seen[r.PersistenceID]; ok {
			return nil
		}
		seen[r.PersistenceID] = struct{}{}
		return emit(r.PersistenceID)
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

func (a *AllEvents) fetchAll() cursor.FetchFunc {
	csvLayout := a.db.TagMode == row.TagModeCSV
	cols := row.EventRowColumnsTagTable
	if csvLayout {
		cols = row.EventRowColumnsCSV
	}
	query := `
		SELECT ` + cols + `
		FROM journal_row
		WHERE ordering > $1 AND ordering <= $2 AND deleted = false
		ORDER BY ordering ASC
		LIMIT $3`

	return func(ctx context.Context, from, to int64, limit int) ([]row.EventRow, int64, error) {
		dbRows, err := a.db.Exec().QueryContext(ctx, query, from, to, limit)
		if err != nil {
			return nil, 0, &row.StorageError{Op: "all_events query", Err: err}
		}
		defer dbRows.Close()

		var out []row.EventRow
		var pageMax int64
		for dbRows.Next() {
			r, err := row.ScanEventRow(dbRows, csvLayout)
			if err != nil {
				return nil, 0, &row.StorageError{Op: "all_events scan", Err: err}
			}
			if r.Ordering > pageMax {
				pageMax = r.Ordering
			}
			out = append(out, r)
		}
		return out, pageMax, dbRows.Err()
	}
}
