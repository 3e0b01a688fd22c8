package write

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/relaydb/sqljournal/internal/row"
)

// bulkStrategy selects how a contiguous run of no-tag-conflicting rows is
// loaded, matching the source system's BulkCopy.Default (true streaming
// COPY, no generated ids returned) vs MultipleRows (parameterized
// multi-row INSERT, still no generated ids, but plays nicer with very
// small runs and drivers without COPY support).
type bulkStrategy int

const (
	strategyDefault bulkStrategy = iota
	strategyMultipleRows
)

func chooseStrategy(runSize, maxRowByRowSize int) bulkStrategy {
	if runSize > maxRowByRowSize {
		return strategyDefault
	}
	return strategyMultipleRows
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// insertSingleNoTx performs the write pipeline's hot path: a batch with
// exactly one row where either the layout is CSV or the row has no tags
// is inserted with a single statement, no transaction.
func (p *Pipeline) insertSingleNoTx(ctx context.Context, r *row.EventRow) error {
	exec := p.db.Exec()
	if p.db.TagMode == row.TagModeCSV {
		return exec.QueryRowContext(ctx, insertEventRowSQLCSV,
			r.PersistenceID, r.SequenceNr, r.Timestamp, r.Deleted, r.Message,
			r.Manifest, nullString(r.EventManifest), r.Identifier,
			nullString(row.EncodeCSVTags(r.TagArray)), r.WriteUUID,
		).Scan(&r.Ordering)
	}
	return exec.QueryRowContext(ctx, insertEventRowSQLNoTags,
		r.PersistenceID, r.SequenceNr, r.Timestamp, r.Deleted, r.Message,
		r.Manifest, nullString(r.EventManifest), r.Identifier, r.WriteUUID,
	).Scan(&r.Ordering)
}

const insertEventRowSQLCSV = `
	INSERT INTO journal_row (
		persistence_id, sequence_number, "timestamp", deleted, message,
		manifest, event_manifest, identifier, tags, write_uuid
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING ordering`

const insertEventRowSQLNoTags = `
	INSERT INTO journal_row (
		persistence_id, sequence_number, "timestamp", deleted, message,
		manifest, event_manifest, identifier, write_uuid
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING ordering`

// insertMultiPath implements the tagged-batch transactional insert (spec
// §4.2): CSV layout always bulk-copies the whole batch; tag_table layout
// splits the batch into contiguous no-tag/has-tag runs, bulk-copying the
// former and inserting the latter row-by-row to recover ordering before
// bulk-copying the accumulated tag rows.
func (p *Pipeline) insertMultiPath(ctx context.Context, tx *sql.Tx, rows []row.EventRow) error {
	if p.db.TagMode == row.TagModeCSV {
		return p.bulkCopyEventRows(ctx, tx, rows, true)
	}

	i := 0
	for i < len(rows) {
		hasTags := rows[i].HasTags()
		j := i + 1
		for j < len(rows) && rows[j].HasTags() == hasTags {
			j++
		}
		run := rows[i:j]
		if hasTags {
			if err := p.insertTaggedRun(ctx, tx, run); err != nil {
				return err
			}
		} else if err := p.bulkCopyOrMultiRow(ctx, tx, run, false); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// bulkCopyEventRows is the CSV-layout entry point: always bulk load,
// choosing Default vs MultipleRows per the max_row_by_row_size threshold.
func (p *Pipeline) bulkCopyEventRows(ctx context.Context, tx *sql.Tx, rows []row.EventRow, csvLayout bool) error {
	return p.bulkCopyOrMultiRow(ctx, tx, rows, csvLayout)
}

func (p *Pipeline) bulkCopyOrMultiRow(ctx context.Context, tx *sql.Tx, rows []row.EventRow, csvLayout bool) error {
	if len(rows) == 0 {
		return nil
	}
	switch chooseStrategy(len(rows), p.cfg.MaxRowByRowSize) {
	case strategyDefault:
		return copyEventRows(ctx, tx, rows, csvLayout)
	default:
		return multiRowInsertEventRows(ctx, tx, rows, csvLayout, p.cfg.DBRoundTripBatchSize, p.cfg.PreferParametersOnMultiRowInsert)
	}
}

// insertTaggedRun inserts a run of tagged rows one at a time (the driver
// cannot return generated identities from a bulk copy, and the tag table
// needs ordering_id), then bulk-copies the accumulated tag rows.
func (p *Pipeline) insertTaggedRun(ctx context.Context, tx *sql.Tx, run []row.EventRow) error {
	var tagRows []row.TagRow
	for idx := range run {
		r := &run[idx]
		err := tx.QueryRowContext(ctx, insertEventRowSQLNoTags,
			r.PersistenceID, r.SequenceNr, r.Timestamp, r.Deleted, r.Message,
			r.Manifest, nullString(r.EventManifest), r.Identifier, r.WriteUUID,
		).Scan(&r.Ordering)
		if err != nil {
			return fmt.Errorf("row-by-row insert %s/%d: %w", r.PersistenceID, r.SequenceNr, err)
		}
		for _, tag := range r.TagArray {
			tagRows = append(tagRows, row.TagRow{
				OrderingID:    r.Ordering,
				TagValue:      tag,
				PersistenceID: r.PersistenceID,
				SequenceNr:    r.SequenceNr,
				WriteUUID:     r.WriteUUID,
			})
		}
	}

	// Tag rows are always bulk-copied with MultipleRows, regardless of
	// max_row_by_row_size, chunked at the tag round-trip size.
	return multiRowInsertTagRows(ctx, tx, tagRows, p.cfg.DBRoundTripTagBatchSize, p.cfg.PreferParametersOnMultiRowInsert)
}

func copyEventRows(ctx context.Context, tx *sql.Tx, rows []row.EventRow, csvLayout bool) error {
	cols := []string{"persistence_id", "sequence_number", "timestamp", "deleted", "message", "manifest", "event_manifest", "identifier"}
	if csvLayout {
		cols = append(cols, "tags")
	}
	cols = append(cols, "write_uuid")

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("journal_row", cols...))
	if err != nil {
		return fmt.Errorf("prepare bulk copy: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		args := []any{r.PersistenceID, r.SequenceNr, r.Timestamp, r.Deleted, r.Message, r.Manifest, nullString(r.EventManifest), r.Identifier}
		if csvLayout {
			args = append(args, nullString(row.EncodeCSVTags(r.TagArray)))
		}
		args = append(args, r.WriteUUID)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("bulk copy row %s/%d: %w", r.PersistenceID, r.SequenceNr, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flush bulk copy: %w", err)
	}
	return nil
}

// multiRowInsertEventRows chunks rows at chunkSize and inserts each chunk
// with a single multi-row INSERT. preferParams selects between a
// parameterized VALUES list (one placeholder per column, args passed
// through the driver) and inlining each value as a quoted SQL literal
// directly in the statement text — the latter avoids the driver's
// per-statement placeholder ceiling on very large chunks, at the cost of
// the planner being unable to cache a single prepared plan across calls.
func multiRowInsertEventRows(ctx context.Context, tx *sql.Tx, rows []row.EventRow, csvLayout bool, chunkSize int, preferParams bool) error {
	if chunkSize <= 0 {
		chunkSize = len(rows)
	}
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		var err error
		if preferParams {
			err = insertEventRowChunkParams(ctx, tx, rows[start:end], csvLayout)
		} else {
			err = insertEventRowChunkLiteral(ctx, tx, rows[start:end], csvLayout)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func eventRowInsertPrefix(csvLayout bool) string {
	cols := "persistence_id, sequence_number, \"timestamp\", deleted, message, manifest, event_manifest, identifier, "
	if csvLayout {
		cols += "tags, "
	}
	return "INSERT INTO journal_row (" + cols + "write_uuid) VALUES "
}

func insertEventRowChunkParams(ctx context.Context, tx *sql.Tx, rows []row.EventRow, csvLayout bool) error {
	colCount := 9
	if csvLayout {
		colCount = 10
	}

	var sb strings.Builder
	sb.WriteString(eventRowInsertPrefix(csvLayout))

	args := make([]any, 0, len(rows)*colCount)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := 0; c < colCount; c++ {
			if c > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "$%d", len(args)+c+1)
		}
		sb.WriteByte(')')

		args = append(args, r.PersistenceID, r.SequenceNr, r.Timestamp, r.Deleted, r.Message, r.Manifest, nullString(r.EventManifest), r.Identifier)
		if csvLayout {
			args = append(args, nullString(row.EncodeCSVTags(r.TagArray)))
		}
		args = append(args, r.WriteUUID)
	}

	_, err := tx.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("multi-row insert: %w", err)
	}
	return nil
}

func insertEventRowChunkLiteral(ctx context.Context, tx *sql.Tx, rows []row.EventRow, csvLayout bool) error {
	var sb strings.Builder
	sb.WriteString(eventRowInsertPrefix(csvLayout))

	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		sb.WriteString(sqlLiteral(r.PersistenceID))
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(r.SequenceNr))
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(r.Timestamp))
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(r.Deleted))
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(r.Message))
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(r.Manifest))
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(nullString(r.EventManifest)))
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(r.Identifier))
		if csvLayout {
			sb.WriteByte(',')
			sb.WriteString(sqlLiteral(nullString(row.EncodeCSVTags(r.TagArray))))
		}
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(r.WriteUUID))
		sb.WriteByte(')')
	}

	_, err := tx.ExecContext(ctx, sb.String())
	if err != nil {
		return fmt.Errorf("multi-row insert (literal): %w", err)
	}
	return nil
}

func multiRowInsertTagRows(ctx context.Context, tx *sql.Tx, rows []row.TagRow, chunkSize int, preferParams bool) error {
	if len(rows) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = len(rows)
	}
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		var err error
		if preferParams {
			err = insertTagRowChunkParams(ctx, tx, rows[start:end])
		} else {
			err = insertTagRowChunkLiteral(ctx, tx, rows[start:end])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

const tagRowInsertPrefix = "INSERT INTO journal_tag_row (ordering_id, tag_value, persistence_id, sequence_number, write_uuid) VALUES "

func insertTagRowChunkParams(ctx context.Context, tx *sql.Tx, rows []row.TagRow) error {
	var sb strings.Builder
	sb.WriteString(tagRowInsertPrefix)

	args := make([]any, 0, len(rows)*5)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := len(args)
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, r.OrderingID, r.TagValue, r.PersistenceID, r.SequenceNr, r.WriteUUID)
	}

	_, err := tx.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("multi-row tag insert: %w", err)
	}
	return nil
}

func insertTagRowChunkLiteral(ctx context.Context, tx *sql.Tx, rows []row.TagRow) error {
	var sb strings.Builder
	sb.WriteString(tagRowInsertPrefix)

	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		sb.WriteString(sqlLiteral(r.OrderingID))
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(r.TagValue))
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(r.PersistenceID))
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(r.SequenceNr))
		sb.WriteByte(',')
		sb.WriteString(sqlLiteral(r.WriteUUID))
		sb.WriteByte(')')
	}

	_, err := tx.ExecContext(ctx, sb.String())
	if err != nil {
		return fmt.Errorf("multi-row tag insert (literal): %w", err)
	}
	return nil
}

// sqlLiteral renders v as Postgres literal SQL text, for the
// non-parameterized multi-row insert path. Strings and []byte go through
// pq.QuoteLiteral/hex escaping; everything else has no injection surface.
func sqlLiteral(v any) string {
	switch x := v.(type) {
	case string:
		return pq.QuoteLiteral(x)
	case []byte:
		return pq.QuoteLiteral(`\x` + hex.EncodeToString(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case sql.NullString:
		if !x.Valid {
			return "NULL"
		}
		return pq.QuoteLiteral(x.String)
	case sql.NullInt64:
		if !x.Valid {
			return "NULL"
		}
		return strconv.FormatInt(x.Int64, 10)
	case fmt.Stringer:
		return pq.QuoteLiteral(x.String())
	default:
		panic(fmt.Sprintf("sqlLiteral: unsupported type %T", v))
	}
}
