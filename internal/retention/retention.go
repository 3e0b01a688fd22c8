// Package retention implements the journal's delete protocol (spec C5):
// soft-delete a range, record a high-watermark, hard-delete everything
// below it, and answer highest_sequence_nr queries against whichever mode
// (native or compatibility) the deployment runs in.
package retention

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/relaydb/sqljournal/internal/dbconn"
	"github.com/relaydb/sqljournal/internal/row"
)

// Archiver snapshots rows about to be hard-deleted somewhere durable
// before Retention removes them. Matches archive.Archiver's Snapshot
// method without importing the archive package directly, so retention
// has no hard dependency on S3/AWS wiring.
type Archiver interface {
	Snapshot(ctx context.Context, persistenceID string, maxSeq int64, rows []row.EventRow) error
}

// Retention executes delete and highest_sequence_nr against a journal
// database. It holds no state of its own beyond the connection and the
// deployment's fixed layout/compatibility choices.
type Retention struct {
	db         *dbconn.DB
	compatMode bool
	archiver   Archiver
}

// Option configures optional Retention behavior.
type Option func(*Retention)

// WithArchiver attaches an optional backup-before-hard-delete safety
// net: every row about to be hard-deleted is snapshotted through it
// first. A failed snapshot aborts the delete rather than destroying
// unarchived data.
func WithArchiver(a Archiver) Option {
	return func(r *Retention) { r.archiver = a }
}

// New constructs a Retention. compatMode enables the journal_metadata
// high-watermark bookkeeping needed to stay compatible with readers that
// still expect the legacy metadata table.
func New(db *dbconn.DB, compatMode bool, opts ...Option) *Retention {
	r := &Retention{db: db, compatMode: compatMode}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Delete runs the delete protocol: mark-deleted, compute the watermark,
// optionally upsert it into journal_metadata, hard-delete everything
// strictly below the watermark, and (tag-table layout) drop the
// corresponding tag rows.
func (r *Retention) Delete(ctx context.Context, persistenceID string, maxSeq int64) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return &row.StorageError{Op: "begin transaction", Err: err}
	}

	if err := r.deleteTx(ctx, tx, persistenceID, maxSeq); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return &row.StorageError{Op: "delete (rollback also failed)", Err: row.AggregateError(err, rbErr)}
		}
		return &row.StorageError{Op: "delete", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &row.StorageError{Op: "commit", Err: err}
	}
	return nil
}

func (r *Retention) deleteTx(ctx context.Context, tx *sql.Tx, persistenceID string, maxSeq int64) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE journal_row
		SET deleted = true
		WHERE persistence_id = $1 AND sequence_number <= $2`,
		persistenceID, maxSeq,
	); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}

	var maxMarked sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT max(sequence_number) FROM journal_row
		WHERE persistence_id = $1 AND deleted = true`,
		persistenceID,
	).Scan(&maxMarked); err != nil {
		return fmt.Errorf("compute watermark: %w", err)
	}
	if !maxMarked.Valid {
		// Nothing was ever written for this persistence id; nothing to
		// hard-delete or record.
		return nil
	}
	watermark := maxMarked.Int64

	if r.compatMode {
		// journal_metadata's primary key is (persistence_id, sequence_number);
		// this insert records the new watermark, and the collapse delete
		// below removes every other row for this persistence id so exactly
		// one metadata row survives.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO journal_metadata (persistence_id, sequence_number)
			VALUES ($1, $2)
			ON CONFLICT (persistence_id, sequence_number) DO NOTHING`,
			persistenceID, watermark,
		); err != nil {
			return fmt.Errorf("upsert watermark metadata: %w", err)
		}
	}

	if r.archiver != nil {
		if err := r.snapshotBeforeHardDelete(ctx, tx, persistenceID, maxSeq, watermark); err != nil {
			return fmt.Errorf("archive before hard delete: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM journal_row
		WHERE persistence_id = $1 AND sequence_number <= $2 AND sequence_number < $3`,
		persistenceID, maxSeq, watermark,
	); err != nil {
		return fmt.Errorf("hard delete: %w", err)
	}

	if r.compatMode {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM journal_metadata
			WHERE persistence_id = $1 AND sequence_number < $2`,
			persistenceID, watermark,
		); err != nil {
			return fmt.Errorf("collapse watermark metadata: %w", err)
		}
	}

	if r.db.TagMode == row.TagModeTagTable {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM journal_tag_row
			WHERE persistence_id = $1 AND sequence_number <= $2`,
			persistenceID, maxSeq,
		); err != nil {
			return fmt.Errorf("delete tag rows: %w", err)
		}
	}

	return nil
}

// snapshotBeforeHardDelete reads every row the hard delete below is about
// to remove and hands it to the configured Archiver within the same
// transaction, so a crash between archiving and deleting can never lose
// a row that was never archived.
func (r *Retention) snapshotBeforeHardDelete(ctx context.Context, tx *sql.Tx, persistenceID string, maxSeq, watermark int64) error {
	csvLayout := r.db.TagMode == row.TagModeCSV
	cols := row.EventRowColumnsTagTable
	if csvLayout {
		cols = row.EventRowColumnsCSV
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+cols+`
		FROM journal_row
		WHERE persistence_id = $1 AND sequence_number <= $2 AND sequence_number < $3
		ORDER BY sequence_number ASC`,
		persistenceID, maxSeq, watermark,
	)
	if err != nil {
		return fmt.Errorf("select rows to archive: %w", err)
	}
	defer rows.Close()

	var snapshot []row.EventRow
	for rows.Next() {
		er, err := row.ScanEventRow(rows, csvLayout)
		if err != nil {
			return fmt.Errorf("scan row to archive: %w", err)
		}
		snapshot = append(snapshot, er)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows to archive: %w", err)
	}
	if len(snapshot) == 0 {
		return nil
	}

	return r.archiver.Snapshot(ctx, persistenceID, maxSeq, snapshot)
}

// HighestSequenceNr answers one of four query variants, selected by
// (compatibility mode) x (fromSeq > 0). It returns 0 when nothing has
// ever been observed for persistenceID, matching an actor's expectation
// that a never-written entity starts at sequence 0.
func (r *Retention) HighestSequenceNr(ctx context.Context, persistenceID string, fromSeq int64) (int64, error) {
	var query string
	switch {
	case !r.compatMode && fromSeq <= 0:
		query = `SELECT coalesce(max(sequence_number), 0) FROM journal_row WHERE persistence_id = $1`
	case !r.compatMode && fromSeq > 0:
		query = `SELECT coalesce(max(sequence_number), 0) FROM journal_row WHERE persistence_id = $1 AND sequence_number > $2`
	case r.compatMode && fromSeq <= 0:
		query = `
			SELECT coalesce(max(seq), 0) FROM (
				SELECT sequence_number AS seq FROM journal_row WHERE persistence_id = $1
				UNION ALL
				SELECT sequence_number AS seq FROM journal_metadata WHERE persistence_id = $1
			) combined`
	default:
		query = `
			SELECT coalesce(max(seq), 0) FROM (
				SELECT sequence_number AS seq FROM journal_row WHERE persistence_id = $1 AND sequence_number > $2
				UNION ALL
				SELECT sequence_number AS seq FROM journal_metadata WHERE persistence_id = $1 AND sequence_number > $2
			) combined`
	}

	var maxSeq int64
	var err error
	if fromSeq > 0 {
		err = r.db.Exec().QueryRowContext(ctx, query, persistenceID, fromSeq).Scan(&maxSeq)
	} else {
		err = r.db.Exec().QueryRowContext(ctx, query, persistenceID).Scan(&maxSeq)
	}
	if err != nil {
		return 0, &row.StorageError{Op: "highest_sequence_nr", Err: err}
	}
	return maxSeq, nil
}
