package retention

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/relaydb/sqljournal/internal/dbconn"
	"github.com/relaydb/sqljournal/internal/row"
)

func newMock(t *testing.T, tagMode row.TagMode) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestDelete_NativeModeCSV(t *testing.T) {
	db, mock := newMock(t, row.TagModeCSV)
	r := New(dbconn.NewForTest(db, row.TagModeCSV), false)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE journal_row\s+SET deleted = true\s+WHERE persistence_id = \$1 AND sequence_number <= \$2`).
		WithArgs("p1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(`SELECT max\(sequence_number\) FROM journal_row`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(3)))
	mock.ExpectExec(`DELETE FROM journal_row\s+WHERE persistence_id = \$1 AND sequence_number <= \$2 AND sequence_number < \$3`).
		WithArgs("p1", int64(3), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := r.Delete(context.Background(), "p1", 3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDelete_CompatModeTagTable(t *testing.T) {
	db, mock := newMock(t, row.TagModeTagTable)
	r := New(dbconn.NewForTest(db, row.TagModeTagTable), true)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE journal_row`).
		WithArgs("p1", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectQuery(`SELECT max\(sequence_number\)`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(5)))
	mock.ExpectExec(`INSERT INTO journal_metadata`).
		WithArgs("p1", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM journal_row`).
		WithArgs("p1", int64(5), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM journal_metadata`).
		WithArgs("p1", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM journal_tag_row`).
		WithArgs("p1", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	if err := r.Delete(context.Background(), "p1", 5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDelete_NothingEverWrittenIsNoOp(t *testing.T) {
	db, mock := newMock(t, row.TagModeCSV)
	r := New(dbconn.NewForTest(db, row.TagModeCSV), false)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE journal_row`).
		WithArgs("ghost", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT max\(sequence_number\)`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectCommit()

	if err := r.Delete(context.Background(), "ghost", 10); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

type fakeArchiver struct {
	snapshotted []row.EventRow
	pid         string
	maxSeq      int64
}

func (f *fakeArchiver) Snapshot(ctx context.Context, persistenceID string, maxSeq int64, rows []row.EventRow) error {
	f.pid = persistenceID
	f.maxSeq = maxSeq
	f.snapshotted = rows
	return nil
}

func TestDelete_ArchivesRowsBeforeHardDelete(t *testing.T) {
	db, mock := newMock(t, row.TagModeCSV)
	arch := &fakeArchiver{}
	r := New(dbconn.NewForTest(db, row.TagModeCSV), false, WithArchiver(arch))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE journal_row`).
		WithArgs("p1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(`SELECT max\(sequence_number\) FROM journal_row`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(3)))
	mock.ExpectQuery(`SELECT .* FROM journal_row\s+WHERE persistence_id = \$1 AND sequence_number <= \$2 AND sequence_number < \$3`).
		WithArgs("p1", int64(3), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{
			"ordering", "persistence_id", "sequence_number", "timestamp", "deleted",
			"message", "manifest", "event_manifest", "identifier", "tags", "write_uuid",
		}).AddRow(int64(1), "p1", int64(1), int64(0), false, []byte(`{}`), "m", nil, nil, "", "550e8400-e29b-41d4-a716-446655440000"))
	mock.ExpectExec(`DELETE FROM journal_row\s+WHERE persistence_id = \$1 AND sequence_number <= \$2 AND sequence_number < \$3`).
		WithArgs("p1", int64(3), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := r.Delete(context.Background(), "p1", 3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if arch.pid != "p1" || arch.maxSeq != 3 || len(arch.snapshotted) != 1 {
		t.Errorf("archiver got pid=%q maxSeq=%d rows=%d, want p1/3/1", arch.pid, arch.maxSeq, len(arch.snapshotted))
	}
}

func TestHighestSequenceNr_NativeModeFromZero(t *testing.T) {
	db, mock := newMock(t, row.TagModeCSV)
	r := New(dbconn.NewForTest(db, row.TagModeCSV), false)

	mock.ExpectQuery(`SELECT coalesce\(max\(sequence_number\), 0\) FROM journal_row WHERE persistence_id = \$1$`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(7)))

	got, err := r.HighestSequenceNr(context.Background(), "p1", 0)
	if err != nil {
		t.Fatalf("HighestSequenceNr: %v", err)
	}
	if got != 7 {
		t.Errorf("got %d, want 7", got)
	}
}

func TestHighestSequenceNr_CompatModeFromSeq(t *testing.T) {
	db, mock := newMock(t, row.TagModeCSV)
	r := New(dbconn.NewForTest(db, row.TagModeCSV), true)

	mock.ExpectQuery(`journal_metadata`).
		WithArgs("p1", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(9)))

	got, err := r.HighestSequenceNr(context.Background(), "p1", 2)
	if err != nil {
		t.Fatalf("HighestSequenceNr: %v", err)
	}
	if got != 9 {
		t.Errorf("got %d, want 9", got)
	}
}
