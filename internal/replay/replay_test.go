package replay

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/relaydb/sqljournal/internal/dbconn"
	"github.com/relaydb/sqljournal/internal/row"
	"github.com/relaydb/sqljournal/internal/serializer"
)

func TestMessages_CSVLayoutExcludesDeletedAndAppliesLimit(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	wu := uuid.New().String()
	mock.ExpectQuery(`SELECT .* FROM journal_row\s+WHERE persistence_id = \$1 AND sequence_number >= \$2 AND sequence_number <= \$3 AND deleted = false\s+ORDER BY sequence_number ASC LIMIT 10`).
		WithArgs("p1", int64(1), int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{
			"ordering", "persistence_id", "sequence_number", "timestamp", "deleted",
			"message", "manifest", "event_manifest", "identifier", "tags", "write_uuid",
		}).AddRow(int64(1), "p1", int64(1), int64(1000), false, []byte(`{}`), "m", nil, nil, nil, wu))

	r := New(dbconn.NewForTest(db, row.TagModeCSV), serializer.NewJSONSerializer())
	results, err := r.Messages(context.Background(), "p1", 1, 100, 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("unexpected per-row error: %v", results[0].Err)
	}
	if results[0].Envelope.SequenceNr != 1 {
		t.Errorf("SequenceNr = %d, want 1", results[0].Envelope.SequenceNr)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMessages_BadWriteUUIDIsPerRowError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM journal_row`).
		WillReturnRows(sqlmock.NewRows([]string{
			"ordering", "persistence_id", "sequence_number", "timestamp", "deleted",
			"message", "manifest", "event_manifest", "identifier", "write_uuid",
		}).AddRow(int64(1), "p1", int64(1), int64(1000), false, []byte(`{}`), "m", nil, nil, "not-a-uuid"))

	r := New(dbconn.NewForTest(db, row.TagModeTagTable), serializer.NewJSONSerializer())
	results, err := r.Messages(context.Background(), "p1", 1, 100, 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Err == nil {
		t.Fatal("expected a per-row deserialization error")
	}
}
