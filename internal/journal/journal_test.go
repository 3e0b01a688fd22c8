package journal

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/relaydb/sqljournal/internal/cursor"
	"github.com/relaydb/sqljournal/internal/dbconn"
	"github.com/relaydb/sqljournal/internal/row"
	"github.com/relaydb/sqljournal/internal/serializer"
	"github.com/relaydb/sqljournal/internal/write"
)

func newTestJournal(t *testing.T, opts ...Option) (*Journal, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	conn := dbconn.NewForTest(db, row.TagModeCSV)
	j := New(conn, serializer.NewJSONSerializer(),
		write.Config{BufferSize: 10, BatchSize: 10, Parallelism: 1, MaxRowByRowSize: 20, DBRoundTripBatchSize: 500, DBRoundTripTagBatchSize: 500},
		ReadConfig{MaxBufferSize: 10, RefreshInterval: time.Millisecond, SafetyWindow: 0},
		false,
		opts...,
	)
	return j, mock
}

func TestJournal_HighestSequenceNrDelegatesToRetention(t *testing.T) {
	j, mock := newTestJournal(t)

	mock.ExpectQuery(`SELECT coalesce\(max\(sequence_number\), 0\) FROM journal_row WHERE persistence_id = \$1$`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(5)))

	got, err := j.HighestSequenceNr(context.Background(), "p1", 0)
	if err != nil {
		t.Fatalf("HighestSequenceNr: %v", err)
	}
	if got != 5 {
		t.Errorf("got %d, want 5", got)
	}
}

func TestJournal_DeleteDelegatesToRetention(t *testing.T) {
	j, mock := newTestJournal(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE journal_row`).
		WithArgs("p1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`SELECT max\(sequence_number\)`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(2)))
	mock.ExpectExec(`DELETE FROM journal_row`).
		WithArgs("p1", int64(2), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := j.Delete(context.Background(), "p1", 2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestJournal_AdmitLiveBoundsConcurrency(t *testing.T) {
	j, _ := newTestJournal(t, WithMaxConcurrentLiveQueries(1))

	release1, err := j.admitLive(context.Background(), cursor.ModeLive)
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := j.admitLive(ctx, cursor.ModeLive); err == nil {
		t.Fatal("expected second concurrent live admit to block until ctx deadline")
	}

	release1()
	release2, err := j.admitLive(context.Background(), cursor.ModeLive)
	if err != nil {
		t.Fatalf("admit after release: %v", err)
	}
	release2()
}

func TestJournal_RegisterWakeNoOpWithoutSubscriber(t *testing.T) {
	j, _ := newTestJournal(t)

	ch, release := j.registerWake(cursor.ModeLive)
	if ch != nil {
		t.Fatalf("got non-nil wake channel with no commit-hint subscriber running")
	}
	release()

	ch, release = j.registerWake(cursor.ModeCurrent)
	if ch != nil {
		t.Fatalf("got non-nil wake channel for a current-mode call")
	}
	release()
}

func TestJournal_RegisterWakeFansOutToLiveCallersOnly(t *testing.T) {
	j, _ := newTestJournal(t)
	j.wake = newWakeBroadcaster()

	liveCh, liveRelease := j.registerWake(cursor.ModeLive)
	defer liveRelease()
	if liveCh == nil {
		t.Fatal("expected a non-nil wake channel for a live call once a subscriber is running")
	}

	if curCh, curRelease := j.registerWake(cursor.ModeCurrent); curCh != nil {
		t.Fatal("current-mode calls must not be registered even when a subscriber is running")
	} else {
		curRelease()
	}

	j.wake.broadcast()
	select {
	case <-liveCh:
	default:
		t.Fatal("live caller's wake channel did not receive the broadcast")
	}
}

func TestJournal_AdmitLiveIgnoresCurrentMode(t *testing.T) {
	j, _ := newTestJournal(t, WithMaxConcurrentLiveQueries(1))

	r1, err := j.admitLive(context.Background(), cursor.ModeCurrent)
	if err != nil {
		t.Fatalf("admit current mode: %v", err)
	}
	defer r1()

	r2, err := j.admitLive(context.Background(), cursor.ModeCurrent)
	if err != nil {
		t.Fatalf("admit second current mode: %v", err)
	}
	r2()
}
