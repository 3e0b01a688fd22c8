package write

import (
	"context"
	"errors"
	"testing"

	"github.com/relaydb/sqljournal/internal/row"
	"github.com/relaydb/sqljournal/internal/serializer"
)

// stubSerializer lets tests control SerializeAtomicWrites without going
// through JSONSerializer's real encoding.
type stubSerializer struct {
	results func(writes []serializer.AtomicWrite) []serializer.WriteResult
}

func (s *stubSerializer) SerializeAtomicWrites(writes []serializer.AtomicWrite, _ int64) []serializer.WriteResult {
	return s.results(writes)
}

func (s *stubSerializer) SerializeSingle(p serializer.PersistentRepr, _ int64) (row.EventRow, error) {
	return row.EventRow{PersistenceID: p.PersistenceID, SequenceNr: p.SequenceNr}, nil
}

func (s *stubSerializer) DeserializeRow(r row.EventRow) []serializer.EventResult {
	return nil
}

func oneRowPerWrite(writes []serializer.AtomicWrite) []serializer.WriteResult {
	out := make([]serializer.WriteResult, len(writes))
	for i, w := range writes {
		out[i] = serializer.WriteResult{Rows: []row.EventRow{{PersistenceID: w.PersistenceID, SequenceNr: 1}}}
	}
	return out
}

// TestWriteMessages_QueueFull exercises spec P7/S5: a saturated queue
// fails new writes with ErrQueueFull rather than growing unbounded. The
// pipeline is deliberately never Start-ed so nothing drains the queue.
func TestWriteMessages_QueueFull(t *testing.T) {
	p := New(nil, &stubSerializer{results: oneRowPerWrite}, Config{BufferSize: 2, BatchSize: 10, Parallelism: 1})

	writes := []serializer.AtomicWrite{
		{PersistenceID: "a", Payloads: []serializer.PersistentRepr{{SequenceNr: 1}}},
		{PersistenceID: "b", Payloads: []serializer.PersistentRepr{{SequenceNr: 1}}},
		{PersistenceID: "c", Payloads: []serializer.PersistentRepr{{SequenceNr: 1}}},
	}

	// The first two fill the buffered channel and nothing ever drains
	// them, so ctx is cancelled up front: their waits return ctx.Err()
	// instead of blocking. We only assert on the third, which must be
	// rejected immediately by the bounded select.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs, callErr := p.WriteMessages(ctx, writes, 0)
	if callErr != nil {
		t.Fatalf("unexpected call error: %v", callErr)
	}
	if len(errs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(errs))
	}

	if !errors.Is(errs[2], row.ErrQueueFull) {
		t.Errorf("errs[2] = %v, want ErrQueueFull", errs[2])
	}
}

func TestWriteMessages_SerializationErrorIsPerWrite(t *testing.T) {
	boom := errors.New("boom")
	p := New(nil, &stubSerializer{results: func(writes []serializer.AtomicWrite) []serializer.WriteResult {
		out := make([]serializer.WriteResult, len(writes))
		out[0] = serializer.WriteResult{Rows: []row.EventRow{{PersistenceID: writes[0].PersistenceID, SequenceNr: 1}}}
		out[1] = serializer.WriteResult{Err: boom}
		return out
	}}, Config{BufferSize: 4, BatchSize: 10, Parallelism: 1})

	writes := []serializer.AtomicWrite{
		{PersistenceID: "a", Payloads: []serializer.PersistentRepr{{SequenceNr: 1}}},
		{PersistenceID: "b", Payloads: []serializer.PersistentRepr{{SequenceNr: 1}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled up front so the wait on write[0]'s done channel returns immediately via ctx.Done()

	errs, callErr := p.WriteMessages(ctx, writes, 0)
	if callErr != nil {
		t.Fatalf("unexpected call error: %v", callErr)
	}
	if !errors.Is(errs[1], boom) {
		t.Errorf("errs[1] = %v, want %v", errs[1], boom)
	}
	if !errors.Is(errs[0], context.Canceled) {
		t.Errorf("errs[0] = %v, want context.Canceled", errs[0])
	}
}

func TestChooseStrategy(t *testing.T) {
	if got := chooseStrategy(100, 50); got != strategyDefault {
		t.Errorf("chooseStrategy(100, 50) = %v, want strategyDefault", got)
	}
	if got := chooseStrategy(10, 50); got != strategyMultipleRows {
		t.Errorf("chooseStrategy(10, 50) = %v, want strategyMultipleRows", got)
	}
	if got := chooseStrategy(50, 50); got != strategyMultipleRows {
		t.Errorf("chooseStrategy(50, 50) = %v, want strategyMultipleRows (boundary is exclusive)", got)
	}
}
