// Package write implements the journal's write pipeline: a bounded
// queue with drop-newest overflow, a weight-batching stage, and a
// bounded-parallelism transactional insert stage.
package write

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relaydb/sqljournal/internal/dbconn"
	"github.com/relaydb/sqljournal/internal/row"
	"github.com/relaydb/sqljournal/internal/serializer"
)

// Config holds the write pipeline's tuning knobs.
type Config struct {
	BufferSize              int
	BatchSize               int
	Parallelism             int
	MaxRowByRowSize         int
	DBRoundTripBatchSize    int
	DBRoundTripTagBatchSize int

	// PreferParametersOnMultiRowInsert selects, within the MultipleRows
	// bulk strategy, a parameterized VALUES list (true, the default) vs.
	// inlining every value as a quoted SQL literal directly in the
	// statement text (false). The literal form has no per-statement
	// placeholder count to stay under, which matters once
	// DBRoundTripBatchSize/DBRoundTripTagBatchSize push a single chunk
	// past the driver's placeholder ceiling.
	PreferParametersOnMultiRowInsert bool
}

// batchIdleWindow is how long the batcher waits for the next queued entry
// before flushing an under-sized batch rather than holding it open
// forever waiting to reach BatchSize.
const batchIdleWindow = 5 * time.Millisecond

// CommitNotifier is notified after a batch commits, so live queries that
// are also subscribed can poll early instead of waiting a full
// refresh_interval. It is optional; a nil Pipeline.notifier disables the
// optimization entirely, leaving correctness to polling alone.
type CommitNotifier interface {
	NotifyCommit(persistenceID string)
}

type queuedWrite struct {
	rows []row.EventRow
	done chan error
}

// Pipeline is the write pipeline described by spec C4. Start it once,
// submit writes with WriteMessages, and Stop it to drain and shut down.
type Pipeline struct {
	db       *dbconn.DB
	ser      serializer.Serializer
	cfg      Config
	logger   *slog.Logger
	notifier CommitNotifier

	queue   chan *queuedWrite
	batchCh chan []*queuedWrite

	closed   bool
	closedMu sync.RWMutex

	wg sync.WaitGroup
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithCommitNotifier attaches an optional low-latency hint publisher.
func WithCommitNotifier(n CommitNotifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// New constructs a Pipeline. Call Start before submitting writes.
func New(db *dbconn.DB, ser serializer.Serializer, cfg Config, opts ...Option) *Pipeline {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	p := &Pipeline{
		db:      db,
		ser:     ser,
		cfg:     cfg,
		logger:  slog.Default(),
		queue:   make(chan *queuedWrite, cfg.BufferSize),
		batchCh: make(chan []*queuedWrite, cfg.Parallelism),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the batching stage and the parallel write workers. ctx
// governs their lifetime: cancelling it ends the batcher without flushing
// its pending batch and lets the workers exit. Only Stop marks the
// pipeline closed so that later writes fail with ErrQueueClosed.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runBatcher(ctx)
	}()

	for i := 0; i < p.cfg.Parallelism; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(ctx)
		}()
	}
}

// Stop closes the queue, waits for in-flight batches to drain, and marks
// the pipeline closed: subsequent WriteMessages calls fail fast with
// ErrQueueClosed instead of blocking.
func (p *Pipeline) Stop() {
	p.closedMu.Lock()
	if p.closed {
		p.closedMu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.closedMu.Unlock()

	p.wg.Wait()
}

func (p *Pipeline) isClosed() bool {
	p.closedMu.RLock()
	defer p.closedMu.RUnlock()
	return p.closed
}

// enqueue implements the bounded queue's drop-newest overflow policy: a
// full queue rejects the newest arrival rather than blocking or evicting
// an older entry.
func (p *Pipeline) enqueue(qw *queuedWrite) error {
	p.closedMu.RLock()
	defer p.closedMu.RUnlock()
	if p.closed {
		return row.ErrQueueClosed
	}
	select {
	case p.queue <- qw:
		return nil
	default:
		return row.ErrQueueFull
	}
}

func (p *Pipeline) runBatcher(ctx context.Context) {
	defer close(p.batchCh)

	var batch []*queuedWrite
	weight := 0
	timer := time.NewTimer(batchIdleWindow)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		b := batch
		batch = nil
		weight = 0
		select {
		case p.batchCh <- b:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case qw, ok := <-p.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, qw)
			weight += len(qw.rows)
			if weight >= p.cfg.BatchSize {
				flush()
			}
			timer.Reset(batchIdleWindow)
		case <-timer.C:
			flush()
			timer.Reset(batchIdleWindow)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) runWorker(ctx context.Context) {
	for batch := range p.batchCh {
		p.processBatch(ctx, batch)
	}
}

func (p *Pipeline) processBatch(ctx context.Context, batch []*queuedWrite) {
	var rows []row.EventRow
	for _, qw := range batch {
		rows = append(rows, qw.rows...)
	}

	err := p.insertBatch(ctx, rows)
	if err != nil {
		p.logger.Error("journal write batch failed", "rows", len(rows), "error", err)
	} else if p.notifier != nil {
		seen := make(map[string]struct{}, len(batch))
		for _, r := range rows {
			if _, ok := seen[r.PersistenceID]; ok {
				continue
			}
			seen[r.PersistenceID] = struct{}{}
			p.notifier.NotifyCommit(r.PersistenceID)
		}
	}

	for _, qw := range batch {
		qw.done <- err
	}
}

func (p *Pipeline) insertBatch(ctx context.Context, rows []row.EventRow) error {
	if len(rows) == 0 {
		return nil
	}
	if len(rows) == 1 && (p.db.TagMode == row.TagModeCSV || !rows[0].HasTags()) {
		return p.insertSingleNoTx(ctx, &rows[0])
	}

	tx, err := p.db.BeginTx(ctx)
	if err != nil {
		return &row.StorageError{Op: "begin transaction", Err: err}
	}

	if err := p.insertMultiPath(ctx, tx, rows); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return &row.StorageError{Op: "insert (rollback also failed)", Err: row.AggregateError(err, rbErr)}
		}
		return &row.StorageError{Op: "insert", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &row.StorageError{Op: "commit", Err: err}
	}
	return nil
}

// WriteMessages serializes and persists a set of atomic writes. The
// returned slice has one entry per input write: nil on success, or
// whichever error (serialization, queue-full/closed, or the shared
// storage error of that write's batch) prevented it from being durably
// stored. The second return value is always nil: every failure, including
// ctx being done while a write is still waiting, is reported per write.
// On a pipeline that was never started nothing drains the queue, so the
// call waits on each accepted write until ctx is done.
func (p *Pipeline) WriteMessages(ctx context.Context, writes []serializer.AtomicWrite, timestamp int64) ([]error, error) {
	if len(writes) == 0 {
		return nil, nil
	}

	results := p.ser.SerializeAtomicWrites(writes, timestamp)
	errs := make([]error, len(results))

	type pending struct {
		idx int
		qw  *queuedWrite
	}
	var waiting []pending

	for i, res := range results {
		if res.Err != nil {
			errs[i] = res.Err
			continue
		}
		qw := &queuedWrite{rows: res.Rows, done: make(chan error, 1)}
		if err := p.enqueue(qw); err != nil {
			p.logger.Warn("journal write rejected", "persistence_id", writes[i].PersistenceID, "error", err)
			errs[i] = err
			continue
		}
		waiting = append(waiting, pending{idx: i, qw: qw})
	}

	for _, w := range waiting {
		select {
		case err := <-w.qw.done:
			errs[w.idx] = err
		case <-ctx.Done():
			errs[w.idx] = ctx.Err()
		}
	}

	return errs, nil
}
