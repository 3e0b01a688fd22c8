// Package journal implements the read journal control plane: it owns
// the database connection, the write pipeline, and the three read-side
// materializers (replay, tagquery, allevents), and exposes them through
// one Go interface. No RPC framework wraps it — Journal is the seam a
// real gRPC/HTTP adapter would sit behind.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaydb/sqljournal/internal/allevents"
	"github.com/relaydb/sqljournal/internal/cursor"
	"github.com/relaydb/sqljournal/internal/dbconn"
	"github.com/relaydb/sqljournal/internal/notify"
	"github.com/relaydb/sqljournal/internal/replay"
	"github.com/relaydb/sqljournal/internal/retention"
	"github.com/relaydb/sqljournal/internal/serializer"
	"github.com/relaydb/sqljournal/internal/tagquery"
	"github.com/relaydb/sqljournal/internal/write"
)

// ReadConfig carries the poll tuning every live/current query factory
// injects into its stream: refresh interval, page size, safety window.
type ReadConfig struct {
	MaxBufferSize   int
	RefreshInterval time.Duration
	SafetyWindow    int64
}

// Journal is the exposed surface: write_messages, update, delete,
// highest_sequence_nr, messages (replay), events_by_tag, all_events,
// persistence_ids. A real actor-runtime adapter wraps this in whatever
// RPC transport it needs; Journal itself knows nothing about transports.
type Journal struct {
	db   *dbconn.DB
	pipe *write.Pipeline
	ret  *retention.Retention
	rep  *replay.Replay
	tags *tagquery.TagQuery
	all  *allevents.AllEvents

	readCfg ReadConfig
	logger  *slog.Logger

	// liveSem bounds the number of concurrently running live queries;
	// current-mode queries are unbounded since they terminate on their
	// own.
	liveSem chan struct{}

	// sub/wake are the commit-hint consumer side: when natsURL is set,
	// Start subscribes and fans hints out to every live query currently
	// registered, so C7/C8/persistence_ids wake early instead of waiting
	// a full refresh_interval. Nil when natsURL is empty, leaving
	// correctness to polling alone.
	natsURL string
	sub     *notify.Subscriber
	wake    *wakeBroadcaster

	pendingFields
}

// Option configures optional Journal behavior.
type Option func(*Journal)

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// WithCommitNotifier attaches a write.CommitNotifier to the write
// pipeline (see internal/notify); nil leaves correctness to polling.
func WithCommitNotifier(n write.CommitNotifier) Option {
	return func(j *Journal) { j.pendingNotifier = n }
}

// WithArchiver attaches the optional backup-before-hard-delete safety
// net to the delete protocol (see internal/archive).
func WithArchiver(a retention.Archiver) Option {
	return func(j *Journal) { j.pendingArchiver = a }
}

// WithMaxConcurrentLiveQueries bounds how many live (tail) streams may
// run at once; 0 means unbounded.
func WithMaxConcurrentLiveQueries(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.liveSem = make(chan struct{}, n)
		}
	}
}

// WithNATSURL subscribes Start to commit hints at url, so that live
// EventsByTag/AllEvents/PersistenceIDs calls wake early instead of
// waiting a full refresh_interval. Pairs with WithCommitNotifier on the
// write side; an empty url (the default) leaves correctness to polling.
func WithNATSURL(url string) Option {
	return func(j *Journal) { j.natsURL = url }
}

// New wires every component over db with the given serializer, write
// config, and read poll config. compatMode enables the delete
// protocol's journal_metadata watermark bookkeeping.
func New(db *dbconn.DB, ser serializer.Serializer, writeCfg write.Config, readCfg ReadConfig, compatMode bool, opts ...Option) *Journal {
	j := &Journal{
		db:      db,
		rep:     replay.New(db, ser),
		tags:    tagquery.New(db, ser),
		all:     allevents.New(db, ser),
		readCfg: readCfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}

	var retOpts []retention.Option
	if j.pendingArchiver != nil {
		retOpts = append(retOpts, retention.WithArchiver(j.pendingArchiver))
	}
	j.ret = retention.New(db, compatMode, retOpts...)

	var pipeOpts []write.Option
	pipeOpts = append(pipeOpts, write.WithLogger(j.logger))
	if j.pendingNotifier != nil {
		pipeOpts = append(pipeOpts, write.WithCommitNotifier(j.pendingNotifier))
	}
	j.pipe = write.New(db, ser, writeCfg, pipeOpts...)

	return j
}

// pendingNotifier/pendingArchiver stash Option values applied before the
// pipeline/retention objects exist, since write.New/retention.New need
// them at construction time rather than after.
type pendingFields struct {
	pendingNotifier write.CommitNotifier
	pendingArchiver retention.Archiver
}

// Start launches the write pipeline's background stages and, if
// WithNATSURL was given, the commit-hint subscriber feeding live
// queries' wake channels. ctx governs both lifetimes.
func (j *Journal) Start(ctx context.Context) error {
	j.pipe.Start(ctx)

	if j.natsURL == "" {
		return nil
	}
	sub, hints, err := notify.NewSubscriber(ctx, j.natsURL)
	if err != nil {
		return fmt.Errorf("subscribing to commit hints: %w", err)
	}
	j.sub = sub
	j.wake = newWakeBroadcaster()
	go j.wake.run(hints)
	return nil
}

// Stop drains and shuts down the write pipeline, closes the commit-hint
// subscriber if one was started, then closes the database connection.
func (j *Journal) Stop() error {
	j.pipe.Stop()
	if j.sub != nil {
		_ = j.sub.Close()
	}
	return j.db.Close()
}

// WriteMessages atomically persists one or more batches of events.
func (j *Journal) WriteMessages(ctx context.Context, writes []serializer.AtomicWrite, timestamp int64) ([]error, error) {
	return j.pipe.WriteMessages(ctx, writes, timestamp)
}

// Update overwrites the stored representation of a single event in place.
func (j *Journal) Update(ctx context.Context, persistenceID string, seqNr int64, repr serializer.PersistentRepr, timestamp int64) error {
	return j.pipe.Update(ctx, persistenceID, seqNr, repr, timestamp)
}

// Delete runs the mark-then-hard-delete protocol up to and including maxSeq.
func (j *Journal) Delete(ctx context.Context, persistenceID string, maxSeq int64) error {
	return j.ret.Delete(ctx, persistenceID, maxSeq)
}

// HighestSequenceNr returns the highest sequence number stored for
// persistenceID, counting only sequence numbers strictly above fromSeq
// when fromSeq > 0.
func (j *Journal) HighestSequenceNr(ctx context.Context, persistenceID string, fromSeq int64) (int64, error) {
	return j.ret.HighestSequenceNr(ctx, persistenceID, fromSeq)
}

// Messages replays persisted events for persistenceID in [fromSeq, toSeq].
func (j *Journal) Messages(ctx context.Context, persistenceID string, fromSeq, toSeq, max int64) ([]serializer.EventResult, error) {
	return j.rep.Messages(ctx, persistenceID, fromSeq, toSeq, max)
}

// EventsByTag streams events carrying tag, current or live depending on
// mode. Live calls are admitted through the concurrency limit set by
// WithMaxConcurrentLiveQueries, blocking until a slot frees up or ctx is
// cancelled.
func (j *Journal) EventsByTag(ctx context.Context, tag string, offset int64, mode cursor.Mode, emit func(serializer.Envelope) error) (int64, error) {
	release, err := j.admitLive(ctx, mode)
	if err != nil {
		return 0, err
	}
	defer release()
	wake, unregister := j.registerWake(mode)
	defer unregister()
	return j.tags.EventsByTag(ctx, tag, offset, mode, tagquery.Config(j.readCfg), wake, emit)
}

// AllEvents streams every event in global ordering, current or live
// depending on mode.
func (j *Journal) AllEvents(ctx context.Context, offset int64, mode cursor.Mode, emit func(serializer.Envelope) error) (int64, error) {
	release, err := j.admitLive(ctx, mode)
	if err != nil {
		return 0, err
	}
	defer release()
	wake, unregister := j.registerWake(mode)
	defer unregister()
	return j.all.Events(ctx, offset, mode, allevents.Config(j.readCfg), wake, emit)
}

// PersistenceIDs implements the supplemented persistence_ids operation.
func (j *Journal) PersistenceIDs(ctx context.Context, offset int64, mode cursor.Mode, emit func(string) error) (int64, error) {
	release, err := j.admitLive(ctx, mode)
	if err != nil {
		return 0, err
	}
	defer release()
	wake, unregister := j.registerWake(mode)
	defer unregister()
	return j.all.PersistenceIDs(ctx, offset, mode, allevents.Config(j.readCfg), wake, emit)
}

// registerWake returns a wake channel for a live query to select on
// alongside its refresh timer, plus the func to release it. Returns a
// nil channel and a no-op release for current-mode calls or when no
// commit-hint subscriber is running: a nil channel never fires in a
// select, so cursor.Poll needs no special-casing either way.
func (j *Journal) registerWake(mode cursor.Mode) (<-chan struct{}, func()) {
	if mode != cursor.ModeLive || j.wake == nil {
		return nil, func() {}
	}
	return j.wake.register()
}

// admitLive acquires a live-query slot when mode is ModeLive and a
// concurrency limit was configured; current-mode queries and
// unbounded deployments pass through immediately. The returned release
// func is always safe to call, even as a no-op.
func (j *Journal) admitLive(ctx context.Context, mode cursor.Mode) (func(), error) {
	if mode != cursor.ModeLive || j.liveSem == nil {
		return func() {}, nil
	}
	select {
	case j.liveSem <- struct{}{}:
		return func() { <-j.liveSem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
