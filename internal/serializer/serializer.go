// Package serializer maps in-memory events to and from journal rows.
// The journal core never interprets a user payload; it calls a Serializer
// implementation to do so, and treats the resulting EventRow.Message as
// opaque bytes that must round-trip byte-for-byte.
package serializer

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/relaydb/sqljournal/internal/row"
)

// PersistentRepr is the in-memory representation of a single event before
// it has been shaped into a row, or after a row has been read back and
// deserialized.
type PersistentRepr struct {
	PersistenceID string
	SequenceNr    int64
	Payload       any
	Manifest      string
	EventManifest string
	Identifier    sql.NullInt64
	WriterUUID    uuid.UUID
	Timestamp     int64
	Deleted       bool
	Tags          []string
}

// AtomicWrite groups the events persisted in one transaction, sharing a
// single write_uuid. An atomic write either becomes fully visible to
// readers or not at all (spec P2).
type AtomicWrite struct {
	PersistenceID string
	Payloads      []PersistentRepr
}

// WriteResult is the serializer's outcome for one AtomicWrite: either a
// list of rows ready to persist, or the error that prevented serializing
// it. Errors on one AtomicWrite never affect its siblings.
type WriteResult struct {
	Rows []row.EventRow
	Err  error
}

// Envelope is the unit emitted by every read-side query (replay,
// events-by-tag, all-events): the database identity of an event plus its
// deserialized payload.
type Envelope struct {
	Ordering      int64
	PersistenceID string
	SequenceNr    int64
	Event         any
	Timestamp     int64
}

// EventResult is a single element of a row's deserialization fan-out.
// DeserializeRow returns a slice of these because one adapter invocation
// may expand a row into zero, one, or many envelopes; a non-nil Err
// marks that particular element as undecodable without affecting its
// siblings or terminating the stream.
type EventResult struct {
	Envelope Envelope
	Err      error
}

// Serializer is the contract the journal core depends on. Implementations
// own the wire format of Payload; the core never inspects Message bytes.
type Serializer interface {
	// SerializeAtomicWrites maps each AtomicWrite to its row set (or
	// error), stamping every row in a write with a fresh shared
	// WriterUUID and the supplied wall-clock timestamp when the event's
	// own Timestamp is zero. The returned slice has the same length and
	// order as writes.
	SerializeAtomicWrites(writes []AtomicWrite, timestamp int64) []WriteResult

	// SerializeSingle maps one event to a single row, for use by update
	// (which overwrites a row's Message in place and does not re-tag).
	SerializeSingle(repr PersistentRepr, timestamp int64) (row.EventRow, error)

	// DeserializeRow maps one stored row back to zero or more envelopes.
	// Called once per row read from storage; never mutates shared state.
	DeserializeRow(r row.EventRow) []EventResult
}

// now returns the wall clock in Unix nanoseconds, as a var so tests can
// pin it. JSONSerializer does not call it: a zero Timestamp is stamped
// with the timestamp argument the caller passes in.
var now = func() int64 { return time.Now().UnixNano() }
