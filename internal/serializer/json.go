package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/relaydb/sqljournal/internal/idgen"
	"github.com/relaydb/sqljournal/internal/row"
)

// JSONSerializer is the reference Serializer: payloads are marshaled to
// and from JSON. Manifest is set to the Go type name so DeserializeRow
// can round-trip into the right shape when a Registry entry is present;
// with no Registry entry the payload is left as json.RawMessage.
type JSONSerializer struct {
	// Registry maps a manifest string to a zero-value constructor for
	// the payload type it should be unmarshaled into. Optional.
	Registry map[string]func() any
}

// NewJSONSerializer returns a JSONSerializer with an empty registry.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{Registry: make(map[string]func() any)}
}

func (s *JSONSerializer) SerializeAtomicWrites(writes []AtomicWrite, timestamp int64) []WriteResult {
	results := make([]WriteResult, len(writes))
	for i, w := range writes {
		results[i] = s.serializeOne(w, timestamp)
	}
	return results
}

func (s *JSONSerializer) serializeOne(w AtomicWrite, timestamp int64) WriteResult {
	if w.PersistenceID == "" {
		return WriteResult{Err: fmt.Errorf("serializer: empty persistence id")}
	}
	if len(w.Payloads) == 0 {
		return WriteResult{Err: fmt.Errorf("serializer: atomic write for %s has no events", w.PersistenceID)}
	}

	writerUUID := idgen.NextWriteUUID()
	rows := make([]row.EventRow, 0, len(w.Payloads))
	for _, p := range w.Payloads {
		r, err := s.toRow(p, writerUUID, timestamp)
		if err != nil {
			return WriteResult{Err: fmt.Errorf("serializer: %s/%d: %w", w.PersistenceID, p.SequenceNr, err)}
		}
		rows = append(rows, r)
	}
	return WriteResult{Rows: rows}
}

func (s *JSONSerializer) SerializeSingle(p PersistentRepr, timestamp int64) (row.EventRow, error) {
	writerUUID := p.WriterUUID
	if writerUUID == uuid.Nil {
		writerUUID = idgen.NextWriteUUID()
	}
	return s.toRow(p, writerUUID, timestamp)
}

func (s *JSONSerializer) toRow(p PersistentRepr, writerUUID uuid.UUID, timestamp int64) (row.EventRow, error) {
	message, err := json.Marshal(p.Payload)
	if err != nil {
		return row.EventRow{}, fmt.Errorf("marshal payload: %w", err)
	}

	ts := p.Timestamp
	if ts == 0 {
		ts = timestamp
	}

	manifest := p.Manifest
	if manifest == "" {
		manifest = fmt.Sprintf("%T", p.Payload)
	}

	return row.EventRow{
		PersistenceID: p.PersistenceID,
		SequenceNr:    p.SequenceNr,
		Timestamp:     ts,
		Deleted:       p.Deleted,
		Message:       message,
		Manifest:      manifest,
		EventManifest: p.EventManifest,
		Identifier:    p.Identifier,
		TagArray:      p.Tags,
		WriteUUID:     writerUUID,
	}, nil
}

func (s *JSONSerializer) DeserializeRow(r row.EventRow) []EventResult {
	var payload any
	if ctor, ok := s.Registry[r.Manifest]; ok {
		payload = ctor()
		if err := json.Unmarshal(r.Message, payload); err != nil {
			return []EventResult{{Err: &row.DeserializationError{Ordering: r.Ordering, Err: err}}}
		}
	} else {
		var raw json.RawMessage = append(json.RawMessage(nil), r.Message...)
		payload = raw
	}

	return []EventResult{{
		Envelope: Envelope{
			Ordering:      r.Ordering,
			PersistenceID: r.PersistenceID,
			SequenceNr:    r.SequenceNr,
			Event:         payload,
			Timestamp:     r.Timestamp,
		},
	}}
}
