// Package row defines the typed row shapes persisted by the journal and
// the invariants that tie them together (see journal_row, journal_tag_row,
// and journal_metadata in the design notes).
package row

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TagMode selects the physical layout used to store an event's tags.
// Fixed per deployment at bootstrap; switching layouts requires an
// offline migration (dbconn.Open runs only the chosen layout's migrations).
type TagMode string

const (
	// TagModeCSV packs tags into the event row's Tags column.
	TagModeCSV TagMode = "csv"
	// TagModeTagTable normalizes tags into a separate TagRow per tag.
	TagModeTagTable TagMode = "tag_table"
)

// Valid reports whether m is one of the two supported layouts.
func (m TagMode) Valid() bool {
	return m == TagModeCSV || m == TagModeTagTable
}

// TagSeparator delimits tags within the CSV layout's Tags column. A tag
// containing this character cannot be round-tripped and is rejected by
// ValidateTag.
const TagSeparator = ";"

// ValidateTag rejects tags that cannot be safely stored under the CSV
// layout (it would be indistinguishable from a tag boundary).
func ValidateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("row: tag must not be empty")
	}
	if strings.Contains(tag, TagSeparator) {
		return fmt.Errorf("row: tag %q must not contain separator %q", tag, TagSeparator)
	}
	return nil
}

// EncodeCSVTags joins tags into the delimited form stored in
// EventRow.Tags: leading and trailing separators let CSV tag queries match
// on "%;tag;%" without special-casing the first or last tag.
func EncodeCSVTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return TagSeparator + strings.Join(tags, TagSeparator) + TagSeparator
}

// DecodeCSVTags splits a Tags column value produced by EncodeCSVTags back
// into individual tags.
func DecodeCSVTags(csv string) []string {
	trimmed := strings.Trim(csv, TagSeparator)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, TagSeparator)
}

// EventRow is one persisted event: one row per event, ever (hard-delete
// aside). Ordering is assigned by the database on insert and is the
// global read cursor; SequenceNr is caller-assigned and, within a single
// PersistenceID written by a single-writer caller, strictly increasing
// and gap-free.
type EventRow struct {
	Ordering      int64
	PersistenceID string
	SequenceNr    int64
	Timestamp     int64
	Deleted       bool
	Message       []byte
	Manifest      string
	EventManifest string
	Identifier    sql.NullInt64

	// Tags holds the CSV-encoded tag set; only meaningful under
	// TagModeCSV. Always empty under TagModeTagTable.
	Tags string

	// TagArray is the logical tag set attached to this event at write
	// time. It is never a persisted column on journal_row; under
	// TagModeTagTable it drives the TagRow fan-out in the write
	// pipeline, and under TagModeCSV it is the source EncodeCSVTags
	// flattens into Tags.
	TagArray []string

	// WriteUUID correlates every row written by the same atomic write.
	WriteUUID uuid.UUID
}

// HasTags reports whether this row carries any tags, independent of layout.
func (r *EventRow) HasTags() bool {
	return len(r.TagArray) > 0
}

// TagRow is a single (ordering, tag) pair under TagModeTagTable.
// Invariant: for every TagRow, exactly one EventRow exists with matching
// OrderingID/PersistenceID/SequenceNr.
type TagRow struct {
	OrderingID    int64
	TagValue      string
	PersistenceID string
	SequenceNr    int64
	WriteUUID     uuid.UUID
}

// MetadataRow records, in delete-compatibility mode, the historical
// maximum sequence number ever observed for a persistence id so that
// HighestSequenceNr survives a hard-delete of the live rows.
type MetadataRow struct {
	PersistenceID string
	SequenceNr    int64
}
