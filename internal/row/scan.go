package row

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Scannable is satisfied by both *sql.Row and *sql.Rows.
type Scannable interface {
	Scan(dest ...any) error
}

// EventRowColumnsCSV is the column list (and order) ScanEventRow expects
// under TagModeCSV.
const EventRowColumnsCSV = `ordering, persistence_id, sequence_number, "timestamp", deleted, message, manifest, event_manifest, identifier, tags, write_uuid`

// EventRowColumnsTagTable is the column list (and order) ScanEventRow
// expects under TagModeTagTable (no tags column on journal_row).
const EventRowColumnsTagTable = `ordering, persistence_id, sequence_number, "timestamp", deleted, message, manifest, event_manifest, identifier, write_uuid`

// ScanEventRow scans one journal_row result into an EventRow. csvLayout
// must match whichever of EventRowColumnsCSV/EventRowColumnsTagTable was
// used to build the query this row came from.
func ScanEventRow(s Scannable, csvLayout bool) (EventRow, error) {
	var (
		r             EventRow
		eventManifest sql.NullString
		tags          sql.NullString
		writeUUIDStr  string
	)

	dest := []any{
		&r.Ordering, &r.PersistenceID, &r.SequenceNr, &r.Timestamp, &r.Deleted,
		&r.Message, &r.Manifest, &eventManifest, &r.Identifier,
	}
	if csvLayout {
		dest = append(dest, &tags)
	}
	dest = append(dest, &writeUUIDStr)

	if err := s.Scan(dest...); err != nil {
		return EventRow{}, err
	}

	r.EventManifest = eventManifest.String
	if csvLayout {
		r.Tags = tags.String
		r.TagArray = DecodeCSVTags(tags.String)
	}

	id, err := uuid.Parse(writeUUIDStr)
	if err != nil {
		return EventRow{}, fmt.Errorf("row: parse write_uuid %q: %w", writeUUIDStr, err)
	}
	r.WriteUUID = id
	return r, nil
}
