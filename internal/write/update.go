package write

import (
	"context"

	"github.com/relaydb/sqljournal/internal/row"
	"github.com/relaydb/sqljournal/internal/serializer"
)

// Update overwrites the Message of the row at (persistenceID, seqNr)
// with the serialization of repr. It never re-tags the row: any
// existing journal_tag_row entries for that row are left untouched.
// Update raises an UpdateError when serialization fails.
func (p *Pipeline) Update(ctx context.Context, persistenceID string, seqNr int64, repr serializer.PersistentRepr, timestamp int64) error {
	repr.PersistenceID = persistenceID
	repr.SequenceNr = seqNr

	r, err := p.ser.SerializeSingle(repr, timestamp)
	if err != nil {
		return &row.UpdateError{PersistenceID: persistenceID, SequenceNr: seqNr, Err: err}
	}

	res, err := p.db.Exec().ExecContext(ctx, `
		UPDATE journal_row
		SET message = $3
		WHERE persistence_id = $1 AND sequence_number = $2`,
		persistenceID, seqNr, r.Message,
	)
	if err != nil {
		return &row.UpdateError{PersistenceID: persistenceID, SequenceNr: seqNr, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &row.UpdateError{PersistenceID: persistenceID, SequenceNr: seqNr, Err: err}
	}
	if n == 0 {
		return &row.UpdateError{PersistenceID: persistenceID, SequenceNr: seqNr, Err: errNoSuchRow}
	}
	return nil
}
