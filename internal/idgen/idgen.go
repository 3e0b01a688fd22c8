// Package idgen mints the two kinds of identifiers the journal needs:
// write-group correlation ids (NextWriteUUID, see writeuuid.go) and
// short human-legible persistence ids for demo/seed/benchmark tooling
// (this file), backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultPrefix is prepended to every generated demo persistence id.
var DefaultPrefix = "pid-"

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// GeneratePersistenceID returns a new short persistence id for use by
// journalctl's seed/benchmark commands. It never touches the wire
// format of a write: callers still choose their own persistence ids in
// production; this exists only so the CLI can generate plausible-looking
// ones on demand.
func GeneratePersistenceID() (string, error) {
	return GeneratePersistenceIDWithPrefix(DefaultPrefix)
}

// GeneratePersistenceIDWithPrefix returns a new persistence id with the
// given prefix.
func GeneratePersistenceIDWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
