package idgen

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// writeUUIDCounter is the process-global monotonic counter backing
// NextWriteUUID (spec C9). It is initialized from the process wall clock
// so that identifiers minted by a freshly restarted process still sort
// after identifiers minted by the same process in a previous life, modulo
// wall-clock skew — the design tolerates wraparound relative to the
// clock across restarts rather than guaranteeing it away.
var writeUUIDCounter atomic.Uint64

func init() {
	writeUUIDCounter.Store(uint64(time.Now().UnixNano()))
}

// NextWriteUUID returns a 128-bit identifier correlating the rows of one
// atomic write group. The high 8 bytes are a random base drawn once per
// call (via uuid.New, which in turn draws from crypto/rand); the low 8
// bytes are overwritten by a process-global monotonic counter. Two
// identifiers minted on the same host therefore compare consistently by
// insertion order under common SQL byte-wise collations, which lets
// consumers correlate a group of rows without a central allocator.
func NextWriteUUID() uuid.UUID {
	base := uuid.New()
	seq := writeUUIDCounter.Add(1)

	var id uuid.UUID
	copy(id[:8], base[:8])
	binary.BigEndian.PutUint64(id[8:], seq)
	return id
}
