package engine

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the wall-clock time stamped on documents, versions and
// workflow history. Tests use a deterministic clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// IDGenerator generates document ids.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 document ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids sort by
// creation time. Safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a new hyphenated UUIDv7.
//
// Panics if the random source fails.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
