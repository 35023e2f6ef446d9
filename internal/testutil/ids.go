package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable document ids shaped like UUIDs:
//
//	00000000-0000-7000-8000-000000000001
//	00000000-0000-7000-8000-000000000002
//
// Ids sort in generation order, like the UUIDv7 ids they stand in for.
//
// Thread-safety: SequenceIDs is safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu sync.Mutex
	n  int64
}

// NewSequenceIDs creates a generator whose first id ends in 1.
func NewSequenceIDs() *SequenceIDs {
	return &SequenceIDs{}
}

// NewID returns the next id.
func (g *SequenceIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", g.n)
}

// Reset restarts the sequence.
func (g *SequenceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
