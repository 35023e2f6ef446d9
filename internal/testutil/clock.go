// Package testutil provides deterministic time and id sources for tests
// and scenario runs.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a FixedClock.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// FixedClock is a wall clock that advances by a fixed step on every read.
//
// Two clocks built with the same start and step return identical
// sequences, so traces that embed timestamps are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	next  time.Time
}

// NewFixedClock creates a clock whose first reading is start. A zero start
// uses Epoch; a zero step uses one second.
func NewFixedClock(start time.Time, step time.Duration) *FixedClock {
	if start.IsZero() {
		start = Epoch
	}
	if step == 0 {
		step = time.Second
	}
	return &FixedClock{start: start, step: step, next: start}
}

// Now returns the current reading and advances the clock by one step.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

// Peek returns the next reading without advancing.
func (c *FixedClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to its start.
func (c *FixedClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.start
}
