package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new SteppingTime.
var Epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// SteppingTime is a deterministic wall clock for tests. Every call to Now
// advances it by Step, so timestamps are distinct and reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SteppingTime struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewSteppingTime creates a clock starting at Epoch that advances one
// second per call.
func NewSteppingTime() *SteppingTime {
	return &SteppingTime{now: Epoch, Step: time.Second}
}

// Now returns the current instant and advances the clock.
func (c *SteppingTime) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Peek returns the next instant Now will return without advancing.
func (c *SteppingTime) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to Epoch.
func (c *SteppingTime) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}
