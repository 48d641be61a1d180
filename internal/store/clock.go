package store

import "sync/atomic"

// Clock is the monotonic logical clock shared by snapshots, fetch stamps
// and overlay confirmations. Comparing two stamps tells whether a fetch
// started before or after a mutation was confirmed.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
