package kb

import "sync/atomic"

// Clock is the monotonic logical clock that stamps facts.
//
// Sequence numbers order facts by insertion. They never come from wall
// time, so replaying a log reproduces the same order.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
