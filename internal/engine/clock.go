package engine

import "sync/atomic"

// Clock hands out the seqs that order the log.
//
// A call takes one seq; its notifications and its outcome take the seqs
// right after it, claimed in one go once the operation has run. Wall-clock
// time never enters the log, so replay reproduces every seq and every
// content-addressed ID. A call that fails to persist leaves its seqs
// unused.
type Clock struct {
	last atomic.Int64
}

// NewClockAt creates a clock whose last handed-out seq is last.
// A fresh log starts at 0; Open resumes after the last recorded seq.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.last.Store(last)
	return c
}

// Next claims the seq of a call.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Claim consumes the n seqs following the last one and returns the last
// seq claimed.
func (c *Clock) Claim(n int) int64 {
	return c.last.Add(int64(n))
}

// Current returns the last seq handed out.
func (c *Clock) Current() int64 {
	return c.last.Load()
}
