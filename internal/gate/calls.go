// Package gate provides the two admission controls of a run: a call gate
// bounding concurrent remote calls and a batch gate bounding in-flight batches.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Calls is a counting semaphore owned by one run.
type Calls struct {
	sem      *semaphore.Weighted
	limit    int
	inflight atomic.Int64
	peak     atomic.Int64
}

// NewCalls returns a call gate admitting at most limit concurrent calls.
// A limit below 1 is treated as 1.
func NewCalls(limit int) *Calls {
	if limit < 1 {
		limit = 1
	}
	return &Calls{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

// Limit returns the configured bound.
func (c *Calls) Limit() int { return c.limit }

// Acquire blocks until a slot is free or ctx is done.
func (c *Calls) Acquire(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := c.inflight.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return nil
}

// Release frees a slot taken by Acquire.
func (c *Calls) Release() {
	c.inflight.Add(-1)
	c.sem.Release(1)
}

// Do runs fn while holding a slot. The slot is released on every exit path.
func (c *Calls) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.Acquire(ctx); err != nil {
		return err
	}
	defer c.Release()
	return fn(ctx)
}

// InFlight is the number of slots currently held.
func (c *Calls) InFlight() int { return int(c.inflight.Load()) }

// Peak is the highest InFlight value observed.
func (c *Calls) Peak() int { return int(c.peak.Load()) }
