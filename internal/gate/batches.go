package gate

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// PanicError carries a panic raised inside a batch back to the orchestrator.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Completion is the outcome of one launched batch.
type Completion[T any] struct {
	ID     int
	Result T
	Err    error
}

// Batches tracks a dynamic set of in-flight batches and admits new ones
// greedily: when full, the caller waits for whichever batch finishes first.
//
// Launch and Next are called from a single orchestrating goroutine. The
// spawned batch goroutines only ever send on done.
type Batches[T any] struct {
	limit    int
	inflight map[int]struct{}
	done     chan Completion[T]
	peak     int
	wg       sync.WaitGroup
}

// NewBatches returns a batch gate with the given bound. A limit below 1 is treated as 1.
func NewBatches[T any](limit int) *Batches[T] {
	if limit < 1 {
		limit = 1
	}
	return &Batches[T]{
		limit:    limit,
		inflight: make(map[int]struct{}, limit),
		done:     make(chan Completion[T], limit),
	}
}

// Limit returns the configured bound.
func (b *Batches[T]) Limit() int { return b.limit }

// Len is the number of batches in flight.
func (b *Batches[T]) Len() int { return len(b.inflight) }

// Full reports whether a new batch would exceed the bound.
func (b *Batches[T]) Full() bool { return len(b.inflight) >= b.limit }

// Peak is the highest number of batches that were in flight at once.
func (b *Batches[T]) Peak() int { return b.peak }

// Launch starts fn for batch id. It fails if the gate is full; callers wait
// with Next first.
func (b *Batches[T]) Launch(ctx context.Context, id int, fn func(ctx context.Context) (T, error)) error {
	if b.Full() {
		return fmt.Errorf("batch gate full (%d in flight)", len(b.inflight))
	}
	if _, dup := b.inflight[id]; dup {
		return fmt.Errorf("batch %d already in flight", id)
	}
	b.inflight[id] = struct{}{}
	if n := len(b.inflight); n > b.peak {
		b.peak = n
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		var c Completion[T]
		c.ID = id
		defer func() {
			if r := recover(); r != nil {
				c.Err = &PanicError{Value: r, Stack: string(debug.Stack())}
			}
			// done has capacity limit, so this send never blocks.
			b.done <- c
		}()
		c.Result, c.Err = fn(ctx)
	}()
	return nil
}

// Next waits for the fastest in-flight batch and removes it from the set
// before returning, so a following Launch sees the freed slot.
func (b *Batches[T]) Next(ctx context.Context) (Completion[T], error) {
	if len(b.inflight) == 0 {
		return Completion[T]{}, fmt.Errorf("no batches in flight")
	}
	if err := ctx.Err(); err != nil {
		return Completion[T]{}, err
	}
	select {
	case c := <-b.done:
		delete(b.inflight, c.ID)
		return c, nil
	case <-ctx.Done():
		return Completion[T]{}, ctx.Err()
	}
}

// Drain waits for every in-flight batch to finish and discards the results.
// Used on cancellation so no goroutine outlives the run.
func (b *Batches[T]) Drain() {
	b.wg.Wait()
	for len(b.inflight) > 0 {
		c := <-b.done
		delete(b.inflight, c.ID)
	}
}
