package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrBudgetExhausted wraps the last error when attempts or time run out.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// Policy configures one invocation. A zero Total disables the time budget.
type Policy struct {
	Total       time.Duration
	Margin      time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	PerAttempt  time.Duration

	// Jitter returns a duration in [0, max). Defaults to uniform random.
	Jitter func(max time.Duration) time.Duration
	// OnRetry is called before each backoff wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Budget is the per-invocation state. Created by Start, discarded after.
type Budget struct {
	policy Policy
	start  time.Time
}

// Start begins a budget at the current monotonic time.
func (p Policy) Start() *Budget {
	return &Budget{policy: p, start: time.Now()}
}

// Elapsed is the time spent since Start.
func (b *Budget) Elapsed() time.Duration {
	return time.Since(b.start)
}

// Remaining is total minus elapsed minus the safety margin.
// Without a total it reports a very large duration.
func (b *Budget) Remaining() time.Duration {
	if b.policy.Total <= 0 {
		return time.Duration(1<<62 - 1)
	}
	return b.policy.Total - b.policy.Margin - b.Elapsed()
}

func (b *Budget) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	limit := b.policy.PerAttempt
	if b.policy.Total > 0 {
		rem := b.Remaining()
		if rem < 0 {
			rem = 0
		}
		if limit <= 0 || rem < limit {
			limit = rem
		}
	}
	if limit <= 0 && b.policy.Total <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, limit)
}

// FullJitter returns a uniformly random duration in [0, base*2^attempt).
func FullJitter(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	ceiling := base << attempt
	if ceiling <= 0 {
		ceiling = base
	}
	return time.Duration(rand.Int64N(int64(ceiling)))
}

// Do runs op until it succeeds, fails fatally, or the policy's attempts or time run out.
// Each attempt gets its own context, cancelled at the per-attempt ceiling or the
// budget's remaining time, whichever is sooner.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := p.Start()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		actx, cancel := b.attemptContext(ctx)
		v, err := op(actx)
		softLimit := err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, err
		}
		class := Classify(err)
		if softLimit {
			class = Retryable
		}
		if class != Retryable {
			return zero, err
		}
		if attempt+1 >= maxAttempts {
			break
		}
		remaining := b.Remaining()
		if remaining <= 0 {
			break
		}

		wait := jitter(p, attempt)
		if half := remaining / 2; wait > half {
			wait = half
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, wait, err)
		}
		if err := sleepWithCtx(ctx, wait); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w after %s: %w", ErrBudgetExhausted, b.Elapsed().Round(time.Millisecond), lastErr)
}

func jitter(p Policy, attempt int) time.Duration {
	if p.BaseBackoff <= 0 {
		return 0
	}
	if p.Jitter != nil {
		return p.Jitter(p.BaseBackoff << min(attempt, 30))
	}
	return FullJitter(p.BaseBackoff, attempt)
}

// sleepWithCtx is a cancellable sleep.
func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
