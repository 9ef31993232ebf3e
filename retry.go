package brickz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Retry attempts the wrapped brick up to maxAttempts times. brickz has no
// hidden retry logic anywhere: composition and invocation fail fast, and
// retries exist only where a caller explicitly wraps a brick in one of
// these.
//
// Each attempt uses the same input. Context cancellation is checked
// between attempts. With a base delay configured, attempts are separated
// by exponentially growing waits driven by the clock, so tests can advance
// a fake clock instead of sleeping.
//
// Example:
//
//	retry := brickz.NewRetry("retry-db", databaseWriter, 3).
//	    WithDelay(100 * time.Millisecond)
type Retry[In, Out any] struct {
	name        Name
	child       Brick[In, Out]
	maxAttempts int
	baseDelay   time.Duration
	clock       clockz.Clock
	mu          sync.RWMutex
}

// NewRetry creates a Retry wrapper around child.
func NewRetry[In, Out any](name Name, child Brick[In, Out], maxAttempts int) *Retry[In, Out] {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retry[In, Out]{
		name:        name,
		child:       child,
		maxAttempts: maxAttempts,
	}
}

// WithDelay enables exponential backoff between attempts, starting at
// base and doubling each failure.
func (r *Retry[In, Out]) WithDelay(base time.Duration) *Retry[In, Out] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseDelay = base
	return r
}

// WithClock sets a custom clock for backoff waits. Useful for testing.
func (r *Retry[In, Out]) WithClock(clock clockz.Clock) *Retry[In, Out] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
	return r
}

func (r *Retry[In, Out]) getClock() clockz.Clock {
	if r.clock == nil {
		return clockz.RealClock
	}
	return r.clock
}

// Invoke implements the Brick interface.
func (r *Retry[In, Out]) Invoke(ctx context.Context, input In, deps Deps) (result Out, err error) {
	defer recoverFromPanic(&result, &err, r.name, input)

	r.mu.RLock()
	child := r.child
	maxAttempts := r.maxAttempts
	delay := r.baseDelay
	r.mu.RUnlock()

	ctx = markInvoking(ctx)
	clock := r.getClock()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, childErr := child.Invoke(ctx, input, deps)
		if childErr == nil {
			return out, nil
		}
		lastErr = childErr

		if ctx.Err() != nil {
			return result, contextError(r.name, input, ctx.Err())
		}
		if delay > 0 && attempt < maxAttempts-1 {
			select {
			case <-clock.After(delay):
			case <-ctx.Done():
				return result, contextError(r.name, input, ctx.Err())
			}
			delay *= 2
		}
	}
	return result, wrapError(r.name, input, lastErr)
}

// Name returns the name of this wrapper.
func (r *Retry[In, Out]) Name() Name {
	return r.name
}
