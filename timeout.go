package brickz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Timeout enforces a deadline on the wrapped brick. The child runs in its
// own goroutine; when the deadline expires before the child returns, the
// wrapper returns an *Error with Timeout set and abandons the goroutine
// to the cancelled context.
//
// The child should respect context cancellation to avoid leaking work
// past the deadline.
type Timeout[In, Out any] struct {
	name     Name
	child    Brick[In, Out]
	duration time.Duration
	clock    clockz.Clock
	mu       sync.RWMutex
}

// NewTimeout creates a Timeout wrapper that bounds child to duration.
func NewTimeout[In, Out any](name Name, child Brick[In, Out], duration time.Duration) *Timeout[In, Out] {
	return &Timeout[In, Out]{
		name:     name,
		child:    child,
		duration: duration,
	}
}

// WithClock sets a custom clock for deadline scheduling. Useful for testing.
func (t *Timeout[In, Out]) WithClock(clock clockz.Clock) *Timeout[In, Out] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = clock
	return t
}

func (t *Timeout[In, Out]) getClock() clockz.Clock {
	if t.clock == nil {
		return clockz.RealClock
	}
	return t.clock
}

// SetDuration updates the deadline applied to future invocations.
func (t *Timeout[In, Out]) SetDuration(d time.Duration) *Timeout[In, Out] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = d
	return t
}

// GetDuration returns the current deadline.
func (t *Timeout[In, Out]) GetDuration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.duration
}

// Invoke implements the Brick interface.
func (t *Timeout[In, Out]) Invoke(ctx context.Context, input In, deps Deps) (result Out, err error) {
	defer recoverFromPanic(&result, &err, t.name, input)

	t.mu.RLock()
	child := t.child
	duration := t.duration
	t.mu.RUnlock()

	ctx = markInvoking(ctx)
	clock := t.getClock()

	timeoutCtx, cancel := clock.WithTimeout(ctx, duration)
	defer cancel()

	type outcome struct {
		value Out
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, childErr := child.Invoke(timeoutCtx, input, deps)
		done <- outcome{value: value, err: childErr}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return result, wrapError(t.name, input, res.err)
		}
		return res.value, nil
	case <-timeoutCtx.Done():
		return result, contextError(t.name, input, timeoutCtx.Err())
	}
}

// Name returns the name of this wrapper.
func (t *Timeout[In, Out]) Name() Name {
	return t.name
}
