package brickz

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/zoobzio/clockz"
)

// Logged wraps a brick with structured logging around every invocation.
// It logs the input at V(1), success with the elapsed duration at V(1),
// and failures through logger.Error. The delegate's behavior is otherwise
// untouched: same name, same result, same error.
type Logged[In, Out any] struct {
	child  Brick[In, Out]
	logger logr.Logger
	clock  clockz.Clock
}

// NewLogged wraps child with logger.
func NewLogged[In, Out any](child Brick[In, Out], logger logr.Logger) *Logged[In, Out] {
	return &Logged[In, Out]{
		child:  child,
		logger: logger,
	}
}

// WithClock sets a custom clock for duration measurement. Useful for testing.
func (l *Logged[In, Out]) WithClock(clock clockz.Clock) *Logged[In, Out] {
	l.clock = clock
	return l
}

func (l *Logged[In, Out]) getClock() clockz.Clock {
	if l.clock == nil {
		return clockz.RealClock
	}
	return l.clock
}

// Invoke implements the Brick interface.
func (l *Logged[In, Out]) Invoke(ctx context.Context, input In, deps Deps) (Out, error) {
	clock := l.getClock()
	start := clock.Now()
	name := string(l.child.Name())

	l.logger.V(1).Info("invoking", "brick", name)
	out, err := l.child.Invoke(ctx, input, deps)
	elapsed := clock.Since(start)
	if err != nil {
		l.logger.Error(err, "invocation failed", "brick", name, "duration", elapsed)
		return out, err
	}
	l.logger.V(1).Info("invocation succeeded", "brick", name, "duration", elapsed)
	return out, nil
}

// Name returns the delegate's name.
func (l *Logged[In, Out]) Name() Name {
	return l.child.Name()
}
