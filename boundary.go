package brickz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Boundary connector.
const (
	// Metrics.
	BoundaryProcessedTotal = metricz.Key("boundary.processed.total")
	BoundaryCaughtTotal    = metricz.Key("boundary.caught.total")
	BoundaryRecoveredTotal = metricz.Key("boundary.recovered.total")
	BoundaryRecoveryErrors = metricz.Key("boundary.recovery.errors.total")

	// Spans.
	BoundaryInvokeSpan   = tracez.Key("boundary.invoke")
	BoundaryRecoverySpan = tracez.Key("boundary.recovery")

	// Tags.
	BoundaryTagCaught    = tracez.Tag("boundary.caught")
	BoundaryTagRecovered = tracez.Tag("boundary.recovered")
	BoundaryTagError     = tracez.Tag("boundary.error")

	// Hook event keys.
	BoundaryEventCaught        = hookz.Key("boundary.caught")
	BoundaryEventRecovered     = hookz.Key("boundary.recovered")
	BoundaryEventRecoveryError = hookz.Key("boundary.recovery_error")
)

// BoundaryEvent represents an error boundary activation.
type BoundaryEvent struct {
	Name          Name          // Connector name
	ChildName     Name          // Name of the wrapped brick
	Error         error         // The error the child raised
	RecoveryError error         // Error from the recovery function, if any
	Duration      time.Duration // Time spent inside the boundary
	Timestamp     time.Time     // When the event occurred
}

// Recovery produces a substitute output from the captured error and the
// original input. It runs synchronously in the failing call; it may itself
// return an error, in which case that new error propagates as if no
// boundary existed.
type Recovery[In, Out any] func(ctx context.Context, err error, input In) (Out, error)

// Boundary wraps one child brick and a recovery function. Child failures
// stop at the boundary: the recovery function is invoked with the captured
// error and the original input, and its output substitutes for the
// child's. Successes pass through untouched.
//
// By default every error is caught. WithFilter narrows the boundary to
// errors the filter accepts; everything else propagates unrecovered.
//
// Boundaries are the only place in brickz where an error is locally
// recovered - ordinary bricks always fail fast.
//
// Example:
//
//	safe := brickz.NewBoundary("pricing-fallback", computePrice,
//	    func(_ context.Context, err error, o Order) (Price, error) {
//	        return DefaultPrice(o), nil
//	    },
//	)
type Boundary[In, Out any] struct {
	name     Name
	child    Brick[In, Out]
	recovery Recovery[In, Out]
	filter   func(error) bool
	mu       sync.RWMutex
	metrics  *metricz.Registry
	tracer   *tracez.Tracer
	hooks    *hookz.Hooks[BoundaryEvent]
}

// NewBoundary creates an error boundary around child.
func NewBoundary[In, Out any](name Name, child Brick[In, Out], recovery Recovery[In, Out]) *Boundary[In, Out] {
	metrics := metricz.New()
	metrics.Counter(BoundaryProcessedTotal)
	metrics.Counter(BoundaryCaughtTotal)
	metrics.Counter(BoundaryRecoveredTotal)
	metrics.Counter(BoundaryRecoveryErrors)

	return &Boundary[In, Out]{
		name:     name,
		child:    child,
		recovery: recovery,
		metrics:  metrics,
		tracer:   tracez.New(),
		hooks:    hookz.New[BoundaryEvent](),
	}
}

// WithFilter restricts the boundary to errors the filter accepts.
// Errors the filter rejects propagate as if no boundary existed.
func (b *Boundary[In, Out]) WithFilter(filter func(error) bool) *Boundary[In, Out] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = filter
	return b
}

// Invoke implements the Brick interface.
func (b *Boundary[In, Out]) Invoke(ctx context.Context, input In, deps Deps) (result Out, err error) {
	defer recoverFromPanic(&result, &err, b.name, input)

	b.mu.RLock()
	child := b.child
	recovery := b.recovery
	filter := b.filter
	b.mu.RUnlock()

	ctx = markInvoking(ctx)

	b.metrics.Counter(BoundaryProcessedTotal).Inc()
	start := time.Now()

	ctx, span := b.tracer.StartSpan(ctx, BoundaryInvokeSpan)
	defer span.Finish()

	out, childErr := child.Invoke(ctx, input, deps)
	if childErr == nil {
		span.SetTag(BoundaryTagCaught, "false")
		return out, nil
	}

	if filter != nil && !filter(childErr) {
		span.SetTag(BoundaryTagCaught, "false")
		span.SetTag(BoundaryTagError, childErr.Error())
		return result, wrapError(b.name, input, childErr)
	}

	b.metrics.Counter(BoundaryCaughtTotal).Inc()
	span.SetTag(BoundaryTagCaught, "true")
	_ = b.hooks.Emit(ctx, BoundaryEventCaught, BoundaryEvent{ //nolint:errcheck
		Name:      b.name,
		ChildName: child.Name(),
		Error:     childErr,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})

	recoveryCtx, recoverySpan := b.tracer.StartSpan(ctx, BoundaryRecoverySpan)
	substitute, recErr := recovery(recoveryCtx, childErr, input)
	recoverySpan.Finish()

	if recErr != nil {
		// Boundaries do not mask recovery failures: the new error
		// propagates as if no boundary existed.
		b.metrics.Counter(BoundaryRecoveryErrors).Inc()
		span.SetTag(BoundaryTagRecovered, "false")
		_ = b.hooks.Emit(ctx, BoundaryEventRecoveryError, BoundaryEvent{ //nolint:errcheck
			Name:          b.name,
			ChildName:     child.Name(),
			Error:         childErr,
			RecoveryError: recErr,
			Duration:      time.Since(start),
			Timestamp:     time.Now(),
		})
		return result, wrapError(b.name, input, recErr)
	}

	b.metrics.Counter(BoundaryRecoveredTotal).Inc()
	span.SetTag(BoundaryTagRecovered, "true")
	_ = b.hooks.Emit(ctx, BoundaryEventRecovered, BoundaryEvent{ //nolint:errcheck
		Name:      b.name,
		ChildName: child.Name(),
		Error:     childErr,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})
	return substitute, nil
}

// Name returns the name of this connector.
func (b *Boundary[In, Out]) Name() Name {
	return b.name
}

// Metrics returns the metrics registry for this connector.
func (b *Boundary[In, Out]) Metrics() *metricz.Registry {
	return b.metrics
}

// Tracer returns the tracer for this connector.
func (b *Boundary[In, Out]) Tracer() *tracez.Tracer {
	return b.tracer
}

// OnCaught registers a handler called when the boundary catches an error.
func (b *Boundary[In, Out]) OnCaught(handler func(context.Context, BoundaryEvent) error) error {
	_, err := b.hooks.Hook(BoundaryEventCaught, handler)
	return err
}

// OnRecovered registers a handler called when recovery succeeds.
func (b *Boundary[In, Out]) OnRecovered(handler func(context.Context, BoundaryEvent) error) error {
	_, err := b.hooks.Hook(BoundaryEventRecovered, handler)
	return err
}

// Close gracefully shuts down observability components.
func (b *Boundary[In, Out]) Close() error {
	if b.tracer != nil {
		b.tracer.Close()
	}
	b.hooks.Close()
	return nil
}
