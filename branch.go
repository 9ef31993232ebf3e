package brickz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Branch connector.
const (
	// Metrics.
	BranchProcessedTotal = metricz.Key("branch.processed.total")
	BranchTakenTrue      = metricz.Key("branch.taken.true")
	BranchTakenFalse     = metricz.Key("branch.taken.false")
	BranchFailuresTotal  = metricz.Key("branch.failures.total")
	BranchDurationMs     = metricz.Key("branch.duration.ms")

	// Spans.
	BranchInvokeSpan = tracez.Key("branch.invoke")

	// Tags.
	BranchTagTaken     = tracez.Tag("branch.taken")
	BranchTagBrickName = tracez.Tag("branch.brick_name")
	BranchTagSuccess   = tracez.Tag("branch.success")
	BranchTagError     = tracez.Tag("branch.error")

	// Hook event keys.
	BranchEventRouted = hookz.Key("branch.routed")
)

// BranchEvent represents a branch routing decision.
// It is emitted via hookz after the selected child finishes, providing
// visibility into which path was taken and how it fared.
type BranchEvent struct {
	Name      Name          // Connector name
	Taken     bool          // Predicate result
	ChildName Name          // Name of the child that ran
	Success   bool          // Whether the child succeeded
	Error     error         // Error from predicate or child
	Duration  time.Duration // How long predicate plus child took
	Timestamp time.Time     // When the event occurred
}

// Predicate decides which side of a Branch runs, based on the input.
// Predicate errors propagate as ordinary invocation failures.
type Predicate[In any] func(context.Context, In) (bool, error)

// Branch routes to one of two children based on a predicate over the
// input. Exactly one child is invoked per call; the unselected child is
// never invoked, so side effects of the other path cannot leak. Both
// children declare the same output type, which the compiler enforces on
// this typed layer.
//
// Example:
//
//	route := brickz.NewBranch("priority-route",
//	    func(_ context.Context, o Order) (bool, error) { return o.Total > 1000, nil },
//	    reviewManually,
//	    autoApprove,
//	)
type Branch[In, Out any] struct {
	name      Name
	predicate Predicate[In]
	ifTrue    Brick[In, Out]
	ifFalse   Brick[In, Out]
	mu        sync.RWMutex
	metrics   *metricz.Registry
	tracer    *tracez.Tracer
	hooks     *hookz.Hooks[BranchEvent]
}

// NewBranch creates a Branch connector with the given predicate and
// children.
func NewBranch[In, Out any](name Name, predicate Predicate[In], ifTrue, ifFalse Brick[In, Out]) *Branch[In, Out] {
	metrics := metricz.New()
	metrics.Counter(BranchProcessedTotal)
	metrics.Counter(BranchTakenTrue)
	metrics.Counter(BranchTakenFalse)
	metrics.Counter(BranchFailuresTotal)
	metrics.Gauge(BranchDurationMs)

	return &Branch[In, Out]{
		name:      name,
		predicate: predicate,
		ifTrue:    ifTrue,
		ifFalse:   ifFalse,
		metrics:   metrics,
		tracer:    tracez.New(),
		hooks:     hookz.New[BranchEvent](),
	}
}

// Invoke implements the Brick interface. The predicate is evaluated
// against the input; only the selected child is invoked.
func (b *Branch[In, Out]) Invoke(ctx context.Context, input In, deps Deps) (result Out, err error) {
	defer recoverFromPanic(&result, &err, b.name, input)

	b.mu.RLock()
	predicate := b.predicate
	ifTrue := b.ifTrue
	ifFalse := b.ifFalse
	b.mu.RUnlock()

	ctx = markInvoking(ctx)

	b.metrics.Counter(BranchProcessedTotal).Inc()
	start := time.Now()

	ctx, span := b.tracer.StartSpan(ctx, BranchInvokeSpan)
	defer func() {
		b.metrics.Gauge(BranchDurationMs).Set(float64(time.Since(start).Milliseconds()))
		if err == nil {
			span.SetTag(BranchTagSuccess, "true")
		} else {
			span.SetTag(BranchTagSuccess, "false")
			span.SetTag(BranchTagError, err.Error())
			b.metrics.Counter(BranchFailuresTotal).Inc()
		}
		span.Finish()
	}()

	taken, err := predicate(ctx, input)
	if err != nil {
		return result, wrapError(b.name, input, err)
	}

	child := ifFalse
	if taken {
		child = ifTrue
		b.metrics.Counter(BranchTakenTrue).Inc()
		span.SetTag(BranchTagTaken, "true")
	} else {
		b.metrics.Counter(BranchTakenFalse).Inc()
		span.SetTag(BranchTagTaken, "false")
	}
	span.SetTag(BranchTagBrickName, string(child.Name()))

	out, err := child.Invoke(ctx, input, deps)
	_ = b.hooks.Emit(ctx, BranchEventRouted, BranchEvent{ //nolint:errcheck
		Name:      b.name,
		Taken:     taken,
		ChildName: child.Name(),
		Success:   err == nil,
		Error:     err,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})
	if err != nil {
		return result, wrapError(b.name, input, err)
	}
	return out, nil
}

// SetPredicate replaces the routing predicate.
func (b *Branch[In, Out]) SetPredicate(predicate Predicate[In]) *Branch[In, Out] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.predicate = predicate
	return b
}

// SetChildren replaces both children atomically.
func (b *Branch[In, Out]) SetChildren(ifTrue, ifFalse Brick[In, Out]) *Branch[In, Out] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ifTrue = ifTrue
	b.ifFalse = ifFalse
	return b
}

// Name returns the name of this connector.
func (b *Branch[In, Out]) Name() Name {
	return b.name
}

// Metrics returns the metrics registry for this connector.
func (b *Branch[In, Out]) Metrics() *metricz.Registry {
	return b.metrics
}

// Tracer returns the tracer for this connector.
func (b *Branch[In, Out]) Tracer() *tracez.Tracer {
	return b.tracer
}

// OnRouted registers a handler called after each routing decision.
func (b *Branch[In, Out]) OnRouted(handler func(context.Context, BranchEvent) error) error {
	_, err := b.hooks.Hook(BranchEventRouted, handler)
	return err
}

// Close gracefully shuts down observability components.
func (b *Branch[In, Out]) Close() error {
	if b.tracer != nil {
		b.tracer.Close()
	}
	b.hooks.Close()
	return nil
}
