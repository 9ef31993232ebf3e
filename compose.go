package brickz

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Composite connector.
const (
	// Metrics.
	ComposeProcessedTotal = metricz.Key("compose.processed.total")
	ComposeSuccessesTotal = metricz.Key("compose.successes.total")
	ComposeFailuresTotal  = metricz.Key("compose.failures.total")
	ComposeDurationMs     = metricz.Key("compose.duration.ms")

	// Spans.
	ComposeInvokeSpan = tracez.Key("compose.invoke")
	ComposeStageSpan  = tracez.Key("compose.stage")

	// Tags.
	ComposeTagStage     = tracez.Tag("compose.stage")
	ComposeTagBrickName = tracez.Tag("compose.brick_name")
	ComposeTagSuccess   = tracez.Tag("compose.success")
	ComposeTagError     = tracez.Tag("compose.error")

	// Hook event keys.
	ComposeEventStageComplete = hookz.Key("compose.stage_complete")
)

// ComposeEvent represents a composite stage completion.
// It is emitted via hookz after the left and again after the right child
// finishes, giving visibility into where time is spent and which side of
// the composite failed.
type ComposeEvent struct {
	Name      Name          // Composite name
	StageName Name          // Name of the child that just finished
	Left      bool          // True for the left child, false for the right
	Success   bool          // Whether the child succeeded
	Error     error         // Error if the child failed
	Duration  time.Duration // How long the child took
	Timestamp time.Time     // When the event occurred
}

// Composite binds two bricks into a single brick that sequences their
// invocation: left runs to completion first, its output feeds right, and
// the shared dependency bag flows through unchanged. If left fails, right
// is never invoked.
//
// Composition is associative for observable behavior:
// Compose(Compose(a, b), c) and Compose(a, Compose(b, c)) produce
// identical results for identical input and bag. Only the derived
// diagnostic name differs.
type Composite[A, B, C any] struct {
	left    Brick[A, B]
	right   Brick[B, C]
	name    Name
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[ComposeEvent]
}

// Compose binds left and right so left's output feeds right's input.
// Compatibility is enforced by the compiler on this typed path; use Pipe
// for the erased path where declared types are checked at compose time.
//
// The composite's name is derived from its children for diagnostics:
//
//	shout := brickz.Compose(upper, exclaim) // name: "upper -> exclaim"
func Compose[A, B, C any](left Brick[A, B], right Brick[B, C]) *Composite[A, B, C] {
	metrics := metricz.New()
	metrics.Counter(ComposeProcessedTotal)
	metrics.Counter(ComposeSuccessesTotal)
	metrics.Counter(ComposeFailuresTotal)
	metrics.Gauge(ComposeDurationMs)

	return &Composite[A, B, C]{
		left:    left,
		right:   right,
		name:    left.Name() + composeSeparator + right.Name(),
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[ComposeEvent](),
	}
}

// Invoke implements the Brick interface. Left always completes fully
// before right begins; there is no buffering and no retry. The context is
// checked between stages so cancellation propagates to whichever child
// would run next.
func (c *Composite[A, B, C]) Invoke(ctx context.Context, input A, deps Deps) (result C, err error) {
	defer recoverFromPanic(&result, &err, c.name, input)

	ctx = markInvoking(ctx)

	c.metrics.Counter(ComposeProcessedTotal).Inc()
	start := time.Now()

	ctx, span := c.tracer.StartSpan(ctx, ComposeInvokeSpan)
	defer func() {
		c.metrics.Gauge(ComposeDurationMs).Set(float64(time.Since(start).Milliseconds()))
		if err == nil {
			span.SetTag(ComposeTagSuccess, "true")
			c.metrics.Counter(ComposeSuccessesTotal).Inc()
		} else {
			span.SetTag(ComposeTagSuccess, "false")
			span.SetTag(ComposeTagError, err.Error())
			c.metrics.Counter(ComposeFailuresTotal).Inc()
		}
		span.Finish()
	}()

	leftCtx, leftSpan := c.tracer.StartSpan(ctx, ComposeStageSpan)
	leftSpan.SetTag(ComposeTagStage, "left")
	leftSpan.SetTag(ComposeTagBrickName, string(c.left.Name()))

	leftStart := time.Now()
	mid, err := c.left.Invoke(leftCtx, input, deps)
	leftSpan.Finish()
	c.emitStage(ctx, c.left.Name(), true, err, time.Since(leftStart))
	if err != nil {
		return result, wrapError(c.name, input, err)
	}

	// Cancellation observed between stages propagates before right starts.
	select {
	case <-ctx.Done():
		return result, contextError(c.name, input, ctx.Err())
	default:
	}

	rightCtx, rightSpan := c.tracer.StartSpan(ctx, ComposeStageSpan)
	rightSpan.SetTag(ComposeTagStage, "right")
	rightSpan.SetTag(ComposeTagBrickName, string(c.right.Name()))

	rightStart := time.Now()
	out, err := c.right.Invoke(rightCtx, mid, deps)
	rightSpan.Finish()
	c.emitStage(ctx, c.right.Name(), false, err, time.Since(rightStart))
	if err != nil {
		return result, wrapError(c.name, input, err)
	}
	return out, nil
}

func (c *Composite[A, B, C]) emitStage(ctx context.Context, child Name, left bool, err error, duration time.Duration) {
	_ = c.hooks.Emit(ctx, ComposeEventStageComplete, ComposeEvent{ //nolint:errcheck
		Name:      c.name,
		StageName: child,
		Left:      left,
		Success:   err == nil,
		Error:     err,
		Duration:  duration,
		Timestamp: time.Now(),
	})
}

// Name returns the derived name of this composite.
func (c *Composite[A, B, C]) Name() Name {
	return c.name
}

// Left returns the left child.
func (c *Composite[A, B, C]) Left() Brick[A, B] {
	return c.left
}

// Right returns the right child.
func (c *Composite[A, B, C]) Right() Brick[B, C] {
	return c.right
}

// Metrics returns the metrics registry for this connector.
func (c *Composite[A, B, C]) Metrics() *metricz.Registry {
	return c.metrics
}

// Tracer returns the tracer for this connector.
func (c *Composite[A, B, C]) Tracer() *tracez.Tracer {
	return c.tracer
}

// OnStageComplete registers a handler called after each child finishes,
// whether it succeeded or failed.
func (c *Composite[A, B, C]) OnStageComplete(handler func(context.Context, ComposeEvent) error) error {
	_, err := c.hooks.Hook(ComposeEventStageComplete, handler)
	return err
}

// Close gracefully shuts down observability components.
func (c *Composite[A, B, C]) Close() error {
	if c.tracer != nil {
		c.tracer.Close()
	}
	c.hooks.Close()
	return nil
}
