package brickz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Observability constants for the Parallel connector.
const (
	// Metrics.
	ParallelProcessedTotal = metricz.Key("parallel.processed.total")
	ParallelSuccessesTotal = metricz.Key("parallel.successes.total")
	ParallelFailuresTotal  = metricz.Key("parallel.failures.total")
	ParallelChildFailures  = metricz.Key("parallel.child.failures.total")
	ParallelDurationMs     = metricz.Key("parallel.duration.ms")

	// Spans.
	ParallelInvokeSpan = tracez.Key("parallel.invoke")

	// Tags.
	ParallelTagChildCount = tracez.Tag("parallel.child_count")
	ParallelTagSuccess    = tracez.Tag("parallel.success")
	ParallelTagError      = tracez.Tag("parallel.error")

	// Hook event keys.
	ParallelEventComplete = hookz.Key("parallel.complete")
)

// ParallelEvent represents completion of a parallel group.
type ParallelEvent struct {
	Name      Name          // Connector name
	Children  int           // Number of children invoked
	Failed    int           // Number of children that failed
	Success   bool          // Whether the group as a whole succeeded
	Error     error         // Group error, if any
	Duration  time.Duration // Wall time for the whole group
	Timestamp time.Time     // When the event occurred
}

// Parallel fans the same input out to an ordered list of sibling bricks,
// invoking them concurrently and collecting their outputs. The result
// slice order always matches registration order, regardless of completion
// order; no ordering is guaranteed between the children's internal
// execution.
//
// By default the group fails fast: the first child error cancels the
// remaining children and propagates. With CollectErrors, every child runs
// to completion and individual failures are captured alongside successes:
// the result slice holds zero values at failed positions and the returned
// error combines all child failures (unpack with multierr.Errors).
//
// Children share the input and the dependency bag; a child that needs a
// narrowed bag gets one via WithBags. Inputs are shared, not cloned, so
// children must not mutate them.
//
// Example:
//
//	group := brickz.NewParallel("notify",
//	    sendEmail,
//	    sendSMS,
//	    updateAudit,
//	)
//	results, err := group.Invoke(ctx, order, deps)
type Parallel[In, Out any] struct {
	name          Name
	children      []Brick[In, Out]
	bags          []Deps
	collectErrors bool
	mu            sync.RWMutex
	metrics       *metricz.Registry
	tracer        *tracez.Tracer
	hooks         *hookz.Hooks[ParallelEvent]
}

// NewParallel creates a Parallel group over the given children.
func NewParallel[In, Out any](name Name, children ...Brick[In, Out]) *Parallel[In, Out] {
	metrics := metricz.New()
	metrics.Counter(ParallelProcessedTotal)
	metrics.Counter(ParallelSuccessesTotal)
	metrics.Counter(ParallelFailuresTotal)
	metrics.Counter(ParallelChildFailures)
	metrics.Gauge(ParallelDurationMs)

	return &Parallel[In, Out]{
		name:     name,
		children: children,
		metrics:  metrics,
		tracer:   tracez.New(),
		hooks:    hookz.New[ParallelEvent](),
	}
}

// CollectErrors switches the group from fail-fast to capture semantics:
// all children run, failures are combined into one error, and successful
// results keep their positions.
func (p *Parallel[In, Out]) CollectErrors() *Parallel[In, Out] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collectErrors = true
	return p
}

// WithBags assigns each child its own derived dependency bag, by position.
// Children beyond the provided bags receive the caller's bag unchanged.
func (p *Parallel[In, Out]) WithBags(bags ...Deps) *Parallel[In, Out] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bags = bags
	return p
}

// Add appends a child to the group.
func (p *Parallel[In, Out]) Add(child Brick[In, Out]) *Parallel[In, Out] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children = append(p.children, child)
	return p
}

// Len returns the number of children.
func (p *Parallel[In, Out]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.children)
}

// Invoke implements Brick[In, []Out]. All children are scheduled
// concurrently; the call returns once every child has completed or, in
// fail-fast mode, once the first failure has canceled the rest. A canceled
// group surfaces a single aggregated cancellation error rather than
// partial results.
func (p *Parallel[In, Out]) Invoke(ctx context.Context, input In, deps Deps) (results []Out, err error) {
	defer recoverFromPanic(&results, &err, p.name, input)

	p.mu.RLock()
	children := make([]Brick[In, Out], len(p.children))
	copy(children, p.children)
	bags := p.bags
	collect := p.collectErrors
	p.mu.RUnlock()

	ctx = markInvoking(ctx)

	p.metrics.Counter(ParallelProcessedTotal).Inc()
	start := time.Now()

	ctx, span := p.tracer.StartSpan(ctx, ParallelInvokeSpan)
	span.SetTag(ParallelTagChildCount, fmt.Sprintf("%d", len(children)))
	failed := 0
	defer func() {
		p.metrics.Gauge(ParallelDurationMs).Set(float64(time.Since(start).Milliseconds()))
		if err == nil {
			span.SetTag(ParallelTagSuccess, "true")
			p.metrics.Counter(ParallelSuccessesTotal).Inc()
		} else {
			span.SetTag(ParallelTagSuccess, "false")
			span.SetTag(ParallelTagError, err.Error())
			p.metrics.Counter(ParallelFailuresTotal).Inc()
		}
		span.Finish()
		_ = p.hooks.Emit(ctx, ParallelEventComplete, ParallelEvent{ //nolint:errcheck
			Name:      p.name,
			Children:  len(children),
			Failed:    failed,
			Success:   err == nil,
			Error:     err,
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		})
	}()

	if len(children) == 0 {
		return []Out{}, nil
	}

	childBag := func(i int) Deps {
		if i < len(bags) && bags[i] != nil {
			return bags[i]
		}
		return deps
	}

	results = make([]Out, len(children))

	if collect {
		errs := make([]error, len(children))
		var wg sync.WaitGroup
		wg.Add(len(children))
		for i, child := range children {
			go func(i int, child Brick[In, Out]) {
				defer wg.Done()
				out, childErr := child.Invoke(ctx, input, childBag(i))
				if childErr != nil {
					errs[i] = wrapError(p.name, input, childErr)
					p.metrics.Counter(ParallelChildFailures).Inc()
					return
				}
				results[i] = out
			}(i, child)
		}
		wg.Wait()
		if combined := multierr.Combine(errs...); combined != nil {
			failed = len(multierr.Errors(combined))
			return results, combined
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, child := range children {
		g.Go(func() error {
			out, childErr := child.Invoke(gctx, input, childBag(i))
			if childErr != nil {
				p.metrics.Counter(ParallelChildFailures).Inc()
				return wrapError(p.name, input, childErr)
			}
			results[i] = out
			return nil
		})
	}
	if groupErr := g.Wait(); groupErr != nil {
		failed = 1
		// A canceled parent surfaces one aggregated cancellation signal
		// instead of whichever child error won the race.
		if ctx.Err() != nil {
			return nil, contextError(p.name, input, ctx.Err())
		}
		return nil, groupErr
	}
	return results, nil
}

// Name returns the name of this connector.
func (p *Parallel[In, Out]) Name() Name {
	return p.name
}

// Metrics returns the metrics registry for this connector.
func (p *Parallel[In, Out]) Metrics() *metricz.Registry {
	return p.metrics
}

// Tracer returns the tracer for this connector.
func (p *Parallel[In, Out]) Tracer() *tracez.Tracer {
	return p.tracer
}

// OnComplete registers a handler called after each group invocation.
func (p *Parallel[In, Out]) OnComplete(handler func(context.Context, ParallelEvent) error) error {
	_, err := p.hooks.Hook(ParallelEventComplete, handler)
	return err
}

// Close gracefully shuts down observability components.
func (p *Parallel[In, Out]) Close() error {
	if p.tracer != nil {
		p.tracer.Close()
	}
	p.hooks.Close()
	return nil
}
