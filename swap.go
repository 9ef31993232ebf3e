package brickz

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Swap connector.
const (
	// Metrics.
	SwapActiveCalls       = metricz.Key("swap.active.calls")
	SwapCandidateCalls    = metricz.Key("swap.candidate.calls")
	SwapCandidateFailures = metricz.Key("swap.candidate.failures")
	SwapBeginsTotal       = metricz.Key("swap.begins.total")
	SwapCompletionsTotal  = metricz.Key("swap.completions.total")
	SwapRollbacksTotal    = metricz.Key("swap.rollbacks.total")

	// Spans.
	SwapInvokeSpan = tracez.Key("swap.invoke")

	// Tags.
	SwapTagTarget = tracez.Tag("swap.target")
	SwapTagState  = tracez.Tag("swap.state")

	// Hook event keys.
	SwapEventBegan      = hookz.Key("swap.began")
	SwapEventCompleted  = hookz.Key("swap.completed")
	SwapEventRolledBack = hookz.Key("swap.rolled_back")
)

// Swap state machine errors.
var (
	ErrSwapInProgress = errors.New("swap already in progress")
	ErrNotSwapping    = errors.New("no swap in progress")
	ErrNilCandidate   = errors.New("candidate must not be nil")
)

// SwapStrategy selects how traffic moves from the active implementation to
// the candidate during a swap.
type SwapStrategy string

// Rollout strategies.
const (
	// StrategyImmediate routes all invocations to the candidate as soon
	// as BeginSwap returns. No in-flight straddling: calls that captured
	// their target before the swap finish against it.
	StrategyImmediate SwapStrategy = "immediate"

	// StrategyGradual routes each invocation independently to the
	// candidate with the configured weight. Routing is probabilistic by
	// design; assert statistical bounds, not exact counts.
	StrategyGradual SwapStrategy = "gradual"

	// StrategyCanary routes a configured fraction to the candidate and
	// feeds outcomes to the promotion policy, which may auto-promote or
	// auto-roll-back.
	StrategyCanary SwapStrategy = "canary"

	// StrategyBlueGreen keeps all traffic on the active implementation
	// until CompleteSwap flips it to the candidate in one step.
	StrategyBlueGreen SwapStrategy = "blue-green"
)

// SwapState is the controller's lifecycle state.
type SwapState string

// Controller states. A rolled-back controller is immediately usable as
// stable: rollback is terminal-success, not an error state.
const (
	SwapStable     SwapState = "stable"
	SwapSwapping   SwapState = "swapping"
	SwapRolledBack SwapState = "rolled-back"
)

// SwapRecord is one entry in the controller's append-only history,
// retained up to the configured cap for audit and rollback context.
type SwapRecord struct {
	Time        time.Time    // When the transition happened
	Event       string       // "begin", "complete", or "rollback"
	From        Name         // Active brick at transition time
	FromVersion string       // Its informational version
	To          Name         // Candidate brick, if any
	ToVersion   string       // Its informational version
	Strategy    SwapStrategy // Strategy in effect
}

// SwapEvent is emitted via hookz on every state transition.
type SwapEvent struct {
	Name      Name      // Controller name
	Record    SwapRecord
	State     SwapState // State after the transition
	Timestamp time.Time
}

// CanaryStats is the routing outcome snapshot handed to the promotion
// policy after each candidate invocation.
type CanaryStats struct {
	ActiveCalls       uint64 // Invocations routed to the active brick
	CandidateCalls    uint64 // Invocations routed to the candidate
	CandidateFailures uint64 // Candidate invocations that returned an error
}

// CanaryDecision is the promotion policy's verdict.
type CanaryDecision int

// Promotion policy verdicts.
const (
	CanaryContinue CanaryDecision = iota // Keep evaluating
	CanaryPromote                        // Complete the swap now
	CanaryRollback                       // Roll back now
)

// PromotionPolicy maps canary stats to a promote/continue/rollback
// decision. The exact thresholds are policy, not framework: supply
// whatever suits the deployment.
type PromotionPolicy func(CanaryStats) CanaryDecision

// DefaultHistoryLimit bounds swap history when WithHistoryLimit is not
// called.
const DefaultHistoryLimit = 32

// Swap owns a mutable active implementation behind a stable brick
// identity, so one stage of a pipeline can be replaced at runtime without
// rebuilding the pipeline. Each invocation captures the routing target
// once at entry, so an in-flight call sees a consistent implementation for
// its entire execution even if a swap lands mid-flight for other callers.
//
// Example:
//
//	stage := brickz.NewSwap("pricing", priceV1)
//	pipeline := brickz.Compose(validate, stage)
//
//	// later, without stopping traffic:
//	if err := stage.BeginSwap(priceV2, brickz.StrategyImmediate); err != nil { ... }
//	if err := stage.CompleteSwap(); err != nil { ... }
type Swap[In, Out any] struct {
	name         Name
	mu           sync.RWMutex
	state        SwapState
	active       Brick[In, Out]
	candidate    Brick[In, Out]
	strategy     SwapStrategy
	weight       float64
	promote      PromotionPolicy
	sampler      func() float64
	clock        clockz.Clock
	history      []SwapRecord
	historyLimit int
	stats        CanaryStats
	metrics      *metricz.Registry
	tracer       *tracez.Tracer
	hooks        *hookz.Hooks[SwapEvent]
}

// NewSwap creates a swap controller with the given initial active
// implementation.
func NewSwap[In, Out any](name Name, active Brick[In, Out]) *Swap[In, Out] {
	metrics := metricz.New()
	metrics.Counter(SwapActiveCalls)
	metrics.Counter(SwapCandidateCalls)
	metrics.Counter(SwapCandidateFailures)
	metrics.Counter(SwapBeginsTotal)
	metrics.Counter(SwapCompletionsTotal)
	metrics.Counter(SwapRollbacksTotal)

	return &Swap[In, Out]{
		name:         name,
		state:        SwapStable,
		active:       active,
		weight:       0.1,
		historyLimit: DefaultHistoryLimit,
		metrics:      metrics,
		tracer:       tracez.New(),
		hooks:        hookz.New[SwapEvent](),
	}
}

// WithWeight sets the probability an invocation routes to the candidate
// under the gradual and canary strategies. Values are clamped to [0, 1].
func (s *Swap[In, Out]) WithWeight(weight float64) *Swap[In, Out] {
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weight = weight
	return s
}

// WithPromotionPolicy sets the canary promotion policy. When set, the
// controller evaluates it after every candidate invocation and promotes or
// rolls back automatically.
func (s *Swap[In, Out]) WithPromotionPolicy(policy PromotionPolicy) *Swap[In, Out] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promote = policy
	return s
}

// WithSampler replaces the routing sampler, which defaults to math/rand.
// Tests inject a deterministic sampler to pin probabilistic routing.
func (s *Swap[In, Out]) WithSampler(sampler func() float64) *Swap[In, Out] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampler = sampler
	return s
}

// WithHistoryLimit caps the retained swap history.
func (s *Swap[In, Out]) WithHistoryLimit(limit int) *Swap[In, Out] {
	if limit < 1 {
		limit = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyLimit = limit
	if len(s.history) > limit {
		s.history = append([]SwapRecord(nil), s.history[len(s.history)-limit:]...)
	}
	return s
}

// WithClock sets a custom clock for timestamps. Useful for testing.
func (s *Swap[In, Out]) WithClock(clock clockz.Clock) *Swap[In, Out] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

func (s *Swap[In, Out]) getClock() clockz.Clock {
	if s.clock == nil {
		return clockz.RealClock
	}
	return s.clock
}

func sampleFrom(sampler func() float64) float64 {
	if sampler != nil {
		return sampler()
	}
	return rand.Float64() //nolint:gosec // routing choice, not cryptography
}

// BeginSwap records a pre-swap snapshot in history and enters the
// swapping state. Valid only when no swap is in progress; a rolled-back
// controller counts as stable.
func (s *Swap[In, Out]) BeginSwap(candidate Brick[In, Out], strategy SwapStrategy) error {
	if candidate == nil {
		return ErrNilCandidate
	}
	s.mu.Lock()
	if s.state == SwapSwapping {
		s.mu.Unlock()
		return ErrSwapInProgress
	}
	s.candidate = candidate
	s.strategy = strategy
	s.state = SwapSwapping
	s.stats = CanaryStats{}
	record := s.appendRecordLocked("begin")
	s.mu.Unlock()

	s.metrics.Counter(SwapBeginsTotal).Inc()
	s.emit(SwapEventBegan, record, SwapSwapping)
	return nil
}

// CompleteSwap promotes the candidate to active and returns to stable.
func (s *Swap[In, Out]) CompleteSwap() error {
	s.mu.Lock()
	if s.state != SwapSwapping {
		s.mu.Unlock()
		return ErrNotSwapping
	}
	record := s.appendRecordLocked("complete")
	s.active = s.candidate
	s.candidate = nil
	s.state = SwapStable
	s.mu.Unlock()

	s.metrics.Counter(SwapCompletionsTotal).Inc()
	s.emit(SwapEventCompleted, record, SwapStable)
	return nil
}

// Rollback abandons the candidate and restores the pre-swap active
// implementation. The controller is immediately usable for a new swap.
func (s *Swap[In, Out]) Rollback() error {
	s.mu.Lock()
	if s.state != SwapSwapping {
		s.mu.Unlock()
		return ErrNotSwapping
	}
	record := s.appendRecordLocked("rollback")
	s.candidate = nil
	s.state = SwapRolledBack
	s.mu.Unlock()

	s.metrics.Counter(SwapRollbacksTotal).Inc()
	s.emit(SwapEventRolledBack, record, SwapRolledBack)
	return nil
}

// appendRecordLocked appends a history record, trimming to the cap.
// Callers hold s.mu.
func (s *Swap[In, Out]) appendRecordLocked(event string) SwapRecord {
	record := SwapRecord{
		Time:        s.getClock().Now(),
		Event:       event,
		From:        s.active.Name(),
		FromVersion: VersionOf(s.active),
		Strategy:    s.strategy,
	}
	if s.candidate != nil {
		record.To = s.candidate.Name()
		record.ToVersion = VersionOf(s.candidate)
	}
	s.history = append(s.history, record)
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
	return record
}

func (s *Swap[In, Out]) emit(key hookz.Key, record SwapRecord, state SwapState) {
	_ = s.hooks.Emit(context.Background(), key, SwapEvent{ //nolint:errcheck
		Name:      s.name,
		Record:    record,
		State:     state,
		Timestamp: s.getClock().Now(),
	})
}

// Invoke implements the Brick interface. The routing target is captured
// once at entry, so the whole invocation runs against one implementation
// snapshot regardless of concurrent swap transitions.
func (s *Swap[In, Out]) Invoke(ctx context.Context, input In, deps Deps) (result Out, err error) {
	defer recoverFromPanic(&result, &err, s.name, input)

	s.mu.RLock()
	state := s.state
	strategy := s.strategy
	target := s.active
	candidate := s.candidate
	weight := s.weight
	promote := s.promote
	sampler := s.sampler
	s.mu.RUnlock()

	toCandidate := false
	if state == SwapSwapping && candidate != nil {
		switch strategy {
		case StrategyImmediate:
			toCandidate = true
		case StrategyGradual, StrategyCanary:
			toCandidate = sampleFrom(sampler) < weight
		case StrategyBlueGreen:
			// Candidate receives no traffic until the flip.
		}
	}
	if toCandidate {
		target = candidate
		s.metrics.Counter(SwapCandidateCalls).Inc()
	} else {
		s.metrics.Counter(SwapActiveCalls).Inc()
	}

	ctx = markInvoking(ctx)
	ctx, span := s.tracer.StartSpan(ctx, SwapInvokeSpan)
	span.SetTag(SwapTagState, string(state))
	span.SetTag(SwapTagTarget, string(target.Name()))
	defer span.Finish()

	out, err := target.Invoke(ctx, input, deps)

	if state == SwapSwapping && strategy == StrategyCanary {
		s.recordCanary(toCandidate, err, promote)
	}

	if err != nil {
		return result, wrapError(s.name, input, err)
	}
	return out, nil
}

// recordCanary updates canary stats and applies the promotion policy.
// A candidate error counts toward rollback-triggering metrics; the error
// still propagates normally to the caller of that invocation.
func (s *Swap[In, Out]) recordCanary(toCandidate bool, err error, promote PromotionPolicy) {
	s.mu.Lock()
	if s.state != SwapSwapping {
		s.mu.Unlock()
		return
	}
	if toCandidate {
		s.stats.CandidateCalls++
		if err != nil {
			s.stats.CandidateFailures++
			s.metrics.Counter(SwapCandidateFailures).Inc()
		}
	} else {
		s.stats.ActiveCalls++
	}
	stats := s.stats
	s.mu.Unlock()

	if promote == nil || !toCandidate {
		return
	}
	switch promote(stats) {
	case CanaryPromote:
		_ = s.CompleteSwap() //nolint:errcheck // lost race means another caller decided
	case CanaryRollback:
		_ = s.Rollback() //nolint:errcheck
	case CanaryContinue:
	}
}

// State returns the controller's current state.
func (s *Swap[In, Out]) State() SwapState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Active returns the name of the implementation currently serving stable
// traffic.
func (s *Swap[In, Out]) Active() Name {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Name()
}

// Stats returns a snapshot of the canary routing outcomes for the swap in
// progress.
func (s *Swap[In, Out]) Stats() CanaryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// History returns a copy of the retained swap records, oldest first.
func (s *Swap[In, Out]) History() []SwapRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SwapRecord(nil), s.history...)
}

// Name returns the stable identity of this stage.
func (s *Swap[In, Out]) Name() Name {
	return s.name
}

// Metrics returns the metrics registry for this connector.
func (s *Swap[In, Out]) Metrics() *metricz.Registry {
	return s.metrics
}

// Tracer returns the tracer for this connector.
func (s *Swap[In, Out]) Tracer() *tracez.Tracer {
	return s.tracer
}

// OnBegan registers a handler for swap begin transitions.
func (s *Swap[In, Out]) OnBegan(handler func(context.Context, SwapEvent) error) error {
	_, err := s.hooks.Hook(SwapEventBegan, handler)
	return err
}

// OnCompleted registers a handler for swap completions.
func (s *Swap[In, Out]) OnCompleted(handler func(context.Context, SwapEvent) error) error {
	_, err := s.hooks.Hook(SwapEventCompleted, handler)
	return err
}

// OnRolledBack registers a handler for rollbacks.
func (s *Swap[In, Out]) OnRolledBack(handler func(context.Context, SwapEvent) error) error {
	_, err := s.hooks.Hook(SwapEventRolledBack, handler)
	return err
}

// Close gracefully shuts down observability components.
func (s *Swap[In, Out]) Close() error {
	if s.tracer != nil {
		s.tracer.Close()
	}
	s.hooks.Close()
	return nil
}
