package brickz

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/multierr"
)

// BuilderState is the builder's lifecycle state. Builders move from empty
// through building to finalized; Build consumes the builder exactly once
// and any mutation after that is rejected.
type BuilderState int

// Builder lifecycle states.
const (
	StateEmpty BuilderState = iota
	StateBuilding
	StateFinalized
)

// String returns the state name for diagnostics.
func (s BuilderState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Cond is an erased branch predicate used by the Builder. Wrap a typed
// predicate with CondOf.
type Cond func(context.Context, any) (bool, error)

// CondOf adapts a typed predicate for use with Builder.Branch.
func CondOf[T any](fn func(context.Context, T) (bool, error)) Cond {
	return func(ctx context.Context, value any) (bool, error) {
		typed, ok := valueAs[T](value)
		if !ok {
			return false, fmt.Errorf("predicate expected %s, got %T", reflect.TypeFor[T](), value)
		}
		return fn(ctx, typed)
	}
}

// Recover is an erased boundary recovery used by the Builder. Wrap a
// typed recovery with RecoverOf.
type Recover func(context.Context, error, any) (any, error)

// RecoverOf adapts a typed recovery for use with Builder.CatchErrors.
func RecoverOf[In, Out any](fn func(context.Context, error, In) (Out, error)) Recover {
	return func(ctx context.Context, err error, value any) (any, error) {
		typed, ok := valueAs[In](value)
		if !ok {
			return nil, fmt.Errorf("recovery expected %s, got %T", reflect.TypeFor[In](), value)
		}
		return fn(ctx, err, typed)
	}
}

// ReduceStage wraps a typed reducer as a merge stage for the Builder. On
// the erased path a parallel group's declared output is []any, so the
// reducer stage converts each element back to the typed slice before
// reducing.
func ReduceStage[Mid, Out any](name Name, fn func(context.Context, []Mid) (Out, error)) *Stage {
	mid := reflect.TypeFor[Mid]()
	reducer := Apply(name, func(ctx context.Context, values []any) (Out, error) {
		var zero Out
		typed := make([]Mid, len(values))
		for i, v := range values {
			tv, ok := valueAs[Mid](v)
			if !ok {
				return zero, fmt.Errorf("merge %q expected element %d to be %s, got %T", name, i, mid, v)
			}
			typed[i] = tv
		}
		return fn(ctx, typed)
	})
	s := NewStage[[]any, Out](reducer)
	s.node.Variant = VariantMerge
	return s
}

// descriptor kinds accumulated by the Builder.
type descKind int

const (
	descStage descKind = iota
	descBranch
	descParallel
	descMerge
	descAdapt
)

// descriptor is one pending composition instruction.
type descriptor struct {
	kind     descKind
	op       string       // builder call that appended it, for diagnostics
	stage    *Stage       // descStage, descMerge, explicit descAdapt
	pred     Cond         // descBranch
	ifTrue   *Stage       // descBranch
	ifFalse  *Stage       // descBranch
	children []*Stage     // descParallel
	from     reflect.Type // descAdapt lookup pair
	to       reflect.Type
	catch    Recover // set by CatchErrors, wraps this descriptor
}

// Builder accumulates stages and composition instructions and finalizes
// them into a single executable Stage. Mutators return the builder for
// fluent chaining; structurally invalid call sequences panic with the
// typed builder error, while type incompatibilities across the whole
// pipeline are aggregated and returned together by Build so the caller
// gets a complete diagnostic in one pass.
//
//	built, err := brickz.NewPipeline("enrich").
//	    Then(brickz.NewStage(parse)).
//	    Then(brickz.NewStage(validate)).
//	    CatchErrors(brickz.RecoverOf(fallback)).
//	    Build()
type Builder struct {
	name        Name
	reg         *Registry
	state       BuilderState
	descriptors []descriptor
}

// NewPipeline creates an empty Builder for the named pipeline.
func NewPipeline(name Name) *Builder {
	return &Builder{name: name, state: StateEmpty}
}

// WithRegistry attaches the registry used for compatibility checking,
// adapter lookup, and suggestions.
func (b *Builder) WithRegistry(reg *Registry) *Builder {
	b.reg = reg
	return b
}

// mutating guards every mutator: finalized builders reject all mutation.
func (b *Builder) mutating(op string) {
	if b.state == StateFinalized {
		panic(&BuilderStateError{Builder: b.name, Op: op})
	}
	b.state = StateBuilding
}

// Then appends a plain stage.
func (b *Builder) Then(s *Stage) *Builder {
	b.mutating("Then")
	b.descriptors = append(b.descriptors, descriptor{kind: descStage, op: "Then", stage: s})
	return b
}

// Branch appends a conditional stage: pred selects ifTrue or ifFalse per
// invocation, and the unselected side is never invoked. Both sides must
// declare the same output type; violations are reported by Build.
func (b *Builder) Branch(pred Cond, ifTrue, ifFalse *Stage) *Builder {
	b.mutating("Branch")
	b.descriptors = append(b.descriptors, descriptor{
		kind: descBranch, op: "Branch", pred: pred, ifTrue: ifTrue, ifFalse: ifFalse,
	})
	return b
}

// Parallel appends a concurrent group. All children receive the preceding
// stage's output; the group's declared output is []any in registration
// order. Follow with MergeWith to reduce it.
func (b *Builder) Parallel(children ...*Stage) *Builder {
	b.mutating("Parallel")
	b.descriptors = append(b.descriptors, descriptor{kind: descParallel, op: "Parallel", children: children})
	return b
}

// MergeWith appends a merge stage consuming the most recent Parallel
// group's output. Calling it without an immediately preceding Parallel
// panics with a *BuilderSequenceError.
func (b *Builder) MergeWith(reducer *Stage) *Builder {
	b.mutating("MergeWith")
	if n := len(b.descriptors); n == 0 || b.descriptors[n-1].kind != descParallel {
		panic(&BuilderSequenceError{
			Builder:  b.name,
			Op:       "MergeWith",
			Position: len(b.descriptors),
			Reason:   "no preceding Parallel group to merge",
		})
	}
	b.descriptors = append(b.descriptors, descriptor{kind: descMerge, op: "MergeWith", stage: reducer})
	return b
}

// CatchErrors wraps the most recently appended stage in an error
// boundary with the given recovery. Calling it on an empty builder panics
// with a *BuilderSequenceError.
func (b *Builder) CatchErrors(rec Recover) *Builder {
	b.mutating("CatchErrors")
	if len(b.descriptors) == 0 {
		panic(&BuilderSequenceError{
			Builder:  b.name,
			Op:       "CatchErrors",
			Position: 0,
			Reason:   "no stage to wrap",
		})
	}
	b.descriptors[len(b.descriptors)-1].catch = rec
	return b
}

// insertAdapter places an adapter descriptor between the two most
// recently appended descriptors, so Adapt can be called after both
// sides of a mismatch are already in place. With fewer than two
// descriptors the adapter is appended and bridges whatever comes next.
func (b *Builder) insertAdapter(d descriptor) {
	n := len(b.descriptors)
	if n < 2 {
		b.descriptors = append(b.descriptors, d)
		return
	}
	b.descriptors = append(b.descriptors, descriptor{})
	b.descriptors[n] = b.descriptors[n-1]
	b.descriptors[n-1] = d
}

// Adapt inserts a registry-resolved type adapter between the two most
// recently appended stages. Resolution happens at Build; a missing
// adapter for the pair is reported alongside any other diagnostics.
func (b *Builder) Adapt(from, to reflect.Type) *Builder {
	b.mutating("Adapt")
	b.insertAdapter(descriptor{kind: descAdapt, op: "Adapt", from: from, to: to})
	return b
}

// AdaptWith inserts an explicit adapter stage between the two most
// recently appended stages.
func (b *Builder) AdaptWith(adapter *Stage) *Builder {
	b.mutating("AdaptWith")
	b.insertAdapter(descriptor{kind: descAdapt, op: "AdaptWith", stage: adapter})
	return b
}

// State returns the builder's lifecycle state.
func (b *Builder) State() BuilderState {
	return b.state
}

// Build folds the accumulated descriptors into a single executable Stage
// and finalizes the builder. Compatibility between every adjacent pair of
// declared types is checked here, before the stage can be invoked, and
// all violations across the whole pipeline are aggregated into the
// returned error rather than failing on the first.
func (b *Builder) Build() (*Stage, error) {
	if b.state == StateFinalized {
		panic(&BuilderStateError{Builder: b.name, Op: "Build"})
	}
	b.state = StateFinalized

	if len(b.descriptors) == 0 {
		return nil, &BuilderSequenceError{
			Builder: b.name, Op: "Build", Position: 0, Reason: "pipeline has no stages",
		}
	}

	var buildErrs error
	stages := make([]*Stage, 0, len(b.descriptors))
	var prev *Stage

	for i, d := range b.descriptors {
		effective, err := b.resolve(i, d, prev)
		if err != nil {
			buildErrs = multierr.Append(buildErrs, err)
			continue
		}
		if prev != nil {
			if err := checkCompat(prev, effective, b.reg); err != nil {
				buildErrs = multierr.Append(buildErrs, err)
			}
		}
		if d.catch != nil {
			effective = wrapBoundary(effective, d.catch)
		}
		stages = append(stages, effective)
		prev = effective
	}

	if buildErrs != nil {
		return nil, buildErrs
	}

	return sealPipeline(b.name, stages), nil
}

// resolve turns one descriptor into its effective erased stage.
func (b *Builder) resolve(pos int, d descriptor, prev *Stage) (*Stage, error) {
	switch d.kind {
	case descStage, descMerge:
		return d.stage, nil

	case descAdapt:
		if d.stage != nil {
			return d.stage, nil
		}
		if b.reg != nil {
			if adapter, ok := b.reg.Lookup(d.from, d.to); ok {
				return adapter, nil
			}
		}
		return nil, &TypeMismatchError{
			FromBrick: Name(fmt.Sprintf("%s[%d]", b.name, pos)),
			ToBrick:   "registry",
			FromType:  d.from,
			ToType:    d.to,
		}

	case descBranch:
		return buildBranchStage(b.name, pos, d)

	case descParallel:
		return buildParallelStage(b.name, pos, d)

	default:
		return nil, fmt.Errorf("pipeline %q: unknown descriptor kind at position %d", b.name, pos)
	}
}

// buildBranchStage validates and erases a branch descriptor. Both sides
// must declare a common input and the same output type.
func buildBranchStage(pipeline Name, pos int, d descriptor) (*Stage, error) {
	var err error
	if d.ifTrue.In() != d.ifFalse.In() {
		err = multierr.Append(err, &TypeMismatchError{
			FromBrick: d.ifTrue.Name(),
			ToBrick:   d.ifFalse.Name(),
			FromType:  d.ifTrue.In(),
			ToType:    d.ifFalse.In(),
		})
	}
	if d.ifTrue.Out() != d.ifFalse.Out() {
		err = multierr.Append(err, &TypeMismatchError{
			FromBrick: d.ifTrue.Name(),
			ToBrick:   d.ifFalse.Name(),
			FromType:  d.ifTrue.Out(),
			ToType:    d.ifFalse.Out(),
		})
	}
	if err != nil {
		return nil, err
	}

	name := Name(fmt.Sprintf("%s.branch[%d]", pipeline, pos))
	pred := d.pred
	ifTrue, ifFalse := d.ifTrue, d.ifFalse
	return &Stage{
		name: name,
		in:   ifTrue.In(),
		out:  ifTrue.Out(),
		invoke: func(ctx context.Context, value any, deps Deps) (any, error) {
			ctx = markInvoking(ctx)
			taken, predErr := pred(ctx, value)
			if predErr != nil {
				return nil, wrapError(name, value, predErr)
			}
			child := ifFalse
			if taken {
				child = ifTrue
			}
			out, childErr := child.Invoke(ctx, value, deps)
			if childErr != nil {
				return nil, wrapError(name, value, childErr)
			}
			return out, nil
		},
		node: Node{
			Name:     name,
			Variant:  VariantBranch,
			In:       ifTrue.In().String(),
			Out:      ifTrue.Out().String(),
			Children: []Node{ifTrue.Node(), ifFalse.Node()},
		},
	}, nil
}

// buildParallelStage validates and erases a parallel descriptor. All
// children must declare a common input; the group's declared output is
// []any, ordered by registration.
func buildParallelStage(pipeline Name, pos int, d descriptor) (*Stage, error) {
	if len(d.children) == 0 {
		return nil, &BuilderSequenceError{
			Builder: pipeline, Op: "Parallel", Position: pos, Reason: "parallel group has no children",
		}
	}

	var err error
	first := d.children[0]
	for _, child := range d.children[1:] {
		if child.In() != first.In() {
			err = multierr.Append(err, &TypeMismatchError{
				FromBrick: first.Name(),
				ToBrick:   child.Name(),
				FromType:  first.In(),
				ToType:    child.In(),
			})
		}
	}
	if err != nil {
		return nil, err
	}

	name := Name(fmt.Sprintf("%s.parallel[%d]", pipeline, pos))
	group := NewParallel[any, any](name)
	nodes := make([]Node, len(d.children))
	for i, child := range d.children {
		group.Add(child)
		nodes[i] = child.Node()
	}

	return &Stage{
		name: name,
		in:   first.In(),
		out:  reflect.TypeFor[[]any](),
		invoke: func(ctx context.Context, value any, deps Deps) (any, error) {
			return group.Invoke(ctx, value, deps)
		},
		node: Node{
			Name:     name,
			Variant:  VariantParallel,
			In:       first.In().String(),
			Out:      "[]any",
			Children: nodes,
		},
	}, nil
}

// wrapBoundary wraps a resolved stage in an erased error boundary.
func wrapBoundary(s *Stage, rec Recover) *Stage {
	name := s.Name() + ".catch"
	inner := s
	return &Stage{
		name: name,
		in:   inner.In(),
		out:  inner.Out(),
		invoke: func(ctx context.Context, value any, deps Deps) (any, error) {
			out, err := inner.Invoke(ctx, value, deps)
			if err == nil {
				return out, nil
			}
			substitute, recErr := rec(ctx, err, value)
			if recErr != nil {
				return nil, wrapError(name, value, recErr)
			}
			return substitute, nil
		},
		node: Node{
			Name:     name,
			Variant:  VariantBoundary,
			In:       inner.In().String(),
			Out:      inner.Out().String(),
			Children: []Node{inner.Node()},
		},
	}
}

// sealPipeline folds the resolved stages into one executable Stage that
// runs them in order, checking the context between stages and reporting
// failures with the pipeline's name at the head of the error path.
func sealPipeline(name Name, stages []*Stage) *Stage {
	nodes := make([]Node, len(stages))
	for i, s := range stages {
		nodes[i] = s.Node()
	}
	return &Stage{
		name: name,
		in:   stages[0].In(),
		out:  stages[len(stages)-1].Out(),
		invoke: func(ctx context.Context, value any, deps Deps) (any, error) {
			ctx = markInvoking(ctx)
			current := value
			for _, s := range stages {
				select {
				case <-ctx.Done():
					return nil, contextError(name, value, ctx.Err())
				default:
				}
				out, err := s.Invoke(ctx, current, deps)
				if err != nil {
					return nil, wrapError(name, value, err)
				}
				current = out
			}
			return current, nil
		},
		node: Node{
			Name:     name,
			Variant:  VariantCompose,
			In:       stages[0].In().String(),
			Out:      stages[len(stages)-1].Out().String(),
			Children: nodes,
		},
	}
}

// snapshotNode assembles a graph of the descriptors added so far without
// validating or mutating anything, so Visualize and Explain work in any
// state.
func (b *Builder) snapshotNode() Node {
	root := Node{Name: b.name, Variant: VariantCompose}
	for i, d := range b.descriptors {
		var n Node
		switch d.kind {
		case descStage, descMerge:
			n = d.stage.Node()
			if d.kind == descMerge {
				n.Variant = VariantMerge
			}
		case descAdapt:
			if d.stage != nil {
				n = d.stage.Node()
				n.Variant = VariantAdapter
			} else {
				n = Node{
					Name:    Name(fmt.Sprintf("adapt[%d]", i)),
					Variant: VariantAdapter,
					In:      d.from.String(),
					Out:     d.to.String(),
				}
			}
		case descBranch:
			n = Node{
				Name:     Name(fmt.Sprintf("branch[%d]", i)),
				Variant:  VariantBranch,
				Children: []Node{d.ifTrue.Node(), d.ifFalse.Node()},
			}
		case descParallel:
			children := make([]Node, len(d.children))
			for j, c := range d.children {
				children[j] = c.Node()
			}
			n = Node{
				Name:     Name(fmt.Sprintf("parallel[%d]", i)),
				Variant:  VariantParallel,
				Children: children,
			}
		}
		if d.catch != nil {
			n = Node{Name: n.Name + ".catch", Variant: VariantBoundary, Children: []Node{n}}
		}
		root.Children = append(root.Children, n)
	}
	return root
}

// Visualize returns the pipeline structure as an indented tree. Read-only
// and valid in any state; it reflects the descriptors added so far.
func (b *Builder) Visualize() string {
	return b.snapshotNode().Render()
}

// Explain returns a human-readable narrative of the pipeline, one step
// per line. Read-only and valid in any state.
func (b *Builder) Explain() string {
	return b.snapshotNode().Explain()
}
