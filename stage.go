package brickz

import (
	"context"
	"fmt"
	"reflect"
)

// Stage is a type-erased brick carrying the declared input and output
// types it was constructed with. The typed layer (Compose, Branch,
// Parallel) lets the compiler prove compatibility; the erased layer exists
// for the Builder and for Pipe, where stages of differing types accumulate
// in one ordered sequence and compatibility is checked against the
// declared types at compose or build time - never against runtime values.
//
// A Stage is itself a Brick[any, any], so built pipelines compose with
// everything else in the package.
type Stage struct {
	name    Name
	version string
	in      reflect.Type
	out     reflect.Type
	invoke  func(context.Context, any, Deps) (any, error)
	node    Node
}

// NewStage erases a typed brick, capturing its declared types via
// reflect.TypeFor. The declaration is recorded once at wrap time; runtime
// values are never inspected for compatibility decisions.
func NewStage[In, Out any](b Brick[In, Out]) *Stage {
	in := reflect.TypeFor[In]()
	out := reflect.TypeFor[Out]()
	return &Stage{
		name:    b.Name(),
		version: VersionOf(b),
		in:      in,
		out:     out,
		invoke: func(ctx context.Context, value any, deps Deps) (any, error) {
			typed, ok := valueAs[In](value)
			if !ok {
				return nil, wrapError(b.Name(), value, fmt.Errorf(
					"stage %q declared input %s, got %T", b.Name(), in, value))
			}
			return b.Invoke(ctx, typed, deps)
		},
		node: Node{Name: b.Name(), Variant: VariantLeaf, In: in.String(), Out: out.String()},
	}
}

// valueAs converts an erased value back to its declared type. A nil erased
// value maps to the zero value, which covers nil interfaces and untyped
// nil flowing between stages.
func valueAs[T any](value any) (T, bool) {
	if value == nil {
		var zero T
		return zero, true
	}
	typed, ok := value.(T)
	return typed, ok
}

// Invoke implements Brick[any, any].
func (s *Stage) Invoke(ctx context.Context, value any, deps Deps) (any, error) {
	return s.invoke(ctx, value, deps)
}

// Name returns the stage name.
func (s *Stage) Name() Name { return s.name }

// Version returns the informational version of the wrapped brick.
func (s *Stage) Version() string { return s.version }

// In returns the declared input type.
func (s *Stage) In() reflect.Type { return s.in }

// Out returns the declared output type.
func (s *Stage) Out() reflect.Type { return s.out }

// Node returns the composition graph rooted at this stage.
func (s *Stage) Node() Node { return s.node }

// Pipe composes left and right into a single stage, validating the
// declared types immediately. When the types are incompatible, Pipe
// returns a *TypeMismatchError naming both types and both stages before
// any invocation can happen; reg may be nil, in which case only exact and
// assignable matches pass and no adapter is suggested.
func Pipe(left, right *Stage, reg *Registry) (*Stage, error) {
	if err := checkCompat(left, right, reg); err != nil {
		return nil, err
	}
	name := left.name + composeSeparator + right.name
	return &Stage{
		name: name,
		in:   left.in,
		out:  right.out,
		invoke: func(ctx context.Context, value any, deps Deps) (any, error) {
			ctx = markInvoking(ctx)
			mid, err := left.invoke(ctx, value, deps)
			if err != nil {
				return nil, wrapError(name, value, err)
			}
			select {
			case <-ctx.Done():
				return nil, contextError(name, value, ctx.Err())
			default:
			}
			out, err := right.invoke(ctx, mid, deps)
			if err != nil {
				return nil, wrapError(name, value, err)
			}
			return out, nil
		},
		node: Node{
			Name:     name,
			Variant:  VariantCompose,
			In:       left.in.String(),
			Out:      right.out.String(),
			Children: []Node{left.node, right.node},
		},
	}, nil
}

// Typed converts an erased stage back into a Brick[In, Out], validating
// the requested types against the stage's declarations. The returned brick
// is a thin shim; the stage's behavior is unchanged.
func Typed[In, Out any](s *Stage) (Brick[In, Out], error) {
	in := reflect.TypeFor[In]()
	out := reflect.TypeFor[Out]()
	if in != s.in && !in.AssignableTo(s.in) {
		return nil, &TypeMismatchError{
			FromBrick: "caller",
			ToBrick:   s.name,
			FromType:  in,
			ToType:    s.in,
		}
	}
	if out != s.out && !s.out.AssignableTo(out) {
		return nil, &TypeMismatchError{
			FromBrick: s.name,
			ToBrick:   "caller",
			FromType:  s.out,
			ToType:    out,
		}
	}
	return Func[In, Out]{
		name: s.name,
		fn: func(ctx context.Context, input In, deps Deps) (Out, error) {
			var zero Out
			raw, err := s.invoke(ctx, input, deps)
			if err != nil {
				return zero, err
			}
			typed, ok := valueAs[Out](raw)
			if !ok {
				return zero, wrapError(s.name, input, fmt.Errorf(
					"stage %q declared output %s, produced %T", s.name, s.out, raw))
			}
			return typed, nil
		},
	}, nil
}
