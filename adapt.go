package brickz

import "context"

// Func is a named leaf brick created by the adapter functions Transform,
// Apply, and Effect. The function field is intentionally private so leaves
// are only created through the adapters, keeping error handling and path
// reporting consistent.
//
// The name appears in Error[T].Path to identify exactly where failures
// occur, so prefer descriptive, action-oriented names ("parse_json",
// "fetch_user") over vague ones.
type Func[In, Out any] struct {
	fn      func(context.Context, In, Deps) (Out, error)
	name    Name
	version string
}

// Invoke implements the Brick interface.
func (f Func[In, Out]) Invoke(ctx context.Context, input In, deps Deps) (Out, error) {
	return f.fn(ctx, input, deps)
}

// Name returns the name of the brick for debugging and error reporting.
func (f Func[In, Out]) Name() Name {
	return f.name
}

// Version returns the informational version set with WithVersion, or "".
func (f Func[In, Out]) Version() string {
	return f.version
}

// WithVersion returns a copy of the brick carrying an informational
// semver version, visible through VersionOf and swap history.
func (f Func[In, Out]) WithVersion(version string) Func[In, Out] {
	f.version = version
	return f
}

// Transform creates a brick from a pure function that cannot fail.
// This is the most common adapter - use it when your function always
// produces an output from its input.
//
//	double := brickz.Transform("double", func(_ context.Context, n int) int {
//	    return n * 2
//	})
func Transform[In, Out any](name Name, fn func(context.Context, In) Out) Func[In, Out] {
	return Func[In, Out]{
		name: name,
		fn: func(ctx context.Context, input In, _ Deps) (Out, error) {
			return fn(ctx, input), nil
		},
	}
}

// Apply creates a brick from a function that can fail. Use it for
// operations like parsing, validation with conversion, or anything that
// reaches outside the process.
//
//	parse := brickz.Apply("parse", func(_ context.Context, s string) (Data, error) {
//	    var d Data
//	    return d, json.Unmarshal([]byte(s), &d)
//	})
func Apply[In, Out any](name Name, fn func(context.Context, In) (Out, error)) Func[In, Out] {
	return Func[In, Out]{
		name: name,
		fn: func(ctx context.Context, input In, _ Deps) (Out, error) {
			return fn(ctx, input)
		},
	}
}

// ApplyWithDeps is Apply for functions that read the dependency bag.
// The bag must be treated as shared-read; derive a copy for children
// instead of mutating it.
func ApplyWithDeps[In, Out any](name Name, fn func(context.Context, In, Deps) (Out, error)) Func[In, Out] {
	return Func[In, Out]{name: name, fn: fn}
}

// Effect creates a brick for side effects like logging, metrics, or
// notifications. The function can return an error to stop the chain, but
// never modifies the data: the input passes through unchanged.
func Effect[T any](name Name, fn func(context.Context, T) error) Func[T, T] {
	return Func[T, T]{
		name: name,
		fn: func(ctx context.Context, input T, _ Deps) (T, error) {
			if err := fn(ctx, input); err != nil {
				var zero T
				return zero, err
			}
			return input, nil
		},
	}
}
