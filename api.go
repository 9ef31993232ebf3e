package brickz

import "context"

// Brick defines the interface for any component that can be composed.
// A brick transforms a value of type In into a value of type Out, and is
// the foundation of brickz - every adapter, composite, and connector
// implements this interface. The uniform interface enables seamless
// composition while maintaining type safety through Go generics.
//
// Key design principles:
//   - Context support for timeout and cancellation
//   - Type safety through generics (no interface{} in the typed layer)
//   - Error propagation for fail-fast behavior
//   - Immutable by convention (return modified copies)
//   - Named components for debugging and monitoring
//
// Invoke is the single source of truth for a brick's behavior. The blocking
// bridge InvokeSync runs the same path to completion; it never implements
// alternate behavior.
type Brick[In, Out any] interface {
	Invoke(context.Context, In, Deps) (Out, error)
	Name() Name
}

// Name is a type alias for brick and connector names.
// Using this type encourages storing names as constants rather than
// using inline strings throughout your code.
//
// Example:
//
//	const (
//	    ValidateOrderName  Name = "validate-order"
//	    EnrichCustomerName Name = "enrich-customer"
//	)
//
//	validate := brickz.Apply(ValidateOrderName, validateFunc)
type Name = string

// composeSeparator joins child names when a composite derives its own
// name for diagnostics, e.g. "uppercase -> exclaim".
const composeSeparator = " -> "

// Versioned is an optional interface for bricks that carry an
// informational semver version. Names are not required to be unique;
// the version helps tell two generations of the same brick apart in
// swap history and logs.
type Versioned interface {
	Version() string
}

// VersionOf returns the brick's declared version, or the empty string
// when the brick does not implement Versioned.
func VersionOf(b any) string {
	if v, ok := b.(Versioned); ok {
		return v.Version()
	}
	return ""
}
