package brickz

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Error provides rich context about invocation failures.
// It wraps the underlying error with the full path of composite and
// connector names leading to the failure, the input that caused it, and
// whether the failure was due to timeout or cancellation.
type Error[T any] struct {
	Timestamp time.Time     // When the error occurred
	InputData T             // The input that caused the failure
	Err       error         // The underlying error
	Path      []Name        // Full path, e.g. ["pipeline", "validate", "parse"]
	Duration  time.Duration // How long before failure
	Timeout   bool          // Was it a timeout?
	Canceled  bool          // Was it canceled?
}

// Error implements the error interface, providing a detailed message that
// localizes the failing brick by its full path.
func (e *Error[T]) Error() string {
	location := strings.Join(e.Path, composeSeparator)
	if location == "" {
		location = "brick"
	}
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	case e.Canceled:
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	default:
		return fmt.Sprintf("%s failed: %v", location, e.Err)
	}
}

// Unwrap returns the underlying error, supporting errors.Is and errors.As.
func (e *Error[T]) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the error was caused by a timeout.
func (e *Error[T]) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled reports whether the error was caused by cancellation.
func (e *Error[T]) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// wrapError folds an arbitrary child error into an *Error[T], prepending
// name to the path when the child already carries one. Every connector
// routes child failures through this so the path reads outermost-first.
func wrapError[T any](name Name, input T, err error) *Error[T] {
	var brickErr *Error[T]
	if errors.As(err, &brickErr) {
		brickErr.Path = append([]Name{name}, brickErr.Path...)
		return brickErr
	}
	return &Error[T]{
		Timestamp: time.Now(),
		InputData: input,
		Err:       err,
		Path:      []Name{name},
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	}
}

// contextError builds the *Error[T] reported when a connector observes a
// done context before or between child invocations.
func contextError[T any](name Name, input T, err error) *Error[T] {
	return &Error[T]{
		Timestamp: time.Now(),
		InputData: input,
		Err:       err,
		Path:      []Name{name},
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	}
}

// recoverFromPanic converts a panic inside a connector into an *Error[T]
// so composed pipelines fail instead of crashing the process.
func recoverFromPanic[T, R any](result *R, err *error, name Name, input T) {
	if r := recover(); r != nil {
		var zero R
		*result = zero
		*err = &Error[T]{
			Timestamp: time.Now(),
			InputData: input,
			Err:       fmt.Errorf("panic in %q: %v", name, r),
			Path:      []Name{name},
		}
	}
}

// TypeMismatchError is returned at compose or build time when the declared
// output type of one stage is statically incompatible with the declared
// input type of the next. It carries both offending types, both brick
// names, and - when the registry knows one - a suggested adapter that
// bridges the gap.
type TypeMismatchError struct {
	FromBrick Name         // Brick producing the value
	ToBrick   Name         // Brick that would receive it
	FromType  reflect.Type // Declared output type of FromBrick
	ToType    reflect.Type // Declared input type of ToBrick
	Suggested Name         // Name of a registered adapter, if any
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	msg := fmt.Sprintf("cannot compose %q (output %s) with %q (input %s)",
		e.FromBrick, e.FromType, e.ToBrick, e.ToType)
	if e.Suggested != "" {
		msg += fmt.Sprintf(": adapter %q converts %s to %s", e.Suggested, e.FromType, e.ToType)
	}
	return msg
}

// AdapterError is returned by a type adapter when a specific runtime value
// cannot be converted despite type-level compatibility.
type AdapterError struct {
	Adapter  Name         // Name of the adapter that failed
	FromType reflect.Type // Declared source type
	ToType   reflect.Type // Declared target type
	Value    any          // The value that could not be converted
	Err      error        // The underlying conversion error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %q could not convert %v (%s to %s): %v",
		e.Adapter, e.Value, e.FromType, e.ToType, e.Err)
}

// Unwrap returns the underlying conversion error.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// BuilderStateError reports a builder mutation attempted after Build has
// finalized the pipeline. The previously built stage is unaffected.
type BuilderStateError struct {
	Builder Name   // Name of the pipeline being built
	Op      string // The call that was rejected, e.g. "Then"
}

// Error implements the error interface.
func (e *BuilderStateError) Error() string {
	return fmt.Sprintf("pipeline %q is finalized: %s is no longer permitted", e.Builder, e.Op)
}

// BuilderSequenceError reports a structurally invalid builder call
// sequence, such as MergeWith without a preceding Parallel group.
type BuilderSequenceError struct {
	Builder  Name   // Name of the pipeline being built
	Op       string // The call that was rejected
	Position int    // Zero-based index the descriptor would have occupied
	Reason   string // Why the call is invalid here
}

// Error implements the error interface.
func (e *BuilderSequenceError) Error() string {
	return fmt.Sprintf("pipeline %q: %s at position %d: %s", e.Builder, e.Op, e.Position, e.Reason)
}

// ConcurrencyError is returned by InvokeSync when it is called from inside
// an active invocation, where blocking on completion would deadlock the
// chain that is waiting on the caller.
type ConcurrencyError struct {
	Brick Name // The brick InvokeSync was asked to run
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("InvokeSync(%q) called from inside an active invocation; "+
		"call Invoke with the ambient context instead", e.Brick)
}
