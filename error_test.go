package brickz

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestError(t *testing.T) {
	t.Run("Message Includes Path", func(t *testing.T) {
		err := &Error[int]{
			Err:  errors.New("boom"),
			Path: []Name{"pipeline", "parse"},
		}
		msg := err.Error()
		if !strings.Contains(msg, "pipeline -> parse") {
			t.Errorf("expected path in message, got %q", msg)
		}
		if !strings.Contains(msg, "boom") {
			t.Errorf("expected cause in message, got %q", msg)
		}
	})

	t.Run("Timeout Message", func(t *testing.T) {
		err := &Error[int]{
			Err:      context.DeadlineExceeded,
			Path:     []Name{"slow"},
			Timeout:  true,
			Duration: 100 * time.Millisecond,
		}
		if !strings.Contains(err.Error(), "timed out") {
			t.Errorf("expected timeout message, got %q", err.Error())
		}
	})

	t.Run("Canceled Message", func(t *testing.T) {
		err := &Error[int]{
			Err:      context.Canceled,
			Path:     []Name{"slow"},
			Canceled: true,
		}
		if !strings.Contains(err.Error(), "canceled") {
			t.Errorf("expected cancellation message, got %q", err.Error())
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		cause := errors.New("boom")
		err := &Error[int]{Err: cause, Path: []Name{"x"}}
		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to find the cause")
		}
	})

	t.Run("IsTimeout And IsCanceled", func(t *testing.T) {
		timeout := &Error[int]{Err: context.DeadlineExceeded}
		if !timeout.IsTimeout() {
			t.Error("expected IsTimeout for DeadlineExceeded cause")
		}
		canceled := &Error[int]{Err: context.Canceled}
		if !canceled.IsCanceled() {
			t.Error("expected IsCanceled for Canceled cause")
		}
	})
}

func TestWrapError(t *testing.T) {
	t.Run("Plain Error Gets Wrapped", func(t *testing.T) {
		err := wrapError("stage", 42, errors.New("boom"))
		if len(err.Path) != 1 || err.Path[0] != "stage" {
			t.Errorf("expected path [stage], got %v", err.Path)
		}
		if err.InputData != 42 {
			t.Errorf("expected input 42, got %d", err.InputData)
		}
	})

	t.Run("Existing Error Gets Path Prepended", func(t *testing.T) {
		inner := wrapError("inner", 1, errors.New("boom"))
		outer := wrapError("outer", 1, inner)
		if len(outer.Path) != 2 {
			t.Fatalf("expected path of 2, got %v", outer.Path)
		}
		if outer.Path[0] != "outer" || outer.Path[1] != "inner" {
			t.Errorf("expected [outer inner], got %v", outer.Path)
		}
	})

	t.Run("Context Flags Inferred", func(t *testing.T) {
		err := wrapError("stage", 0, context.DeadlineExceeded)
		if !err.Timeout {
			t.Error("expected Timeout flag for DeadlineExceeded")
		}
		err = wrapError("stage", 0, context.Canceled)
		if !err.Canceled {
			t.Error("expected Canceled flag for Canceled")
		}
	})
}

func TestTypeMismatchErrorMessage(t *testing.T) {
	t.Run("Names Both Types And Bricks", func(t *testing.T) {
		upper := Transform("upper", func(_ context.Context, s string) string { return strings.ToUpper(s) })
		double := Transform("double", func(_ context.Context, n int) int { return n * 2 })

		_, err := Pipe(NewStage[string, string](upper), NewStage[int, int](double), nil)
		if err == nil {
			t.Fatal("expected type mismatch")
		}
		var mismatch *TypeMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected *TypeMismatchError, got %T", err)
		}
		msg := mismatch.Error()
		for _, want := range []string{"upper", "double", "string", "int"} {
			if !strings.Contains(msg, want) {
				t.Errorf("expected %q in message, got %q", want, msg)
			}
		}
	})

	t.Run("Includes Suggestion", func(t *testing.T) {
		mismatch := &TypeMismatchError{
			FromBrick: "a", ToBrick: "b",
			FromType: reflect.TypeFor[string](), ToType: reflect.TypeFor[int](),
			Suggested: "atoi",
		}
		if !strings.Contains(mismatch.Error(), "atoi") {
			t.Errorf("expected suggestion in message, got %q", mismatch.Error())
		}
	})
}
