package brickz

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func intStage(name Name, fn func(int) int) *Stage {
	return NewStage[int, int](Transform(name, func(_ context.Context, n int) int { return fn(n) }))
}

func TestBuilderLinear(t *testing.T) {
	t.Run("Builds And Invokes", func(t *testing.T) {
		built, err := NewPipeline("math").
			Then(intStage("inc", func(n int) int { return n + 1 })).
			Then(intStage("double", func(n int) int { return n * 2 })).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result, err := built.Invoke(context.Background(), 5, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != 12 {
			t.Errorf("expected 12, got %v", result)
		}
	})

	t.Run("Pipeline Name Heads Error Path", func(t *testing.T) {
		boom := NewStage[int, int](Apply("boom", func(_ context.Context, _ int) (int, error) {
			return 0, errors.New("failed")
		}))

		built, err := NewPipeline("ingest").Then(boom).Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err = built.Invoke(context.Background(), 1, nil)
		var brickErr *Error[any]
		if !errors.As(err, &brickErr) {
			t.Fatalf("expected *Error[any], got %T", err)
		}
		if brickErr.Path[0] != "ingest" {
			t.Errorf("expected path to start with 'ingest', got %v", brickErr.Path)
		}
	})

	t.Run("Empty Pipeline Rejected", func(t *testing.T) {
		_, err := NewPipeline("empty").Build()
		var seqErr *BuilderSequenceError
		if !errors.As(err, &seqErr) {
			t.Fatalf("expected *BuilderSequenceError, got %T", err)
		}
	})
}

func TestBuilderStateMachine(t *testing.T) {
	t.Run("State Transitions", func(t *testing.T) {
		b := NewPipeline("p")
		if b.State() != StateEmpty {
			t.Errorf("expected empty, got %v", b.State())
		}
		b.Then(intStage("a", func(n int) int { return n }))
		if b.State() != StateBuilding {
			t.Errorf("expected building, got %v", b.State())
		}
		if _, err := b.Build(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b.State() != StateFinalized {
			t.Errorf("expected finalized, got %v", b.State())
		}
	})

	t.Run("Mutation After Build Panics", func(t *testing.T) {
		b := NewPipeline("p").Then(intStage("a", func(n int) int { return n + 1 }))
		built, err := b.Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected panic from mutation after Build")
			}
			stateErr, ok := r.(*BuilderStateError)
			if !ok {
				t.Fatalf("expected *BuilderStateError, got %T", r)
			}
			if stateErr.Op != "Then" {
				t.Errorf("expected op 'Then', got %q", stateErr.Op)
			}

			// The built stage is unaffected by the rejected mutation.
			result, err := built.Invoke(context.Background(), 1, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != 2 {
				t.Errorf("expected built stage to keep working, got %v", result)
			}
		}()
		b.Then(intStage("late", func(n int) int { return n }))
	})

	t.Run("Second Build Panics", func(t *testing.T) {
		b := NewPipeline("p").Then(intStage("a", func(n int) int { return n }))
		if _, err := b.Build(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() {
			if _, ok := recover().(*BuilderStateError); !ok {
				t.Fatal("expected *BuilderStateError panic")
			}
		}()
		_, _ = b.Build()
	})

	t.Run("MergeWith Without Parallel Panics", func(t *testing.T) {
		defer func() {
			seqErr, ok := recover().(*BuilderSequenceError)
			if !ok {
				t.Fatal("expected *BuilderSequenceError panic")
			}
			if seqErr.Op != "MergeWith" {
				t.Errorf("expected op 'MergeWith', got %q", seqErr.Op)
			}
		}()
		NewPipeline("p").
			Then(intStage("a", func(n int) int { return n })).
			MergeWith(ReduceStage("sum", func(_ context.Context, vals []int) (int, error) {
				return 0, nil
			}))
	})

	t.Run("CatchErrors On Empty Panics", func(t *testing.T) {
		defer func() {
			if _, ok := recover().(*BuilderSequenceError); !ok {
				t.Fatal("expected *BuilderSequenceError panic")
			}
		}()
		NewPipeline("p").CatchErrors(RecoverOf(func(_ context.Context, _ error, n int) (int, error) {
			return n, nil
		}))
	})
}

func TestBuilderDiagnostics(t *testing.T) {
	t.Run("All Type Errors Reported Together", func(t *testing.T) {
		str := NewStage[int, string](Transform("itoa", func(_ context.Context, n int) string {
			return strconv.Itoa(n)
		}))

		_, err := NewPipeline("broken").
			Then(intStage("a", func(n int) int { return n })).
			Then(str).                                          // int -> string: fine
			Then(intStage("b", func(n int) int { return n })).  // string into int: mismatch
			Then(str).                                          // int -> string: fine
			Then(intStage("c", func(n int) int { return n })).  // string into int: mismatch
			Build()
		if err == nil {
			t.Fatal("expected aggregated type errors")
		}

		errs := multierr.Errors(err)
		if len(errs) != 2 {
			t.Fatalf("expected 2 diagnostics, got %d: %v", len(errs), err)
		}
		for _, e := range errs {
			var mismatch *TypeMismatchError
			if !errors.As(e, &mismatch) {
				t.Errorf("expected *TypeMismatchError, got %T", e)
			}
		}
	})

	t.Run("Mismatch Suggests Adapter", func(t *testing.T) {
		reg := NewRegistry()
		RegisterAdapterFunc(reg, "atoi", func(_ context.Context, s string) (int, error) {
			return strconv.Atoi(s)
		})

		str := NewStage[int, string](Transform("itoa", func(_ context.Context, n int) string {
			return strconv.Itoa(n)
		}))

		_, err := NewPipeline("broken").
			WithRegistry(reg).
			Then(str).
			Then(intStage("b", func(n int) int { return n })).
			Build()
		var mismatch *TypeMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected *TypeMismatchError, got %T", err)
		}
		if mismatch.Suggested != "atoi" {
			t.Errorf("expected suggestion 'atoi', got %q", mismatch.Suggested)
		}
	})

	t.Run("Registry Adapt Resolves At Build", func(t *testing.T) {
		reg := NewRegistry()
		RegisterAdapterFunc(reg, "itoa", func(_ context.Context, n int) (string, error) {
			return strconv.Itoa(n), nil
		})

		shout := NewStage[string, string](Transform("shout", func(_ context.Context, s string) string {
			return s + "!"
		}))

		built, err := NewPipeline("ok").
			WithRegistry(reg).
			Then(intStage("double", func(n int) int { return n * 2 })).
			Adapt(reflect.TypeFor[int](), reflect.TypeFor[string]()).
			Then(shout).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result, err := built.Invoke(context.Background(), 21, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "42!" {
			t.Errorf("expected %q, got %v", "42!", result)
		}
	})

	t.Run("Adapt Bridges Already Appended Stages", func(t *testing.T) {
		reg := NewRegistry()
		RegisterAdapterFunc(reg, "itoa", func(_ context.Context, n int) (string, error) {
			return strconv.Itoa(n), nil
		})

		shout := NewStage[string, string](Transform("shout", func(_ context.Context, s string) string {
			return s + "!"
		}))

		built, err := NewPipeline("late").
			WithRegistry(reg).
			Then(intStage("double", func(n int) int { return n * 2 })).
			Then(shout).
			Adapt(reflect.TypeFor[int](), reflect.TypeFor[string]()).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result, err := built.Invoke(context.Background(), 21, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "42!" {
			t.Errorf("expected %q, got %v", "42!", result)
		}
	})

	t.Run("Missing Registry Adapter Reported", func(t *testing.T) {
		_, err := NewPipeline("broken").
			Then(intStage("a", func(n int) int { return n })).
			Adapt(reflect.TypeFor[int](), reflect.TypeFor[string]()).
			Build()
		var mismatch *TypeMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected *TypeMismatchError, got %T", err)
		}
	})
}

func TestBuilderBranch(t *testing.T) {
	t.Run("Routes Per Invocation", func(t *testing.T) {
		big := NewStage[int, string](Transform("big", func(_ context.Context, _ int) string { return "big" }))
		small := NewStage[int, string](Transform("small", func(_ context.Context, _ int) string { return "small" }))

		built, err := NewPipeline("route").
			Then(intStage("inc", func(n int) int { return n + 1 })).
			Branch(CondOf(func(_ context.Context, n int) (bool, error) { return n > 10, nil }), big, small).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result, err := built.Invoke(context.Background(), 20, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "big" {
			t.Errorf("expected 'big', got %v", result)
		}

		result, err = built.Invoke(context.Background(), 2, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "small" {
			t.Errorf("expected 'small', got %v", result)
		}
	})

	t.Run("Mismatched Outputs Rejected", func(t *testing.T) {
		toStr := NewStage[int, string](Transform("str", func(_ context.Context, n int) string {
			return strconv.Itoa(n)
		}))
		toInt := intStage("int", func(n int) int { return n })

		_, err := NewPipeline("broken").
			Branch(CondOf(func(_ context.Context, _ int) (bool, error) { return true, nil }), toStr, toInt).
			Build()
		var mismatch *TypeMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected *TypeMismatchError, got %T", err)
		}
	})
}

func TestBuilderParallel(t *testing.T) {
	t.Run("Fan Out Then Merge", func(t *testing.T) {
		built, err := NewPipeline("scatter").
			Then(intStage("inc", func(n int) int { return n + 1 })).
			Parallel(
				intStage("double", func(n int) int { return n * 2 }),
				intStage("triple", func(n int) int { return n * 3 }),
			).
			MergeWith(ReduceStage("sum", func(_ context.Context, vals []int) (int, error) {
				total := 0
				for _, v := range vals {
					total += v
				}
				return total, nil
			})).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// (5+1)*2 + (5+1)*3 = 30
		result, err := built.Invoke(context.Background(), 5, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != 30 {
			t.Errorf("expected 30, got %v", result)
		}
	})

	t.Run("Empty Parallel Group Rejected", func(t *testing.T) {
		_, err := NewPipeline("broken").
			Then(intStage("a", func(n int) int { return n })).
			Parallel().
			Build()
		var seqErr *BuilderSequenceError
		if !errors.As(err, &seqErr) {
			t.Fatalf("expected *BuilderSequenceError, got %T", err)
		}
	})
}

func TestBuilderCatchErrors(t *testing.T) {
	t.Run("Recovers Stage Failure", func(t *testing.T) {
		boom := NewStage[int, int](Apply("boom", func(_ context.Context, _ int) (int, error) {
			return 0, errors.New("failed")
		}))

		built, err := NewPipeline("guarded").
			Then(boom).
			CatchErrors(RecoverOf(func(_ context.Context, _ error, n int) (int, error) {
				return n * 100, nil
			})).
			Then(intStage("inc", func(n int) int { return n + 1 })).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result, err := built.Invoke(context.Background(), 3, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != 301 {
			t.Errorf("expected 301, got %v", result)
		}
	})
}

func TestBuilderVisualize(t *testing.T) {
	t.Run("Readable In Any State", func(t *testing.T) {
		b := NewPipeline("viz").
			Then(intStage("parse", func(n int) int { return n })).
			Parallel(
				intStage("a", func(n int) int { return n }),
				intStage("b", func(n int) int { return n }),
			).
			MergeWith(ReduceStage("sum", func(_ context.Context, vals []int) (int, error) {
				return len(vals), nil
			}))

		before := b.Visualize()
		if !strings.Contains(before, "parse") {
			t.Errorf("expected stage names before Build, got:\n%s", before)
		}

		if _, err := b.Build(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		after := b.Visualize()
		if before != after {
			t.Error("expected Visualize to be stable across finalization")
		}
		explain := b.Explain()
		if !strings.Contains(explain, "concurrently") {
			t.Errorf("expected narrative to mention concurrency, got:\n%s", explain)
		}
	})
}
