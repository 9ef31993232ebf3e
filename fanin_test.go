package brickz

import (
	"context"
	"errors"
	"testing"
)

func TestFanIn(t *testing.T) {
	t.Run("Reduces Ordered Results", func(t *testing.T) {
		group := NewParallel("scores",
			Transform("a", func(_ context.Context, n int) int { return n + 1 }),
			Transform("b", func(_ context.Context, n int) int { return n + 2 }),
			Transform("c", func(_ context.Context, n int) int { return n + 3 }),
		)
		defer group.Close()

		sum := FanIn("sum", group, func(_ context.Context, vals []int) (int, error) {
			total := 0
			for _, v := range vals {
				total += v
			}
			return total, nil
		})

		result, err := sum.Invoke(context.Background(), 10, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != 36 {
			t.Errorf("expected 36, got %d", result)
		}
	})

	t.Run("Deterministic Given Deterministic Reducer", func(t *testing.T) {
		group := NewParallel("parts",
			Transform("first", func(_ context.Context, s string) string { return s + "-1" }),
			Transform("second", func(_ context.Context, s string) string { return s + "-2" }),
		)
		defer group.Close()

		join := FanIn("join", group, func(_ context.Context, parts []string) (string, error) {
			return parts[0] + "|" + parts[1], nil
		})

		first, err := join.Invoke(context.Background(), "x", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for range 10 {
			again, err := join.Invoke(context.Background(), "x", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if again != first {
				t.Errorf("expected stable result %q, got %q", first, again)
			}
		}
	})

	t.Run("Group Failure Skips Reducer", func(t *testing.T) {
		group := NewParallel("group",
			Apply("boom", func(_ context.Context, _ int) (int, error) {
				return 0, errors.New("child failed")
			}),
		)
		defer group.Close()

		reduced := false
		fanin := FanIn("reduce", group, func(_ context.Context, _ []int) (int, error) {
			reduced = true
			return 0, nil
		})

		if _, err := fanin.Invoke(context.Background(), 1, nil); err == nil {
			t.Fatal("expected group error")
		}
		if reduced {
			t.Error("expected reducer to be skipped on group failure")
		}
	})

	t.Run("Reducer Error Propagates", func(t *testing.T) {
		group := NewParallel("group",
			Transform("ok", func(_ context.Context, n int) int { return n }),
		)
		defer group.Close()

		fanin := FanIn("reduce", group, func(_ context.Context, _ []int) (int, error) {
			return 0, errors.New("cannot reduce")
		})

		_, err := fanin.Invoke(context.Background(), 1, nil)
		if err == nil {
			t.Fatal("expected reducer error")
		}
		var brickErr *Error[int]
		if !errors.As(err, &brickErr) {
			t.Fatalf("expected *Error[int], got %T", err)
		}
		if brickErr.Path[0] != "reduce" {
			t.Errorf("expected path to start with 'reduce', got %v", brickErr.Path)
		}
	})
}
