package brickz

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimeout(t *testing.T) {
	t.Run("Completes Within Deadline", func(t *testing.T) {
		fast := Transform("fast", func(_ context.Context, n int) int { return n * 2 })

		timeout := NewTimeout("bounded", fast, time.Second)
		result, err := timeout.Invoke(context.Background(), 21, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != 42 {
			t.Errorf("expected 42, got %d", result)
		}
	})

	t.Run("Deadline Exceeded", func(t *testing.T) {
		slow := Apply("slow", func(ctx context.Context, n int) (int, error) {
			select {
			case <-time.After(5 * time.Second):
				return n, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		})

		timeout := NewTimeout("bounded", slow, 10*time.Millisecond)
		_, err := timeout.Invoke(context.Background(), 1, nil)
		var brickErr *Error[int]
		if !errors.As(err, &brickErr) {
			t.Fatalf("expected *Error[int], got %T", err)
		}
		if !brickErr.IsTimeout() {
			t.Errorf("expected timeout flag, got %+v", brickErr)
		}
	})

	t.Run("Child Error Within Deadline", func(t *testing.T) {
		boom := Apply("boom", func(_ context.Context, _ int) (int, error) {
			return 0, errors.New("failed")
		})

		timeout := NewTimeout("bounded", boom, time.Second)
		_, err := timeout.Invoke(context.Background(), 1, nil)
		if err == nil {
			t.Fatal("expected child error")
		}
		var brickErr *Error[int]
		if !errors.As(err, &brickErr) {
			t.Fatalf("expected *Error[int], got %T", err)
		}
		if brickErr.IsTimeout() {
			t.Error("expected plain failure, not timeout")
		}
	})

	t.Run("Parent Cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := Apply("slow", func(ctx context.Context, n int) (int, error) {
			select {
			case <-time.After(5 * time.Second):
				return n, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		})

		timeout := NewTimeout("bounded", slow, time.Second)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := timeout.Invoke(ctx, 1, nil)
		var brickErr *Error[int]
		if !errors.As(err, &brickErr) {
			t.Fatalf("expected *Error[int], got %T", err)
		}
		if !brickErr.IsCanceled() {
			t.Error("expected cancellation to be flagged")
		}
	})

	t.Run("SetDuration", func(t *testing.T) {
		fast := Transform("fast", func(_ context.Context, n int) int { return n })
		timeout := NewTimeout("bounded", fast, time.Second)

		timeout.SetDuration(2 * time.Second)
		if timeout.GetDuration() != 2*time.Second {
			t.Errorf("expected 2s, got %v", timeout.GetDuration())
		}
	})
}
