package relayz

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("Completes Within Timeout", func(t *testing.T) {
		timeout := NewTimeout[int]("test-timeout", 100*time.Millisecond)

		result, err := New[int](testPipeline, nil).
			Send(5).
			Through(timeout.Pipe()).
			Then(ctx, func(_ context.Context, n int) (int, error) {
				time.Sleep(10 * time.Millisecond)
				return n * 2, nil
			})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != 10 {
			t.Errorf("expected 10, got %d", result)
		}
	})

	t.Run("Exceeds Timeout", func(t *testing.T) {
		timeout := NewTimeout[int]("test-timeout", 20*time.Millisecond)

		result, err := New[int](testPipeline, nil).
			Send(5).
			Through(timeout.Pipe()).
			Then(ctx, func(ctx context.Context, n int) (int, error) {
				<-ctx.Done()
				return n * 2, ctx.Err()
			})
		if !errors.Is(err, ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected timeout error, got %v", err)
		}
		if result != 5 {
			t.Errorf("expected original payload 5, got %d", result)
		}
	})

	t.Run("Ref Overrides Duration", func(t *testing.T) {
		registry := NewRegistry()
		_ = registry.Register("timeout", NewTimeout[int]("timeout", time.Hour))

		_, err := New[int](testPipeline, registry).
			Through(Ref[int]("timeout:10ms")).
			Then(ctx, func(ctx context.Context, n int) (int, error) {
				select {
				case <-ctx.Done():
					return n, ctx.Err()
				case <-time.After(time.Second):
					return n, nil
				}
			})
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("Invalid Duration Param", func(t *testing.T) {
		registry := NewRegistry()
		_ = registry.Register("timeout", NewTimeout[int]("timeout", time.Second))

		_, err := New[int](testPipeline, registry).Through(Ref[int]("timeout:soon")).ThenReturn(ctx)
		if err == nil || errors.Is(err, ErrTimeout) {
			t.Errorf("expected a parse error, got %v", err)
		}
	})

	t.Run("Parent Cancellation", func(t *testing.T) {
		timeout := NewTimeout[int]("test-timeout", time.Second)
		parent, cancel := context.WithCancel(ctx)

		_, err := New[int](testPipeline, nil).
			Through(timeout.Pipe()).
			Then(parent, func(ctx context.Context, n int) (int, error) {
				cancel()
				<-ctx.Done()
				return n, ctx.Err()
			})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if errors.Is(err, ErrTimeout) {
			t.Error("cancellation is not a timeout")
		}
	})

	t.Run("Stage Errors Pass Through", func(t *testing.T) {
		boom := errors.New("boom")
		timeout := NewTimeout[int]("test-timeout", time.Second)

		_, err := New[int](testPipeline, nil).
			Through(timeout.Pipe()).
			Then(ctx, func(_ context.Context, n int) (int, error) { return n, boom })
		if err != boom { //nolint:errorlint // identity is the point
			t.Errorf("expected boom unchanged, got %v", err)
		}
	})

	t.Run("Panic In Chain Is Recovered By Pipeline", func(t *testing.T) {
		timeout := NewTimeout[int]("guarded", time.Second)

		result, err := New[int](testPipeline, nil).
			WithRecovery().
			Send(3).
			Through(timeout.Pipe()).
			Then(ctx, func(context.Context, int) (int, error) {
				panic("boom")
			})

		var panicErr *PanicError
		if !errors.As(err, &panicErr) {
			t.Fatalf("expected PanicError, got %v", err)
		}
		if panicErr.Stage != "guarded" || panicErr.Index != 0 || panicErr.Value != "boom" {
			t.Errorf("unexpected panic error %+v", panicErr)
		}
		if result != 3 {
			t.Errorf("expected payload 3, got %d", result)
		}
	})

	t.Run("Panic In Chain Reaches Caller Without Recovery", func(t *testing.T) {
		timeout := NewTimeout[int]("unguarded", time.Second)

		defer func() {
			if r := recover(); r != "boom" {
				t.Errorf("expected panic boom on the calling goroutine, got %v", r)
			}
		}()
		_, _ = New[int](testPipeline, nil).
			Through(timeout.Pipe()).
			Then(ctx, func(context.Context, int) (int, error) {
				panic("boom")
			})
		t.Error("expected a panic")
	})

	t.Run("Duration Accessors", func(t *testing.T) {
		timeout := NewTimeout[int]("t", time.Second).SetDuration(2 * time.Second)
		if timeout.Duration() != 2*time.Second || timeout.Name() != "t" {
			t.Errorf("unexpected timeout %s %q", timeout.Duration(), timeout.Name())
		}
	})
}
