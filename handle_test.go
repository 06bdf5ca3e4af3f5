package relayz

import (
	"context"
	"errors"
	"testing"
)

func TestHandleError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	failing := func(_ context.Context, n int) (int, error) { return n, boom }

	t.Run("Recovers", func(t *testing.T) {
		recoverStage := HandleError[int]("recover", func(_ context.Context, _ int, err error) (int, error) {
			if errors.Is(err, boom) {
				return -1, nil
			}
			return 0, err
		})

		result, err := New[int](testPipeline, nil).Send(3).Through(recoverStage).Then(ctx, failing)
		if err != nil {
			t.Fatalf("expected recovery, got %v", err)
		}
		if result != -1 {
			t.Errorf("expected -1, got %d", result)
		}
	})

	t.Run("Replaces Error", func(t *testing.T) {
		replaced := errors.New("replaced")
		wrap := HandleError[int]("wrap", func(_ context.Context, n int, _ error) (int, error) {
			return n, replaced
		})

		_, err := New[int](testPipeline, nil).Through(wrap).Then(ctx, failing)
		if !errors.Is(err, replaced) {
			t.Errorf("expected replaced error, got %v", err)
		}
	})

	t.Run("Success Untouched", func(t *testing.T) {
		called := false
		observe := HandleError[int]("observe", func(_ context.Context, n int, err error) (int, error) {
			called = true
			return n, err
		})

		result, err := New[int](testPipeline, nil).Send(4).Through(observe).ThenReturn(ctx)
		if err != nil || result != 4 {
			t.Errorf("expected 4, got %d (%v)", result, err)
		}
		if called {
			t.Error("handler should not run on success")
		}
	})
}
