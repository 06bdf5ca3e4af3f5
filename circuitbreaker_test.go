package relayz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	run := func(cb *CircuitBreaker[int], fail bool, calls *int) error {
		_, err := New[int](testPipeline, nil).
			Through(cb.Pipe()).
			Then(ctx, func(_ context.Context, n int) (int, error) {
				*calls++
				if fail {
					return n, boom
				}
				return n, nil
			})
		return err
	}

	t.Run("Opens After Threshold", func(t *testing.T) {
		cb := NewCircuitBreaker[int]("breaker", 3, 5*time.Second)
		defer cb.Close()
		calls := 0

		for i := 0; i < 3; i++ {
			if err := run(cb, true, &calls); !errors.Is(err, boom) {
				t.Fatalf("expected boom unchanged, got %v", err)
			}
		}
		if cb.State() != StateOpen {
			t.Fatalf("expected open, got %s", cb.State())
		}

		err := run(cb, false, &calls)
		if !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("expected ErrCircuitOpen, got %v", err)
		}
		if calls != 3 {
			t.Errorf("open breaker should not call the chain, got %d calls", calls)
		}
		if v := cb.Metrics().Counter(CircuitBreakerRejectedTotal).Value(); v != 1 {
			t.Errorf("expected 1 rejection, got %f", v)
		}
		if v := cb.Metrics().Counter(CircuitBreakerOpenedTotal).Value(); v != 1 {
			t.Errorf("expected 1 opening, got %f", v)
		}
	})

	t.Run("Success Resets Failure Count", func(t *testing.T) {
		cb := NewCircuitBreaker[int]("breaker", 2, time.Second)
		defer cb.Close()
		calls := 0

		_ = run(cb, true, &calls)
		_ = run(cb, false, &calls)
		_ = run(cb, true, &calls)
		if cb.State() != StateClosed {
			t.Errorf("expected closed, got %s", cb.State())
		}
	})

	t.Run("Half Open Then Closed", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		cb := NewCircuitBreaker[int]("breaker", 1, 5*time.Second).WithClock(clock)
		defer cb.Close()
		calls := 0

		_ = run(cb, true, &calls)
		if cb.State() != StateOpen {
			t.Fatalf("expected open, got %s", cb.State())
		}

		clock.Advance(3 * time.Second)
		if err := run(cb, false, &calls); !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("expected still open, got %v", err)
		}

		clock.Advance(3 * time.Second)
		if cb.State() != StateHalfOpen {
			t.Fatalf("expected half-open, got %s", cb.State())
		}
		if err := run(cb, false, &calls); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cb.State() != StateClosed {
			t.Errorf("expected closed, got %s", cb.State())
		}
	})

	t.Run("Half Open Failure Reopens", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		cb := NewCircuitBreaker[int]("breaker", 1, 5*time.Second).WithClock(clock)
		defer cb.Close()
		calls := 0

		_ = run(cb, true, &calls)
		clock.Advance(6 * time.Second)
		if err := run(cb, true, &calls); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if cb.State() != StateOpen {
			t.Errorf("expected open, got %s", cb.State())
		}
	})

	t.Run("Success Threshold", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		cb := NewCircuitBreaker[int]("breaker", 1, time.Second).WithClock(clock).SetSuccessThreshold(2)
		defer cb.Close()
		calls := 0

		_ = run(cb, true, &calls)
		clock.Advance(2 * time.Second)
		_ = run(cb, false, &calls)
		if cb.State() != StateHalfOpen {
			t.Errorf("expected half-open after one success, got %s", cb.State())
		}
		_ = run(cb, false, &calls)
		if cb.State() != StateClosed {
			t.Errorf("expected closed after two successes, got %s", cb.State())
		}
	})

	t.Run("Reset", func(t *testing.T) {
		cb := NewCircuitBreaker[int]("breaker", 1, time.Hour)
		defer cb.Close()
		calls := 0

		_ = run(cb, true, &calls)
		cb.Reset()
		if cb.State() != StateClosed {
			t.Errorf("expected closed, got %s", cb.State())
		}
		if err := run(cb, false, &calls); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Events", func(t *testing.T) {
		cb := NewCircuitBreaker[int]("breaker", 1, time.Hour)
		defer cb.Close()

		var mu sync.Mutex
		var opened, rejected []CircuitBreakerEvent
		_ = cb.OnOpened(func(_ context.Context, e CircuitBreakerEvent) error {
			mu.Lock()
			opened = append(opened, e)
			mu.Unlock()
			return nil
		})
		_ = cb.OnRejected(func(_ context.Context, e CircuitBreakerEvent) error {
			mu.Lock()
			rejected = append(rejected, e)
			mu.Unlock()
			return nil
		})

		calls := 0
		_ = run(cb, true, &calls)
		_ = run(cb, true, &calls)

		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		if len(opened) != 1 || opened[0].State != StateOpen || opened[0].Name != "breaker" {
			t.Errorf("unexpected opened events %+v", opened)
		}
		if len(rejected) != 1 {
			t.Errorf("expected 1 rejected event, got %d", len(rejected))
		}
	})
}
