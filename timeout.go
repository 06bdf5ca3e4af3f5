package relayz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout is returned when the rest of the chain outlives a Timeout stage.
var ErrTimeout = errors.New("stage timed out")

// Timeout bounds the time the rest of the chain may take. The chain runs with
// a context that expires after the duration; if it has not returned by then,
// Timeout returns the payload it received with an error wrapping ErrTimeout
// and the context error.
//
// A Ref may override the duration: "timeout:250ms".
//
//	registry.Register("timeout", relayz.NewTimeout[Request]("timeout", 2*time.Second))
//	pipeline.Through(relayz.Ref[Request]("timeout:500ms"), relayz.Ref[Request]("fetch"))
//
// The chain keeps running in the background after a timeout; stages should
// watch ctx.Done() to stop early. A panic in the rest of the chain is raised
// again from Invoke, unless it comes after the timeout, when it is dropped.
type Timeout[T any] struct {
	name     Name
	duration time.Duration
	mu       sync.RWMutex
}

// NewTimeout creates a Timeout stage.
func NewTimeout[T any](name Name, duration time.Duration) *Timeout[T] {
	return &Timeout[T]{
		name:     name,
		duration: duration,
	}
}

// Invoke implements Invoker.
func (t *Timeout[T]) Invoke(ctx context.Context, payload T, next Next[T], params ...string) (T, error) {
	duration := t.Duration()
	if len(params) > 0 && params[0] != "" {
		d, err := time.ParseDuration(params[0])
		if err != nil {
			return payload, fmt.Errorf("stage %q: invalid duration %q: %w", t.name, params[0], err)
		}
		duration = d
	}

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	type outcome struct {
		result   T
		err      error
		panicked any
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{panicked: r}
			}
		}()
		result, err := next(ctx, payload)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		// Re-raise on the caller's goroutine so pipeline recovery sees it.
		if o.panicked != nil {
			panic(o.panicked)
		}
		// A chain that gave up because of this deadline is still a timeout.
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return payload, t.timeoutError(duration, ctx.Err())
		}
		return o.result, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return payload, t.timeoutError(duration, ctx.Err())
		}
		return payload, ctx.Err()
	}
}

func (t *Timeout[T]) timeoutError(duration time.Duration, cause error) error {
	return fmt.Errorf("stage %q after %s: %w: %w", t.name, duration, ErrTimeout, cause)
}

// Pipe returns t as an Object pipe.
func (t *Timeout[T]) Pipe() Pipe[T] {
	return Object[T](t.name, t)
}

// SetDuration updates the default duration.
func (t *Timeout[T]) SetDuration(d time.Duration) *Timeout[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = d
	return t
}

// Duration returns the default duration.
func (t *Timeout[T]) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.duration
}

// Name returns the name of this stage.
func (t *Timeout[T]) Name() Name {
	return t.name
}
