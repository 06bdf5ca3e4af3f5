package relayz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// Circuit breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// Observability constants for the CircuitBreaker stage.
const (
	CircuitBreakerRejectedTotal = metricz.Key("circuitbreaker.rejected.total")
	CircuitBreakerOpenedTotal   = metricz.Key("circuitbreaker.opened.total")
	CircuitBreakerStateOpen     = metricz.Key("circuitbreaker.state.open")

	CircuitBreakerEventOpened   = hookz.Key("circuitbreaker.opened")
	CircuitBreakerEventHalfOpen = hookz.Key("circuitbreaker.half_open")
	CircuitBreakerEventClosed   = hookz.Key("circuitbreaker.closed")
	CircuitBreakerEventRejected = hookz.Key("circuitbreaker.rejected")
)

// ErrCircuitOpen is returned, without running the rest of the chain, while a
// CircuitBreaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerEvent is emitted via hookz on state changes and rejections.
type CircuitBreakerEvent struct {
	Timestamp  time.Time
	Name       Name
	State      string
	Failures   int
	Generation int
}

// CircuitBreaker stops calling the rest of the chain after it has failed
// failureThreshold times in a row. Once resetTimeout has passed it lets
// calls through again (half-open); successThreshold successes close it and
// a single failure opens it again.
//
// A CircuitBreaker keeps state across runs, so register one shared instance
// rather than a factory.
type CircuitBreaker[T any] struct {
	lastFailTime     time.Time
	clock            clockz.Clock
	metrics          *metricz.Registry
	hooks            *hookz.Hooks[CircuitBreakerEvent]
	name             Name
	state            string
	mu               sync.Mutex
	resetTimeout     time.Duration
	generation       int
	failureThreshold int
	successThreshold int
	failures         int
	successes        int
}

// NewCircuitBreaker creates a closed CircuitBreaker stage.
func NewCircuitBreaker[T any](name Name, failureThreshold int, resetTimeout time.Duration) *CircuitBreaker[T] {
	if failureThreshold < 1 {
		failureThreshold = 1
	}

	metrics := metricz.New()
	metrics.Counter(CircuitBreakerRejectedTotal)
	metrics.Counter(CircuitBreakerOpenedTotal)
	metrics.Gauge(CircuitBreakerStateOpen)

	return &CircuitBreaker[T]{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: 1,
		resetTimeout:     resetTimeout,
		state:            StateClosed,
		metrics:          metrics,
		hooks:            hookz.New[CircuitBreakerEvent](),
	}
}

// Invoke implements Invoker.
func (cb *CircuitBreaker[T]) Invoke(ctx context.Context, payload T, next Next[T], _ ...string) (T, error) {
	cb.mu.Lock()

	clock := cb.getClock()
	if cb.state == StateOpen && clock.Since(cb.lastFailTime) > cb.resetTimeout {
		cb.state = StateHalfOpen
		cb.failures = 0
		cb.successes = 0
		cb.generation++
		cb.metrics.Gauge(CircuitBreakerStateOpen).Set(0)
		cb.emit(ctx, CircuitBreakerEventHalfOpen)
	}

	if cb.state == StateOpen {
		cb.metrics.Counter(CircuitBreakerRejectedTotal).Inc()
		cb.emit(ctx, CircuitBreakerEventRejected)
		cb.mu.Unlock()
		return payload, fmt.Errorf("stage %q: %w", cb.name, ErrCircuitOpen)
	}

	generation := cb.generation
	cb.mu.Unlock()

	result, err := next(ctx, payload)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	// A reset or state change while the chain ran makes this outcome stale.
	if cb.generation != generation {
		return result, err
	}
	if err != nil {
		cb.onFailure(ctx)
		return result, err
	}
	cb.onSuccess(ctx)
	return result, nil
}

func (cb *CircuitBreaker[T]) onSuccess(ctx context.Context) {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
			cb.emit(ctx, CircuitBreakerEventClosed)
		}
	}
}

func (cb *CircuitBreaker[T]) onFailure(ctx context.Context) {
	cb.lastFailTime = cb.getClock().Now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.open(ctx)
		}
	case StateHalfOpen:
		cb.failures++
		cb.successes = 0
		cb.open(ctx)
	}
}

func (cb *CircuitBreaker[T]) open(ctx context.Context) {
	cb.state = StateOpen
	cb.generation++
	cb.metrics.Counter(CircuitBreakerOpenedTotal).Inc()
	cb.metrics.Gauge(CircuitBreakerStateOpen).Set(1)
	cb.emit(ctx, CircuitBreakerEventOpened)
}

// emit must be called with cb.mu held.
func (cb *CircuitBreaker[T]) emit(ctx context.Context, key hookz.Key) {
	_ = cb.hooks.Emit(ctx, key, CircuitBreakerEvent{ //nolint:errcheck
		Name:       cb.name,
		State:      cb.state,
		Failures:   cb.failures,
		Generation: cb.generation,
		Timestamp:  cb.getClock().Now(),
	})
}

// Pipe returns cb as an Object pipe.
func (cb *CircuitBreaker[T]) Pipe() Pipe[T] {
	return Object[T](cb.name, cb)
}

// SetSuccessThreshold sets how many half-open successes close the breaker.
func (cb *CircuitBreaker[T]) SetSuccessThreshold(n int) *CircuitBreaker[T] {
	if n < 1 {
		n = 1
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.successThreshold = n
	return cb
}

// State returns the current state, reporting half-open once the reset
// timeout has passed.
func (cb *CircuitBreaker[T]) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.getClock().Since(cb.lastFailTime) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counts.
func (cb *CircuitBreaker[T]) Reset() *CircuitBreaker[T] {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.generation++
	cb.metrics.Gauge(CircuitBreakerStateOpen).Set(0)
	return cb
}

// WithClock sets a custom clock for testing.
func (cb *CircuitBreaker[T]) WithClock(clock clockz.Clock) *CircuitBreaker[T] {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.clock = clock
	return cb
}

// Name returns the name of this stage.
func (cb *CircuitBreaker[T]) Name() Name {
	return cb.name
}

// Metrics returns the metrics registry for this breaker.
func (cb *CircuitBreaker[T]) Metrics() *metricz.Registry {
	return cb.metrics
}

// OnOpened registers a handler called when the breaker opens.
func (cb *CircuitBreaker[T]) OnOpened(handler func(context.Context, CircuitBreakerEvent) error) error {
	_, err := cb.hooks.Hook(CircuitBreakerEventOpened, handler)
	return err
}

// OnHalfOpen registers a handler called when the breaker starts letting
// calls through again.
func (cb *CircuitBreaker[T]) OnHalfOpen(handler func(context.Context, CircuitBreakerEvent) error) error {
	_, err := cb.hooks.Hook(CircuitBreakerEventHalfOpen, handler)
	return err
}

// OnClosed registers a handler called when a half-open breaker closes.
func (cb *CircuitBreaker[T]) OnClosed(handler func(context.Context, CircuitBreakerEvent) error) error {
	_, err := cb.hooks.Hook(CircuitBreakerEventClosed, handler)
	return err
}

// OnRejected registers a handler called for each call refused while open.
func (cb *CircuitBreaker[T]) OnRejected(handler func(context.Context, CircuitBreakerEvent) error) error {
	_, err := cb.hooks.Hook(CircuitBreakerEventRejected, handler)
	return err
}

// Close gracefully shuts down observability components.
func (cb *CircuitBreaker[T]) Close() error {
	cb.hooks.Close()
	return nil
}

func (cb *CircuitBreaker[T]) getClock() clockz.Clock {
	if cb.clock == nil {
		return clockz.RealClock
	}
	return cb.clock
}
