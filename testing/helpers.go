// Package testing provides test utilities and helpers for relayz pipelines.
//
// It includes mock stages, an execution-order recorder, a counting locator
// and chaos stages to make testing pipelines easier.
//
// Example usage:
//
//	func TestCheckout(t *testing.T) {
//		auth := rtesting.NewMockStage[Order](t, "auth")
//		registry := relayz.NewRegistry()
//		_ = registry.Register("auth", auth)
//
//		result, err := relayz.New[Order]("checkout", registry).
//			Send(order).
//			Through(relayz.Ref[Order]("auth:admin")).
//			ThenReturn(context.Background())
//
//		rtesting.AssertCalled(t, auth, 1)
//		rtesting.AssertParams(t, auth, "admin")
//	}
package testing

import (
	"context"
	"errors"
	mathrand "math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/relayz"
)

// MockStage is a configurable stage object implementing relayz.Handler[T].
// By default it calls next with the payload it received. It records every
// call, including the parameters parsed from a Ref identifier.
type MockStage[T any] struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	t           *testing.T
	name        string
	callCount   int64
	lastInput   T
	lastParams  []string
	returnVal   T
	returnErr   error
	transform   func(T) T
	halt        bool
	panicMsg    string
	mu          sync.RWMutex
	callHistory []MockCall[T]
	maxHistory  int
}

// MockCall represents a single call to a mock stage.
type MockCall[T any] struct {
	Input     T
	Params    []string
	Timestamp time.Time
	Context   context.Context
}

// NewMockStage creates a mock stage that passes the payload through.
func NewMockStage[T any](t *testing.T, name string) *MockStage[T] {
	return &MockStage[T]{
		t:          t,
		name:       name,
		maxHistory: 100,
	}
}

// WithReturn makes the mock stop the chain and return val and err without
// calling next.
func (m *MockStage[T]) WithReturn(val T, err error) *MockStage[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnVal = val
	m.returnErr = err
	m.halt = true
	return m
}

// WithTransform makes the mock call next with fn applied to the payload.
func (m *MockStage[T]) WithTransform(fn func(T) T) *MockStage[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transform = fn
	return m
}

// WithPanic configures the mock to panic with a specific message.
func (m *MockStage[T]) WithPanic(msg string) *MockStage[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// WithHistorySize configures how many calls to keep in history.
// Set to 0 to disable history tracking.
func (m *MockStage[T]) WithHistorySize(size int) *MockStage[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxHistory = size
	if size == 0 {
		m.callHistory = nil
	} else if len(m.callHistory) > size {
		m.callHistory = m.callHistory[len(m.callHistory)-size:]
	}
	return m
}

// Name returns the name of the mock stage.
func (m *MockStage[T]) Name() relayz.Name {
	return m.name
}

// Pipe returns the mock as an Object pipe.
func (m *MockStage[T]) Pipe() relayz.Pipe[T] {
	return relayz.Object[T](m.name, m)
}

// Handle implements relayz.Handler[T].
func (m *MockStage[T]) Handle(ctx context.Context, payload T, next relayz.Next[T], params ...string) (T, error) {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.Lock()
	m.lastInput = payload
	m.lastParams = slices.Clone(params)
	if m.maxHistory > 0 {
		m.callHistory = append(m.callHistory, MockCall[T]{
			Input:     payload,
			Params:    slices.Clone(params),
			Timestamp: time.Now(),
			Context:   ctx,
		})
		if len(m.callHistory) > m.maxHistory {
			m.callHistory = m.callHistory[1:]
		}
	}

	halt := m.halt
	returnVal := m.returnVal
	returnErr := m.returnErr
	transform := m.transform
	panicMsg := m.panicMsg
	m.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if halt {
		return returnVal, returnErr
	}
	if transform != nil {
		payload = transform(payload)
	}
	return next(ctx, payload)
}

// CallCount returns the number of times the stage has been invoked.
func (m *MockStage[T]) CallCount() int {
	return int(atomic.LoadInt64(&m.callCount))
}

// LastInput returns the payload from the most recent call.
func (m *MockStage[T]) LastInput() T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInput
}

// LastParams returns the parameters from the most recent call.
func (m *MockStage[T]) LastParams() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.lastParams)
}

// CallHistory returns a copy of all recorded calls.
// Returns nil if history tracking is disabled.
func (m *MockStage[T]) CallHistory() []MockCall[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.maxHistory == 0 {
		return nil
	}
	history := make([]MockCall[T], len(m.callHistory))
	copy(history, m.callHistory)
	return history
}

// Reset clears all call tracking.
func (m *MockStage[T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.StoreInt64(&m.callCount, 0)
	m.lastInput = *new(T)
	m.lastParams = nil
	m.callHistory = nil
}

// Recorder records the order in which its stages run.
type Recorder[T any] struct {
	mu    sync.Mutex
	order []string
}

// NewRecorder creates an empty Recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{}
}

// Stage returns a Func pipe that records name and continues the chain.
func (r *Recorder[T]) Stage(name relayz.Name) relayz.Pipe[T] {
	return relayz.Func[T](name, func(ctx context.Context, payload T, next relayz.Next[T]) (T, error) {
		r.Record(name)
		return next(ctx, payload)
	})
}

// Record appends name to the recorded order.
func (r *Recorder[T]) Record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

// Order returns the recorded names.
func (r *Recorder[T]) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// CountingLocator wraps a relayz.Locator and counts lookups per name.
type CountingLocator struct {
	locator relayz.Locator
	counts  map[string]int
	mu      sync.Mutex
}

// NewCountingLocator wraps locator.
func NewCountingLocator(locator relayz.Locator) *CountingLocator {
	return &CountingLocator{
		locator: locator,
		counts:  make(map[string]int),
	}
}

// Lookup implements relayz.Locator.
func (c *CountingLocator) Lookup(ctx context.Context, name string) (any, error) {
	c.mu.Lock()
	c.counts[name]++
	c.mu.Unlock()
	return c.locator.Lookup(ctx, name)
}

// Lookups returns how many times name was looked up.
func (c *CountingLocator) Lookups(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// Assertion Helpers

// AssertCalled verifies that a mock stage was invoked exactly n times.
func AssertCalled[T any](t *testing.T, mock *MockStage[T], expectedCalls int) {
	t.Helper()
	actualCalls := mock.CallCount()
	if actualCalls != expectedCalls {
		t.Errorf("expected mock stage %s to be called %d times, but was called %d times",
			mock.name, expectedCalls, actualCalls)
	}
}

// AssertNotCalled verifies that a mock stage was never invoked.
func AssertNotCalled[T any](t *testing.T, mock *MockStage[T]) {
	t.Helper()
	AssertCalled(t, mock, 0)
}

// AssertCalledWith verifies the payload of the most recent call.
func AssertCalledWith[T comparable](t *testing.T, mock *MockStage[T], expectedInput T) {
	t.Helper()
	if mock.CallCount() == 0 {
		t.Errorf("expected mock stage %s to be called with input %v, but it was never called",
			mock.name, expectedInput)
		return
	}

	actualInput := mock.LastInput()
	if actualInput != expectedInput {
		t.Errorf("expected mock stage %s to be called with input %v, but was called with %v",
			mock.name, expectedInput, actualInput)
	}
}

// AssertParams verifies the parameters of the most recent call.
func AssertParams[T any](t *testing.T, mock *MockStage[T], expected ...string) {
	t.Helper()
	actual := mock.LastParams()
	if len(actual) == 0 && len(expected) == 0 {
		return
	}
	if !slices.Equal(actual, expected) {
		t.Errorf("expected mock stage %s to receive params %q, got %q", mock.name, expected, actual)
	}
}

// AssertOrder verifies the names a Recorder saw, in order.
func AssertOrder[T any](t *testing.T, recorder *Recorder[T], expected ...string) {
	t.Helper()
	actual := recorder.Order()
	if !slices.Equal(actual, expected) {
		t.Errorf("expected execution order %q, got %q", expected, actual)
	}
}

// ErrChaos is returned by a ChaosStage when it injects a failure.
var ErrChaos = errors.New("chaos stage induced failure")

// ChaosConfig holds configuration for a ChaosStage.
type ChaosConfig struct {
	FailureRate float64 // Probability of failing instead of continuing (0.0 to 1.0)
	PanicRate   float64 // Probability of panicking (0.0 to 1.0)
	Seed        int64   // Random seed for reproducible chaos
}

// ChaosStage randomly fails or panics before continuing the chain. It is
// useful to check that failures surface unchanged and that recovery works.
type ChaosStage[T any] struct {
	rng         *mathrand.Rand
	name        string
	failureRate float64
	panicRate   float64
	mu          sync.Mutex
	totalCalls  int64
	failedCalls int64
	panicCalls  int64
}

// NewChaosStage creates a chaos stage.
func NewChaosStage[T any](name string, config ChaosConfig) *ChaosStage[T] {
	return &ChaosStage[T]{
		name:        name,
		failureRate: config.FailureRate,
		panicRate:   config.PanicRate,
		rng:         mathrand.New(mathrand.NewSource(config.Seed)), //nolint:gosec // G404: deterministic chaos for tests
	}
}

// Invoke implements relayz.Invoker[T].
func (c *ChaosStage[T]) Invoke(ctx context.Context, payload T, next relayz.Next[T], _ ...string) (T, error) {
	atomic.AddInt64(&c.totalCalls, 1)

	c.mu.Lock()
	doPanic := c.rng.Float64() < c.panicRate
	doFail := c.rng.Float64() < c.failureRate
	c.mu.Unlock()

	if doPanic {
		atomic.AddInt64(&c.panicCalls, 1)
		panic("chaos stage induced panic")
	}
	if doFail {
		atomic.AddInt64(&c.failedCalls, 1)
		return payload, ErrChaos
	}
	return next(ctx, payload)
}

// Stats returns statistics about chaos injection.
func (c *ChaosStage[T]) Stats() ChaosStats {
	return ChaosStats{
		TotalCalls:  atomic.LoadInt64(&c.totalCalls),
		FailedCalls: atomic.LoadInt64(&c.failedCalls),
		PanicCalls:  atomic.LoadInt64(&c.panicCalls),
	}
}

// ChaosStats holds statistics about chaos injection.
type ChaosStats struct {
	TotalCalls  int64
	FailedCalls int64
	PanicCalls  int64
}

// WaitFor polls cond until it returns true or timeout elapses. Hook handlers
// run asynchronously, so tests use it to wait for events.
func WaitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
