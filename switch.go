package relayz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// Observability constants for the Switch stage.
const (
	SwitchRoutedTotal   = metricz.Key("switch.routed.total")
	SwitchUnroutedTotal = metricz.Key("switch.unrouted.total")

	SwitchEventRouted   = hookz.Key("switch.routed")
	SwitchEventUnrouted = hookz.Key("switch.unrouted")
)

// SwitchEvent is emitted via hookz each time a Switch picks a route.
type SwitchEvent[K comparable] struct {
	Timestamp time.Time
	Error     error
	RouteKey  K
	Name      Name
	Stage     Name
	Duration  time.Duration
	Routed    bool
	Success   bool
}

// Condition picks a route key for a payload.
type Condition[T any, K comparable] func(context.Context, T) K

// Switch runs one of several stages in its place, chosen per payload by a
// Condition. The chosen stage receives the same next continuation the Switch
// was given, so it may continue or end the chain. Payloads whose key has no
// route continue unchanged.
//
//	byRole := relayz.NewSwitch[Request, string]("by-role", func(_ context.Context, r Request) string {
//	    return r.Role
//	})
//	byRole.AddRoute("admin", relayz.Ref[Request]("audit"))
//	byRole.AddRoute("guest", relayz.Ref[Request]("throttle:drop"))
//
// Ref routes are resolved through the locator set WithLocator, using the
// method set WithMethod ("handle" by default). A Switch does not see the
// enclosing pipeline's Via, so set both when routes use another method.
type Switch[T any, K comparable] struct {
	condition Condition[T, K]
	routes    map[K]Pipe[T]
	locator   Locator
	clock     clockz.Clock
	metrics   *metricz.Registry
	hooks     *hookz.Hooks[SwitchEvent[K]]
	name      Name
	method    string
	mu        sync.RWMutex
}

// NewSwitch creates a Switch with no routes.
func NewSwitch[T any, K comparable](name Name, condition Condition[T, K]) *Switch[T, K] {
	metrics := metricz.New()
	metrics.Counter(SwitchRoutedTotal)
	metrics.Counter(SwitchUnroutedTotal)

	return &Switch[T, K]{
		name:      name,
		condition: condition,
		routes:    make(map[K]Pipe[T]),
		method:    MethodHandle,
		metrics:   metrics,
		hooks:     hookz.New[SwitchEvent[K]](),
	}
}

// Invoke implements Invoker.
func (s *Switch[T, K]) Invoke(ctx context.Context, payload T, next Next[T], _ ...string) (T, error) {
	key := s.condition(ctx, payload)

	s.mu.RLock()
	pipe, exists := s.routes[key]
	locator := s.locator
	method := s.method
	clock := s.getClock()
	s.mu.RUnlock()

	if !exists {
		s.metrics.Counter(SwitchUnroutedTotal).Inc()
		_ = s.hooks.Emit(ctx, SwitchEventUnrouted, SwitchEvent[K]{ //nolint:errcheck
			Name:      s.name,
			RouteKey:  key,
			Timestamp: clock.Now(),
		})
		return next(ctx, payload)
	}

	s.metrics.Counter(SwitchRoutedTotal).Inc()
	start := clock.Now()

	var result T
	call, err := resolve(ctx, locator, pipe, method)
	if err != nil {
		result = payload
		err = &StageResolutionError{
			Pipeline: s.name,
			Stage:    pipe.Name(),
			Ref:      pipe.ref,
			Method:   method,
			Err:      err,
		}
	} else {
		result, err = call(ctx, payload, next)
	}

	_ = s.hooks.Emit(ctx, SwitchEventRouted, SwitchEvent[K]{ //nolint:errcheck
		Name:      s.name,
		RouteKey:  key,
		Stage:     pipe.Name(),
		Routed:    true,
		Success:   err == nil,
		Error:     err,
		Duration:  clock.Since(start),
		Timestamp: clock.Now(),
	})
	return result, err
}

// Pipe returns s as an Object pipe.
func (s *Switch[T, K]) Pipe() Pipe[T] {
	return Object[T](s.name, s)
}

// AddRoute sets the stage run for key, replacing any previous route. Object
// and Ref routes are invoked with the Switch's method, see WithMethod.
func (s *Switch[T, K]) AddRoute(key K, pipe Pipe[T]) *Switch[T, K] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[key] = pipe
	return s
}

// RemoveRoute deletes the route for key.
func (s *Switch[T, K]) RemoveRoute(key K) *Switch[T, K] {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.routes, key)
	return s
}

// HasRoute reports whether key has a route.
func (s *Switch[T, K]) HasRoute(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.routes[key]
	return ok
}

// WithLocator sets the locator used to resolve Ref routes.
func (s *Switch[T, K]) WithLocator(locator Locator) *Switch[T, K] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locator = locator
	return s
}

// WithMethod sets the invocation method used on route stage objects. An
// empty method restores the default, "handle".
//
//	pipeline.Via("after").Through(sw.WithMethod("after").Pipe())
func (s *Switch[T, K]) WithMethod(method string) *Switch[T, K] {
	if method == "" {
		method = MethodHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.method = method
	return s
}

// Method returns the invocation method used on route stage objects.
func (s *Switch[T, K]) Method() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.method
}

// WithClock sets a custom clock for testing.
func (s *Switch[T, K]) WithClock(clock clockz.Clock) *Switch[T, K] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// Name returns the name of this stage.
func (s *Switch[T, K]) Name() Name {
	return s.name
}

// Metrics returns the metrics registry for this switch.
func (s *Switch[T, K]) Metrics() *metricz.Registry {
	return s.metrics
}

// OnRouted registers a handler called after a routed stage returns.
func (s *Switch[T, K]) OnRouted(handler func(context.Context, SwitchEvent[K]) error) error {
	_, err := s.hooks.Hook(SwitchEventRouted, handler)
	return err
}

// OnUnrouted registers a handler called when a key has no route.
func (s *Switch[T, K]) OnUnrouted(handler func(context.Context, SwitchEvent[K]) error) error {
	_, err := s.hooks.Hook(SwitchEventUnrouted, handler)
	return err
}

// Close gracefully shuts down observability components.
func (s *Switch[T, K]) Close() error {
	s.hooks.Close()
	return nil
}

func (s *Switch[T, K]) getClock() clockz.Clock {
	if s.clock == nil {
		return clockz.RealClock
	}
	return s.clock
}
