package relayz

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zoobzio/metricz"
	"golang.org/x/time/rate"
)

// Rate limiter modes.
const (
	ModeWait = "wait"
	ModeDrop = "drop"
)

// Observability constants for the RateLimiter stage.
const (
	RateLimiterAllowedTotal = metricz.Key("ratelimiter.allowed.total")
	RateLimiterDroppedTotal = metricz.Key("ratelimiter.dropped.total")
)

// ErrRateLimited is returned by a RateLimiter in drop mode when no token is
// available.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiter admits calls to the rest of the chain at a sustained rate with
// a burst allowance. In wait mode (the default) it blocks until a token is
// available or the context ends; in drop mode it fails immediately with
// ErrRateLimited.
//
// A Ref may pick the mode per use: "throttle:drop".
type RateLimiter[T any] struct {
	name    Name
	limiter *rate.Limiter
	metrics *metricz.Registry
	mode    string
	mu      sync.RWMutex
}

// NewRateLimiter creates a RateLimiter stage in wait mode.
func NewRateLimiter[T any](name Name, ratePerSecond float64, burst int) *RateLimiter[T] {
	metrics := metricz.New()
	metrics.Counter(RateLimiterAllowedTotal)
	metrics.Counter(RateLimiterDroppedTotal)

	return &RateLimiter[T]{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		metrics: metrics,
		mode:    ModeWait,
	}
}

// Invoke implements Invoker.
func (r *RateLimiter[T]) Invoke(ctx context.Context, payload T, next Next[T], params ...string) (T, error) {
	r.mu.RLock()
	limiter := r.limiter
	mode := r.mode
	r.mu.RUnlock()

	if len(params) > 0 && params[0] != "" {
		mode = params[0]
	}

	switch mode {
	case ModeWait:
		if err := limiter.Wait(ctx); err != nil {
			return payload, fmt.Errorf("stage %q: %w", r.name, err)
		}
	case ModeDrop:
		if !limiter.Allow() {
			r.metrics.Counter(RateLimiterDroppedTotal).Inc()
			return payload, fmt.Errorf("stage %q: %w", r.name, ErrRateLimited)
		}
	default:
		return payload, fmt.Errorf("stage %q: invalid rate limiter mode %q", r.name, mode)
	}

	r.metrics.Counter(RateLimiterAllowedTotal).Inc()
	return next(ctx, payload)
}

// Pipe returns r as an Object pipe.
func (r *RateLimiter[T]) Pipe() Pipe[T] {
	return Object[T](r.name, r)
}

// SetRate updates the sustained rate.
func (r *RateLimiter[T]) SetRate(ratePerSecond float64) *RateLimiter[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter.SetLimit(rate.Limit(ratePerSecond))
	return r
}

// SetBurst updates the burst size.
func (r *RateLimiter[T]) SetBurst(burst int) *RateLimiter[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter.SetBurst(burst)
	return r
}

// SetMode sets the default mode. Unknown modes are ignored.
func (r *RateLimiter[T]) SetMode(mode string) *RateLimiter[T] {
	if mode != ModeWait && mode != ModeDrop {
		return r
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
	return r
}

// Mode returns the default mode.
func (r *RateLimiter[T]) Mode() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Name returns the name of this stage.
func (r *RateLimiter[T]) Name() Name {
	return r.name
}

// Metrics returns the metrics registry for this limiter.
func (r *RateLimiter[T]) Metrics() *metricz.Registry {
	return r.metrics
}
