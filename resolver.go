package relayz

import (
	"context"
	"fmt"
)

// Locator looks up stage objects by name for Ref pipes. Registry is the
// implementation shipped with relayz; any dependency-injection container can
// be adapted with LocatorFunc.
type Locator interface {
	Lookup(ctx context.Context, name string) (any, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context, name string) (any, error)

// Lookup calls f(ctx, name).
func (f LocatorFunc) Lookup(ctx context.Context, name string) (any, error) {
	return f(ctx, name)
}

// invocation is a stage resolved to the uniform (payload, next) contract.
type invocation[T any] func(ctx context.Context, payload T, next Next[T]) (T, error)

// resolve turns a Pipe into an invocation. It runs when the chain reaches the
// stage, never while the chain is being composed.
func resolve[T any](ctx context.Context, locator Locator, pipe Pipe[T], method string) (invocation[T], error) {
	switch pipe.kind {
	case kindFunc:
		if pipe.fn == nil {
			return nil, ErrNotInvokable
		}
		return invocation[T](pipe.fn), nil

	case kindObject:
		// Directly callable objects win over the configured method.
		if call, ok := callableOf[T](pipe.object); ok {
			return bind(call), nil
		}
		if call, ok := methodOf[T](pipe.object, method); ok {
			return bind(call), nil
		}
		return nil, ErrNotInvokable

	case kindRef:
		if pipe.name == "" {
			return nil, ErrEmptyIdentifier
		}
		if locator == nil {
			return nil, ErrNoLocator
		}
		object, err := locator.Lookup(ctx, pipe.name)
		if err != nil {
			return nil, fmt.Errorf("lookup %q: %w", pipe.name, err)
		}
		if object == nil {
			return nil, fmt.Errorf("lookup %q: %w", pipe.name, ErrStageNotFound)
		}
		if call, ok := methodOf[T](object, method); ok {
			return bind(call, pipe.params...), nil
		}
		if call, ok := callableOf[T](object); ok {
			return bind(call, pipe.params...), nil
		}
		return nil, ErrNotInvokable

	default:
		return nil, ErrInvalidPipe
	}
}

// bind fixes the extra parameters of a MethodFunc.
func bind[T any](call MethodFunc[T], params ...string) invocation[T] {
	return func(ctx context.Context, payload T, next Next[T]) (T, error) {
		return call(ctx, payload, next, params...)
	}
}

// methodOf returns the named invocation method of a stage object.
func methodOf[T any](object any, method string) (MethodFunc[T], bool) {
	if d, ok := object.(Dispatcher[T]); ok {
		if call, found := d.Method(method); found && call != nil {
			return call, true
		}
	}
	if method == MethodHandle {
		if h, ok := object.(Handler[T]); ok {
			return h.Handle, true
		}
	}
	return nil, false
}

// callableOf returns the direct-call form of a stage object.
func callableOf[T any](object any) (MethodFunc[T], bool) {
	switch s := object.(type) {
	case Invoker[T]:
		return s.Invoke, true
	case MethodFunc[T]:
		return s, s != nil
	case func(context.Context, T, Next[T], ...string) (T, error):
		return s, s != nil
	case StageFunc[T]:
		return dropParams[T](s), s != nil
	case func(context.Context, T, Next[T]) (T, error):
		return dropParams[T](s), s != nil
	}
	return nil, false
}

func dropParams[T any](fn StageFunc[T]) MethodFunc[T] {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, payload T, next Next[T], _ ...string) (T, error) {
		return fn(ctx, payload, next)
	}
}
