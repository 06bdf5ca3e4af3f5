package relayz

import (
	"context"
)

// Tap creates a stage that continues the chain and then observes what the
// rest of the chain returned, including its error. The result passes back
// unchanged.
func Tap[T any](name Name, fn func(ctx context.Context, result T, err error)) Pipe[T] {
	return Func[T](name, func(ctx context.Context, payload T, next Next[T]) (T, error) {
		result, err := next(ctx, payload)
		fn(ctx, result, err)
		return result, err
	})
}

// Around creates a stage from a middleware that wraps the rest of the chain.
//
//	timed := relayz.Around("timed", func(next relayz.Next[Job]) relayz.Next[Job] {
//	    return func(ctx context.Context, j Job) (Job, error) {
//	        start := time.Now()
//	        defer func() { observe(time.Since(start)) }()
//	        return next(ctx, j)
//	    }
//	})
func Around[T any](name Name, middleware func(Next[T]) Next[T]) Pipe[T] {
	return Func[T](name, func(ctx context.Context, payload T, next Next[T]) (T, error) {
		return middleware(next)(ctx, payload)
	})
}
