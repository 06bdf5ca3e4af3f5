package relayz

import (
	"context"
)

// Transform creates a stage that applies a pure transformation to the payload
// and continues the chain with the result. Use it when the operation always
// succeeds.
//
// If the transformation might fail, use Apply instead.
// If it should only happen sometimes, use Mutate.
//
// Example:
//
//	uppercase := relayz.Transform("uppercase", func(_ context.Context, s string) string {
//	    return strings.ToUpper(s)
//	})
func Transform[T any](name Name, fn func(context.Context, T) T) Pipe[T] {
	return Func[T](name, func(ctx context.Context, payload T, next Next[T]) (T, error) {
		return next(ctx, fn(ctx, payload))
	})
}
