package relayz

import (
	"context"
)

// HandleError creates a stage that passes errors from the rest of the chain
// to handler. The handler sees the failing result and error and decides what
// the stage returns: it can recover by returning a nil error, replace the
// error, or return it unchanged. Successful results pass through untouched.
//
//	fallbackPrice := relayz.HandleError("fallback-price", func(_ context.Context, q Quote, err error) (Quote, error) {
//	    if errors.Is(err, ErrPricingDown) {
//	        q.Price = q.ListPrice
//	        return q, nil
//	    }
//	    return q, err
//	})
func HandleError[T any](name Name, handler func(ctx context.Context, result T, err error) (T, error)) Pipe[T] {
	return Func[T](name, func(ctx context.Context, payload T, next Next[T]) (T, error) {
		result, err := next(ctx, payload)
		if err == nil {
			return result, nil
		}
		return handler(ctx, result, err)
	})
}
