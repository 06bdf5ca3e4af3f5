package relayz

import (
	"context"
)

// Apply creates a stage from a transformation that may fail. On success the
// chain continues with the transformed payload; on error the chain stops and
// the error is returned unchanged to the previous stage.
//
// Apply is the workhorse stage - use it for validation, parsing, lookups and
// business rules that can reject a payload.
//
// Example:
//
//	parseAmount := relayz.Apply("parse_amount", func(_ context.Context, o Order) (Order, error) {
//	    amount, err := decimal.NewFromString(o.RawAmount)
//	    if err != nil {
//	        return o, fmt.Errorf("invalid amount %q: %w", o.RawAmount, err)
//	    }
//	    o.Amount = amount
//	    return o, nil
//	})
func Apply[T any](name Name, fn func(context.Context, T) (T, error)) Pipe[T] {
	return Func[T](name, func(ctx context.Context, payload T, next Next[T]) (T, error) {
		result, err := fn(ctx, payload)
		if err != nil {
			return payload, err
		}
		return next(ctx, result)
	})
}
