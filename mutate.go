package relayz

import (
	"context"
)

// Mutate creates a stage that transforms the payload only when condition
// holds, then continues the chain either way.
//
// Example:
//
//	discountPremium := relayz.Mutate("premium_discount",
//	    func(_ context.Context, o Order) Order {
//	        o.Total *= 0.9
//	        return o
//	    },
//	    func(_ context.Context, o Order) bool {
//	        return o.CustomerTier == "premium" && o.Total > 100
//	    },
//	)
func Mutate[T any](name Name, transformer func(context.Context, T) T, condition func(context.Context, T) bool) Pipe[T] {
	return Func[T](name, func(ctx context.Context, payload T, next Next[T]) (T, error) {
		if condition(ctx, payload) {
			payload = transformer(ctx, payload)
		}
		return next(ctx, payload)
	})
}
