package relayz

import (
	"context"
)

// Enrich creates a stage that attempts to enhance the payload. If the
// enrichment fails the chain continues with the original payload, so it
// suits data that is nice to have but not required. Errors returned by the
// rest of the chain are not affected.
//
// Example:
//
//	addCustomerName := relayz.Enrich("add_customer_name", func(ctx context.Context, o Order) (Order, error) {
//	    customer, err := customers.Get(ctx, o.CustomerID)
//	    if err != nil {
//	        return o, err
//	    }
//	    o.CustomerName = customer.Name
//	    return o, nil
//	})
func Enrich[T any](name Name, fn func(context.Context, T) (T, error)) Pipe[T] {
	return Func[T](name, func(ctx context.Context, payload T, next Next[T]) (T, error) {
		if enriched, err := fn(ctx, payload); err == nil {
			payload = enriched
		}
		return next(ctx, payload)
	})
}
