package relayz

import (
	"context"
)

// Effect creates a stage that performs a side effect and then continues the
// chain with the payload unchanged. A returned error stops the chain.
//
// Use Effect for logging, auditing, notifications and validation that does
// not need to change the payload.
//
// Example:
//
//	auditLog := relayz.Effect("audit_payment", func(ctx context.Context, p Payment) error {
//	    return auditLogger.Log(ctx, "payment_received", p.ID)
//	})
func Effect[T any](name Name, fn func(context.Context, T) error) Pipe[T] {
	return Func[T](name, func(ctx context.Context, payload T, next Next[T]) (T, error) {
		if err := fn(ctx, payload); err != nil {
			return payload, err
		}
		return next(ctx, payload)
	})
}
