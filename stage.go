package relayz

import (
	"context"
)

// MethodHandle is the invocation method a pipeline uses unless Via says otherwise.
const MethodHandle = "handle"

// Next is the continuation handed to every stage. It represents the rest of
// the chain, including the destination. A stage that never calls it ends the
// chain at that point.
type Next[T any] func(ctx context.Context, payload T) (T, error)

// Destination is the terminal function of a pipeline. It receives only the
// payload; there is nothing after it to continue to.
type Destination[T any] func(ctx context.Context, payload T) (T, error)

// StageFunc is the inline form of a stage.
type StageFunc[T any] func(ctx context.Context, payload T, next Next[T]) (T, error)

// MethodFunc is a stage invocation that also accepts the parameters parsed
// from a string identifier such as "prefix:a,b".
type MethodFunc[T any] func(ctx context.Context, payload T, next Next[T], params ...string) (T, error)

// CarryFunc post-processes the value returned by each stage before it is
// handed back to the previous stage. The destination's own return value is
// never carried.
type CarryFunc[T any] func(ctx context.Context, carry T) T

// Handler is implemented by stage objects that expose the default "handle"
// invocation method.
type Handler[T any] interface {
	Handle(ctx context.Context, payload T, next Next[T], params ...string) (T, error)
}

// Invoker is implemented by stage objects that can be called directly,
// independent of the configured method.
type Invoker[T any] interface {
	Invoke(ctx context.Context, payload T, next Next[T], params ...string) (T, error)
}

// Dispatcher is implemented by stage objects offering several named
// invocation modes. The pipeline's Via method selects among them.
//
//	func (s *Auditor) Method(name string) (relayz.MethodFunc[Order], bool) {
//	    switch name {
//	    case "handle":
//	        return s.audit, true
//	    case "dry-run":
//	        return s.preview, true
//	    }
//	    return nil, false
//	}
type Dispatcher[T any] interface {
	Method(name string) (MethodFunc[T], bool)
}

// identityCarry is the default CarryFunc.
func identityCarry[T any](_ context.Context, carry T) T {
	return carry
}

// identityDestination returns the payload it is given.
func identityDestination[T any](_ context.Context, payload T) (T, error) {
	return payload, nil
}
