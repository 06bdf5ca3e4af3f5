package relayz

import (
	"context"
	"errors"
	"fmt"
)

// ErrRejected is returned by a Guard whose condition does not hold and whose
// reject function is nil.
var ErrRejected = errors.New("rejected")

// Guard creates a stage that only lets the payload through when condition
// holds. Otherwise the chain stops at the guard: reject decides what the
// guard returns in place of the rest of the chain. A nil reject fails with an
// error wrapping ErrRejected.
//
// Example - answer from cache without running the rest of the chain:
//
//	cached := relayz.Guard("cache",
//	    func(_ context.Context, r Request) bool { return !cache.Has(r.Key) },
//	    func(_ context.Context, r Request) (Request, error) {
//	        r.Response = cache.Get(r.Key)
//	        return r, nil
//	    },
//	)
func Guard[T any](name Name, condition func(context.Context, T) bool, reject func(context.Context, T) (T, error)) Pipe[T] {
	return Func[T](name, func(ctx context.Context, payload T, next Next[T]) (T, error) {
		if condition(ctx, payload) {
			return next(ctx, payload)
		}
		if reject == nil {
			return payload, fmt.Errorf("stage %q: %w", name, ErrRejected)
		}
		return reject(ctx, payload)
	})
}
