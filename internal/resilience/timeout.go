package resilience

import (
	"context"
	"time"
)

// WithTimeout runs fn bounded by d. On expiry it returns a *TimeoutError and
// stops waiting; fn's context is cancelled but fn may still finish in the
// background. Each call owns its result channel, so a late completion is
// dropped and can never be observed by a later attempt.
func WithTimeout[T any](ctx context.Context, operation string, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	type result struct {
		val T
		err error
	}

	var zero T
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so an abandoned call never blocks its goroutine.
	done := make(chan result, 1)
	go func() {
		v, err := fn(attemptCtx)
		done <- result{val: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		return zero, &TimeoutError{Operation: operation, After: d}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
