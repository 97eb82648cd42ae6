package brief

import (
	"context"
	"time"
)

// retryDo runs fn up to `attempts` times. The first attempt is
// immediate; retry k waits base*2^(k-1) first. After exhausting all
// attempts the last error is returned so the caller can decide whether
// the failure is fatal for its data source.
func retryDo[T any](ctx context.Context, attempts int, base time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero T
		err  error
	)
	if attempts < 1 {
		attempts = 1
	}
	for k := 0; k < attempts; k++ {
		if k > 0 {
			delay := base << (k - 1)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
		var v T
		if v, err = fn(ctx); err == nil {
			return v, nil
		}
	}
	return zero, err
}
