package broker

import (
	"context"
	"time"
)

// DelayFunc returns the delay to wait after a failed attempt (1-based).
type DelayFunc func(attempt int) time.Duration

// LinearBackoff returns a DelayFunc yielding min(step × attempt, maxDelay).
//
// With step 5s and maxDelay 30s:
//
//	attempt 1: 5s
//	attempt 2: 10s
//	attempt 5: 25s
//	attempt 6: 30s
//	attempt 100: 30s
func LinearBackoff(step, maxDelay time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		if step <= 0 || attempt <= 0 {
			return 0
		}

		if time.Duration(attempt) > maxDelay/step {
			return maxDelay
		}

		return min(step*time.Duration(attempt), maxDelay)
	}
}

// Sleep waits for d or until ctx is done, whichever comes first. It returns
// ctx.Err() when interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
