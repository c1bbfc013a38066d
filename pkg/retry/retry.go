// Package retry provides a small retry-with-policy combinator used for
// every retried external call in the pipeline: processor steps, terrain
// acquisition, and ephemeris acquisition all go through Do with their
// own policy.
package retry

import (
	"context"
	"time"
)

// Policy describes how many times an operation is attempted and how long
// to wait between attempts.
type Policy struct {
	// Attempts is the total number of invocations, including the first.
	// Values below 1 are treated as 1.
	Attempts int

	// Delay returns the wait duration after the given failed attempt
	// (1-based). A nil Delay means no wait between attempts.
	Delay func(attempt int) time.Duration
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{
		Attempts: attempts,
		Delay:    func(int) time.Duration { return delay },
	}
}

// Linear returns a policy whose delay grows linearly with the attempt
// number: attempt*step. Used for the terrain download path, where the
// remote service recovers slowly.
func Linear(attempts int, step time.Duration) Policy {
	return Policy{
		Attempts: attempts,
		Delay:    func(attempt int) time.Duration { return time.Duration(attempt) * step },
	}
}

// Do invokes fn until it succeeds, the policy is exhausted, or ctx is
// cancelled. It returns nil on the first success, the last error on
// exhaustion, and ctx.Err() if cancelled while waiting.
//
// onRetry, when non-nil, is called before each wait with the 1-based
// number of the attempt that just failed and its error; callers use it
// for warning logs.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, lastErr)
		}

		var wait time.Duration
		if p.Delay != nil {
			wait = p.Delay(attempt)
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}
