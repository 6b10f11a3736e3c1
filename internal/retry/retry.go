// Package retry provides a reusable bounded retry policy with exponential
// backoff. It is applied to every call that crosses the network.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts counts the first call, so 2 means one retry.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy allows a single retry after 200ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do returns it immediately without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the context ends,
// or the policy's attempts are exhausted. The last error is returned wrapped
// with the attempt count.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	backoff := p.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts {
			break
		}
		if !Sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = NextBackoff(backoff, p.MaxBackoff)
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// NextBackoff doubles current, capped at maxBackoff.
func NextBackoff(current, maxBackoff time.Duration) time.Duration {
	return sharedretry.NextBackoff(current, maxBackoff)
}

// Sleep waits for d or until ctx is done. It returns false if ctx ended first,
// including when d is zero and ctx is already done.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	return sharedretry.SleepWithContext(ctx, d)
}
