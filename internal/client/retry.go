package client

import (
	"context"
	"math"
	"time"

	"github.com/mosaicolabs/mosaico/internal/errors"
)

// RetryPolicy bounds how client calls retry transient faults. Only
// errors the taxonomy marks retryable (transport faults and storage
// upload/download failures) are retried; validation, immutability, and
// not-found errors surface immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultRetryPolicy returns the default client retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseBackoff: 100 * time.Millisecond}
}

// Do runs the operation under the policy. When attempts run out, the
// last error is wrapped as a retries-exhausted transport error, which is
// itself terminal.
func (p RetryPolicy) Do(ctx context.Context, operation func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !errors.IsRetryable(lastErr) {
			return lastErr
		}

		if attempt < attempts-1 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * p.BaseBackoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return errors.NewTransportError(errors.CodeRetriesExhausted,
		"retries exhausted", lastErr)
}
