// Package retry centralizes the bounded-attempt backoff policy that was
// scattered inline around media uploads in earlier iterations.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds an operation to MaxAttempts tries with exponentially
// increasing waits between them.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultPolicy matches the upload behavior this engine ships with: three
// attempts, exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2,
		MaxInterval:     5 * time.Second,
	}
}

// Permanent marks an error as non-retryable; Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is
// cancelled. onRetry, when non-nil, observes each failed attempt before the
// wait.
func (p Policy) Do(ctx context.Context, fn func() error, onRetry func(attempt int, err error)) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.Multiplier = p.Multiplier
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0

	attempts := uint64(1)
	if p.MaxAttempts > 1 {
		attempts = uint64(p.MaxAttempts)
	}

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return fn()
	}, backoff.WithContext(backoff.WithMaxRetries(bo, attempts-1), ctx), func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err)
		}
	})
}
