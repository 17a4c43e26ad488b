package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig describes an exponential backoff schedule. The delay before
// attempt n (n ≥ 1) is Initial·Base^(n-1), capped at Max.
type RetryConfig struct {
	// MaxAttempts is the total number of tries including the first.
	// Default: 3.
	MaxAttempts int

	// Initial is the delay before the first retry. Default: 1s.
	Initial time.Duration

	// Base is the backoff multiplier. Default: 2.
	Base float64

	// Max caps a single delay. Default: 10s.
	Max time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Initial <= 0 {
		c.Initial = time.Second
	}
	if c.Base <= 1 {
		c.Base = 2
	}
	if c.Max <= 0 {
		c.Max = 10 * time.Second
	}
	return c
}

// Delay returns the backoff delay before retry number n (1-based).
func (c RetryConfig) Delay(n int) time.Duration {
	c = c.withDefaults()
	d := c.Initial
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * c.Base)
		if d >= c.Max {
			return c.Max
		}
	}
	if d > c.Max {
		return c.Max
	}
	return d
}

// Retry runs fn up to cfg.MaxAttempts times, sleeping the scheduled backoff
// between attempts. retryable decides whether a given failure is worth
// another attempt; a nil retryable retries everything. Context cancellation
// aborts the wait immediately.
func Retry(ctx context.Context, cfg RetryConfig, retryable func(error) bool, fn func() error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (after %d attempts: %v)", err, attempt-1, lastErr)
			}
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Delay(attempt)
		slog.Debug("retrying after failure",
			"attempt", attempt,
			"delay", delay,
			"error", lastErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w (after %d attempts: %v)", ctx.Err(), attempt, lastErr)
		}
	}
	return lastErr
}

// RetryWithResult is the value-returning form of [Retry]. It exists as a
// package-level function because Go does not support method-level type
// parameters.
func RetryWithResult[R any](ctx context.Context, cfg RetryConfig, retryable func(error) bool, fn func() (R, error)) (R, error) {
	var result R
	err := Retry(ctx, cfg, retryable, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}
