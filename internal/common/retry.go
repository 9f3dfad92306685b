package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrMaxRetries indicates that all retry attempts have been exhausted.
var ErrMaxRetries = errors.New("max retries exceeded")

// Default retry settings used against the recipe manager.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 10 * time.Second
)

// RetryPolicy controls how transient failures are retried.
// MaxRetries counts retries after the first attempt.
type RetryPolicy struct {
	// OnRetry is called before each sleep with the zero-based retry number.
	OnRetry    func(attempt int, delay time.Duration, err error)
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultRetryPolicy returns three retries with 1s base delay capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// Backoff returns min(BaseDelay * 2^attempt, MaxDelay). A non-positive MaxDelay means no cap.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
		// overflow guard for uncapped policies
		if delay <= 0 {
			return p.BaseDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// WithRetry executes operation, retrying transient failures according to the policy.
// Permanent and unclassified failures are returned immediately.
func WithRetry(ctx context.Context, policy RetryPolicy, name string, operation func(ctx context.Context) error) error {
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}

		apiErr := ClassifyError(err)
		if !apiErr.Retryable() {
			if apiErr.Unclassified {
				slog.Error("Unclassified error, not retrying",
					"operation", name,
					"error", err)
			} else {
				slog.Debug("Permanent error, not retrying",
					"operation", name,
					"category", apiErr.Category,
					"error", err)
			}
			return err
		}

		if attempt >= maxRetries {
			slog.Error("Retries exhausted",
				"operation", name,
				"max_retries", maxRetries,
				"error", err)
			if maxRetries == 0 {
				return err
			}
			return fmt.Errorf("%w after %d retries: %w", ErrMaxRetries, maxRetries, err)
		}

		delay := policy.Backoff(attempt)
		slog.Warn("Operation failed, retrying",
			"operation", name,
			"retry", attempt+1,
			"max_retries", maxRetries,
			"delay", delay,
			"error", err)

		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Retry is WithRetry for operations that produce a value.
func Retry[T any](ctx context.Context, policy RetryPolicy, name string, operation func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := WithRetry(ctx, policy, name, func(ctx context.Context) error {
		v, err := operation(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
