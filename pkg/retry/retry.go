package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaidashi/storefront-api/pkg/logger"
)

// RetryableFunc is one attempt of an operation
type RetryableFunc func() error

// RetryConfig holds the configuration for retrying operations
type RetryConfig struct {
	MaxAttempts     int
	BackoffStrategy BackoffStrategy
	Logger          logger.Logger
	// RetryableErrors narrows which errors are retried. Empty means all.
	RetryableErrors []error
}

// Retry runs fn until it succeeds, returns a non-retryable error, runs out
// of attempts, or ctx is done.
func Retry(ctx context.Context, fn RetryableFunc, cfg *RetryConfig) error {
	var lastErr error

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled by context: %w", err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		if !isRetryable(err, cfg.RetryableErrors) {
			cfg.Logger.Warn("Non-retryable error encountered, giving up",
				"error", err,
				"attempt", attempt)
			return err
		}

		backoff := cfg.BackoffStrategy.NextBackoff(attempt)

		cfg.Logger.Info("Retrying after error",
			"error", err,
			"attempt", attempt,
			"maxAttempts", attempts,
			"backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled by context during backoff: %w", ctx.Err())
		}
	}

	return fmt.Errorf("all %d retry attempts failed, last error: %w", attempts, lastErr)
}

func isRetryable(err error, retryableErrors []error) bool {
	if len(retryableErrors) == 0 {
		return true
	}

	for _, retryableErr := range retryableErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}

	return false
}

// RetryWithDiscard retries fn and hands the final error to discardFn.
func RetryWithDiscard(ctx context.Context, fn RetryableFunc, cfg *RetryConfig, discardFn func(error) error) error {
	err := Retry(ctx, fn, cfg)
	if err == nil {
		return nil
	}

	cfg.Logger.Error("All retries failed, applying discard policy",
		"error", err,
		"maxAttempts", cfg.MaxAttempts)

	return discardFn(err)
}
