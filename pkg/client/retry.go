package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps both the exponential backoff and any Retry-After value.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// RetryableStatuses are the HTTP statuses treated as transient.
	RetryableStatuses []int
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatuses: []int{429, 500, 502, 503, 504},
	}
}

// IsRetryableStatus reports whether status is in the retryable set.
func (c RetryConfig) IsRetryableStatus(status int) bool {
	return slices.Contains(c.RetryableStatuses, status)
}

// Validate checks the retry configuration.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		return fmt.Errorf("retry backoff must not be negative")
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("retry multiplier must be >= 1 (got %v)", c.BackoffMultiplier)
	}
	return nil
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// It respects context cancellation and adds jitter to prevent thundering herd.
// Only errors that shouldRetry accepts are retried; others return immediately.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, fn func(attempt int) error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return lastErr
		}

		errorClass := string(ClassOf(err))

		// If this was the last attempt, don't wait
		if attempt >= config.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(errorClass).Inc()

		// Add jitter (±20% randomness)
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		var reqErr *RequestError
		if errors.As(err, &reqErr) && reqErr.RetryAfter > wait {
			wait = min(reqErr.RetryAfter, config.MaxBackoff)
		}
		retryBackoffSeconds.WithLabelValues(errorClass).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", errorClass).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	errorClass := string(ClassOf(lastErr))
	retryExhaustedTotal.WithLabelValues(errorClass).Inc()
	logger.Warn().
		Str("error_class", errorClass).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
