package utils

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryFunc is a function that can be retried. It should return an error
// if the operation failed and nil on success.
type RetryFunc func() error

// RetryConfig holds configuration for retry behavior with exponential backoff.
type RetryConfig struct {
	MaxAttempts  int           // Maximum number of attempts (including first try)
	InitialDelay time.Duration // Delay before first retry
	MaxDelay     time.Duration // Cap on the delay between retries
	Multiplier   float64       // Exponential backoff multiplier
	Jitter       bool          // Add random jitter to delays
}

// DefaultRetryConfig returns a retry configuration with sensible defaults:
// 3 attempts, 100ms initial delay doubling up to 5s, with jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// DatabaseRetryConfig returns a retry configuration tuned for database
// connections, which commonly fail transiently while Postgres is still
// starting: 5 attempts with short delays.
func DatabaseRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry executes a function with retry logic and exponential backoff.
// The function will be retried until it succeeds, max attempts is reached,
// or the context is cancelled.
//
// The delay between retries follows exponential backoff:
//
//	delay = initialDelay * multiplier^(attempt-1)
//
// Optional jitter adds random variance (±25%) to prevent thundering herd.
//
// Example:
//
//	err := utils.Retry(ctx, utils.DatabaseRetryConfig(), func() error {
//	    return db.Ping()
//	})
func Retry(ctx context.Context, config RetryConfig, fn RetryFunc) error {
	_, err := RetryWithResult(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes a function with retry logic and returns a result.
// Generic version of Retry for operations that produce a value.
//
// Example:
//
//	sess, err := utils.RetryWithResult(ctx, config, func() (*Session, error) {
//	    return fetchSession()
//	})
func RetryWithResult[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		res, err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Int("max_attempts", config.MaxAttempts).
					Msg("Operation succeeded after retry")
			}
			return res, nil
		}

		lastErr = err

		if attempt >= config.MaxAttempts {
			log.Warn().
				Err(err).
				Int("attempts", attempt).
				Msg("Max retry attempts reached")
			break
		}

		delay := calculateDelay(attempt, config)

		log.Debug().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", config.MaxAttempts).
			Dur("delay", delay).
			Msg("Operation failed, retrying after delay")

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("max retries exceeded (%d attempts): %w", config.MaxAttempts, lastErr)
}

// calculateDelay computes the backoff before the next retry:
// initialDelay * multiplier^(attempt-1), capped at MaxDelay, with
// optional ±25% jitter.
func calculateDelay(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitterRange := delay * 0.25
		delay += (rand.Float64() * 2 * jitterRange) - jitterRange
	}

	return time.Duration(delay)
}
