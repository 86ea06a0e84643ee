package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig controls exponential backoff with jitter; the teacher's
// linear/Fibonacci variants are not carried over. Nothing in this module
// calls Do: the Pool Controller's acquire_with_retry uses BackoffBase, and
// the embedding client runs its own linear 1s*k per-endpoint retry loop.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	JitterFraction float64
	// Retryable reports whether err should be retried. Nil means retry
	// everything.
	Retryable func(error) bool
}

// DefaultRetryConfig returns a sensible default.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       5 * time.Second,
		BackoffFactor:  2.0,
		JitterFraction: 0.1,
	}
}

// Func is a function that can be retried.
type Func func(ctx context.Context) error

// Do executes fn under cfg's backoff policy, stopping early if ctx is
// cancelled or cfg.Retryable rejects the error.
func Do(ctx context.Context, cfg *RetryConfig, fn Func) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		delay = nextDelay(delay, cfg)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

func nextDelay(current time.Duration, cfg *RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.BackoffFactor)
	if next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	if cfg.JitterFraction > 0 {
		next += time.Duration(rand.Float64() * cfg.JitterFraction * float64(next))
	}
	return next
}

// BackoffBase returns the delay for retry attempt k (1-indexed) under a
// pure `backoff_base * 2^k` schedule capped at cap, matching the Pool
// Controller's acquire_with_retry formula exactly.
func BackoffBase(base time.Duration, k int, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < k; i++ {
		d *= 2
	}
	if d > cap {
		d = cap
	}
	return d
}
