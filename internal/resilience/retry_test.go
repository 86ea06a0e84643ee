package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultRetryConfig(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoReturnsErrorAfterExhaustingAttempts(t *testing.T) {
	calls := 0
	cfg := &RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoStopsImmediatelyWhenNotRetryable(t *testing.T) {
	calls := 0
	terminal := errors.New("terminal")
	cfg := &RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Retryable:    func(err error) bool { return err != terminal },
	}
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return terminal
	})
	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, DefaultRetryConfig(), func(context.Context) error {
		t.Fatal("fn should not be called on an already-cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffBaseDoublesPerAttemptCappedAtMax(t *testing.T) {
	base := 100 * time.Millisecond
	maxDelay := 500 * time.Millisecond

	assert.Equal(t, 200*time.Millisecond, BackoffBase(base, 1, maxDelay))
	assert.Equal(t, 400*time.Millisecond, BackoffBase(base, 2, maxDelay))
	assert.Equal(t, maxDelay, BackoffBase(base, 10, maxDelay))
}
