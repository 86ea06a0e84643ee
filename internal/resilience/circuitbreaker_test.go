package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{Name: "t", MaxFailures: 2, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1})

	boom := errors.New("boom")
	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestCircuitBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{Name: "t", MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMaxCalls: 1})

	boom := errors.New("boom")
	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	assert.Equal(t, StateOpen, cb.GetState())

	time.Sleep(5 * time.Millisecond)
	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{Name: "t", MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMaxCalls: 1})

	boom := errors.New("boom")
	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	time.Sleep(5 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreakerGroupCreatesPerName(t *testing.T) {
	g := NewGroup()
	a := g.Get("endpoint-a")
	b := g.Get("endpoint-b")
	again := g.Get("endpoint-a")

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Len(t, g.AllStats(), 2)
}

func TestCircuitBreakerResetForcesClosed(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{Name: "t", MaxFailures: 1, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}
