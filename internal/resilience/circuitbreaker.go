// Package resilience provides the circuit breaker and retry-with-backoff
// primitives used by the Pool Controller's acquire-with-retry and the
// Embedding/Text Search clients' remote calls.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State is one of a circuit breaker's three states.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker guards a single remote collaborator (one embedding
// endpoint, or the text search service) from being hammered while it is
// failing.
type CircuitBreaker struct {
	name             string
	maxFailures      uint32
	resetTimeout     time.Duration
	halfOpenMaxCalls uint32

	state           int32
	failures        uint32
	lastFailureTime int64
	halfOpenCalls   uint32

	mu              sync.RWMutex
	successCount    uint64
	failureCount    uint64
	lastStateChange time.Time
	onStateChange   func(name string, from, to State)
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Name             string
	MaxFailures      uint32
	ResetTimeout     time.Duration
	HalfOpenMaxCalls uint32
	OnStateChange    func(name string, from, to State)
}

// DefaultCircuitBreakerConfig returns a sensible default.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "default",
		MaxFailures:      5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// NewCircuitBreaker builds a CircuitBreaker from cfg.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{
		name:             cfg.Name,
		maxFailures:      cfg.MaxFailures,
		resetTimeout:     cfg.ResetTimeout,
		halfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		state:            int32(StateClosed),
		lastStateChange:  time.Now(),
		onStateChange:    cfg.OnStateChange,
	}
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.canExecute() {
		return fmt.Errorf("circuit breaker %q is open", cb.name)
	}
	err := fn(ctx)
	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
	return err
}

func (cb *CircuitBreaker) canExecute() bool {
	switch cb.GetState() {
	case StateClosed:
		return true
	case StateOpen:
		last := time.Unix(atomic.LoadInt64(&cb.lastFailureTime), 0)
		if time.Since(last) > cb.resetTimeout {
			cb.transitionTo(StateHalfOpen)
			// this call is the first half-open probe
			atomic.AddUint32(&cb.halfOpenCalls, 1)
			return true
		}
		return false
	case StateHalfOpen:
		if atomic.LoadUint32(&cb.halfOpenCalls) < cb.halfOpenMaxCalls {
			atomic.AddUint32(&cb.halfOpenCalls, 1)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	cb.successCount++
	cb.mu.Unlock()

	switch cb.GetState() {
	case StateHalfOpen:
		if atomic.LoadUint32(&cb.halfOpenCalls) >= cb.halfOpenMaxCalls {
			cb.transitionTo(StateClosed)
		}
	case StateClosed:
		atomic.StoreUint32(&cb.failures, 0)
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	cb.failureCount++
	cb.mu.Unlock()

	atomic.StoreInt64(&cb.lastFailureTime, time.Now().Unix())
	failures := atomic.AddUint32(&cb.failures, 1)

	switch cb.GetState() {
	case StateClosed:
		if failures >= cb.maxFailures {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := State(atomic.SwapInt32(&cb.state, int32(newState)))
	if oldState == newState {
		return
	}

	cb.mu.Lock()
	cb.lastStateChange = time.Now()
	cb.mu.Unlock()

	switch newState {
	case StateClosed, StateHalfOpen, StateOpen:
		atomic.StoreUint32(&cb.halfOpenCalls, 0)
	}
	if newState == StateClosed {
		atomic.StoreUint32(&cb.failures, 0)
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, oldState, newState)
	}
}

// GetState returns the breaker's current state.
func (cb *CircuitBreaker) GetState() State { return State(atomic.LoadInt32(&cb.state)) }

// Stats summarizes a breaker's counters.
type Stats struct {
	Name            string
	State           State
	Failures        uint32
	SuccessCount    uint64
	FailureCount    uint64
	LastStateChange time.Time
}

// GetStats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return Stats{
		Name:            cb.name,
		State:           cb.GetState(),
		Failures:        atomic.LoadUint32(&cb.failures),
		SuccessCount:    cb.successCount,
		FailureCount:    cb.failureCount,
		LastStateChange: cb.lastStateChange,
	}
}

// Reset forces the breaker back to closed.
func (cb *CircuitBreaker) Reset() { cb.transitionTo(StateClosed) }

// Group manages one breaker per named collaborator (e.g. one per embedding
// endpoint), matching the teacher's per-dependency isolation.
type Group struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewGroup creates an empty Group.
func NewGroup() *Group { return &Group{breakers: make(map[string]*CircuitBreaker)} }

// Get returns the named breaker, creating it with defaults if absent.
func (g *Group) Get(name string) *CircuitBreaker {
	g.mu.RLock()
	cb, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		return cb
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cb, ok := g.breakers[name]; ok {
		return cb
	}
	cfg := DefaultCircuitBreakerConfig()
	cfg.Name = name
	cb = NewCircuitBreaker(cfg)
	g.breakers[name] = cb
	return cb
}

// AllStats returns a snapshot of every breaker in the group.
func (g *Group) AllStats() []Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Stats, 0, len(g.breakers))
	for _, cb := range g.breakers {
		out = append(out, cb.GetStats())
	}
	return out
}
