// Package poolctl implements the Pool Controller: the sole owner of the
// underlying session pool. It serializes resize decisions behind its own
// lock, serves acquire from the idle stack when an idle session exists, and
// otherwise queues callers FIFO. Every acquire path, the idle fast path
// included, takes the same pool mutex; no path is lock-free.
package poolctl

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/propsearch/poolcore/internal/apierr"
	"github.com/propsearch/poolcore/internal/config"
	"github.com/propsearch/poolcore/internal/logging"
	"github.com/propsearch/poolcore/internal/metrics"
	"github.com/propsearch/poolcore/internal/resilience"
)

// State is one of the Pool Controller's lifecycle states.
type State string

const (
	StateInitializing State = "initializing"
	StateReady         State = "ready"
	StateDegraded      State = "degraded"
	StateClosing       State = "closing"
	StateClosed        State = "closed"
)

// Status is the O(1) snapshot returned by PoolStatus.
type Status struct {
	Total      int
	Idle       int
	Waiting    int
	CurrentMax int
}

// Session is a leased physical connection. Callers must call Release
// exactly once; Release is idempotent.
type Session struct {
	conn *sql.Conn
	pool *Pool

	mu       sync.Mutex
	released bool
}

// Conn exposes the underlying *sql.Conn for query execution.
func (s *Session) Conn() *sql.Conn { return s.conn }

// Release returns the session to the pool. Safe to call more than once and
// safe to call from a deferred panic-recovery path.
func (s *Session) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.mu.Unlock()
	s.pool.release(s)
}

type waiter struct {
	ch     chan acquireResult
	cancel <-chan struct{}
}

type acquireResult struct {
	session *Session
	err     error
}

// Pool is the Pool Controller.
type Pool struct {
	db    *sql.DB
	store *config.Store
	agg   *metrics.Aggregator
	log   *logging.Logger

	mu         sync.Mutex
	state      State
	total      int
	idle       []*sql.Conn
	currentMax int
	waiters    []*waiter
	lastResize time.Time

	consecutiveProbeFailures int
	lastHealthyAt            time.Time

	shutdownOnce sync.Once
	closed       chan struct{}
}

// Open builds a Pool Controller against the database reachable at
// cfg.Pool.ConnectionEndpoint. It does not pre-open any sessions; total
// starts at 0 and grows lazily on demand, matching the teacher's
// NewConnectionPool sizing but with sessions opened on first acquire
// instead of held open by database/sql's own pool from the start.
func Open(store *config.Store, agg *metrics.Aggregator, log *logging.Logger) (*Pool, error) {
	cfg := store.Load()

	db, err := sql.Open("postgres", cfg.ConnectionEndpoint)
	if err != nil {
		return nil, fmt.Errorf("poolctl: open: %w", err)
	}
	// The underlying sql.DB is allowed to manage physical connections up to
	// the configured max_sessions, the highest value current_max can take;
	// the Pool Controller's own bookkeeping (total/idle/
	// waiting) is what the spec's operations observe.
	db.SetMaxOpenConns(cfg.Autoscaling.MaxSessions)

	p := &Pool{
		db:         db,
		store:      store,
		agg:        agg,
		log:        log,
		state:      StateInitializing,
		currentMax: cfg.Autoscaling.MaxSessions,
		closed:     make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("poolctl: ping: %w", err)
	}

	p.transitionTo(StateReady)
	return p, nil
}

// OpenWithDB builds a Pool Controller around an already-open *sql.DB,
// bypassing sql.Open and the initial ping. Used by tests against
// github.com/DATA-DOG/go-sqlmock, mirroring the teacher's
// NewPostgresWithDB testing hook.
func OpenWithDB(db *sql.DB, store *config.Store, agg *metrics.Aggregator, log *logging.Logger) *Pool {
	cfg := store.Load()
	p := &Pool{
		db:         db,
		store:      store,
		agg:        agg,
		log:        log,
		state:      StateReady,
		currentMax: cfg.Autoscaling.MaxSessions,
		closed:     make(chan struct{}),
	}
	return p
}

func (p *Pool) transitionTo(next State) {
	p.mu.Lock()
	prev := p.state
	p.state = next
	p.mu.Unlock()
	if prev != next && p.log != nil {
		p.log.HealthTransition("pool", string(prev), string(next))
	}
}

// State returns the Pool Controller's current lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PoolStatus returns an O(1) snapshot of the pool's counters.
func (p *Pool) PoolStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Total:      p.total,
		Idle:       len(p.idle),
		Waiting:    len(p.waiters),
		CurrentMax: p.currentMax,
	}
}

// Acquire blocks until an idle session exists, a new one is opened, or
// deadline elapses. FIFO among waiters on the slow path.
func (p *Pool) Acquire(ctx context.Context, deadline time.Time) (*Session, error) {
	p.mu.Lock()

	if p.state == StateClosing || p.state == StateClosed {
		p.mu.Unlock()
		return nil, apierr.New(apierr.ShuttingDown, "pool is shutting down")
	}

	// Fast path: an idle session is available.
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		p.publishDelta()
		return &Session{conn: conn, pool: p}, nil
	}

	// Grow path: under current_max, open a new session. Only taken when no
	// waiter is already queued — otherwise a resize-driven capacity increase
	// would let a newly arriving caller cut in front of callers already
	// waiting FIFO, who would then see nothing released on their behalf.
	if p.total < p.currentMax && len(p.waiters) == 0 {
		p.total++
		p.mu.Unlock()
		p.publishDelta()

		connCtx, cancel := context.WithDeadline(ctx, deadline)
		defer cancel()
		conn, err := p.db.Conn(connCtx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			p.publishDelta()
			p.agg.RecordError(string(apierr.ConnectFailed))
			if connCtx.Err() != nil {
				return nil, apierr.New(apierr.Timeout, "acquire deadline exceeded")
			}
			return nil, apierr.New(apierr.ConnectFailed, "failed to open session").WithCause(err)
		}
		return &Session{conn: conn, pool: p}, nil
	}

	// Slow path: queue FIFO behind the existing waiters.
	w := &waiter{ch: make(chan acquireResult, 1), cancel: ctx.Done()}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()
	p.publishDelta()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case res := <-w.ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.session, nil
	case <-timer.C:
		p.removeWaiter(w)
		p.publishDelta()
		return nil, apierr.New(apierr.Timeout, "acquire deadline exceeded")
	case <-ctx.Done():
		p.removeWaiter(w)
		p.publishDelta()
		return nil, apierr.New(apierr.Cancelled, "acquire cancelled")
	}
}

// publishDelta snapshots total/idle/waiting/current_max under the lock and
// feeds it to the Metrics Aggregator. Called on every Acquire/release
// transition, not just Resize, so utilization tracks ordinary request
// traffic between resizes instead of going stale until the next tick.
func (p *Pool) publishDelta() {
	p.mu.Lock()
	d := metrics.PoolDelta{
		Total:      p.total,
		Idle:       len(p.idle),
		Waiting:    len(p.waiters),
		CurrentMax: p.currentMax,
	}
	p.mu.Unlock()
	p.agg.RecordPoolDelta(d)
}

func (p *Pool) removeWaiter(target *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// AcquireWithRetry wraps Acquire with exponential backoff capped at 5s.
// Only transient ConnectFailed and Timeout are retried; ShuttingDown is
// terminal.
func (p *Pool) AcquireWithRetry(ctx context.Context, deadline time.Time, attempts int, backoffBase time.Duration) (*Session, error) {
	var lastErr error
	for k := 0; k < attempts; k++ {
		sess, err := p.Acquire(ctx, deadline)
		if err == nil {
			return sess, nil
		}
		lastErr = err

		kind := apierr.KindOf(err)
		if kind != apierr.ConnectFailed && kind != apierr.Timeout {
			return nil, err
		}
		if k == attempts-1 {
			break
		}

		wait := resilience.BackoffBase(backoffBase, k+1, 5*time.Second)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apierr.New(apierr.Cancelled, "acquire_with_retry cancelled")
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// release returns a session to the pool, handing it directly to the oldest
// waiter if one exists (FIFO), otherwise pushing it onto the idle stack.
func (p *Pool) release(s *Session) {
	p.mu.Lock()

	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		w.ch <- acquireResult{session: &Session{conn: s.conn, pool: p}}
		p.publishDelta()
		return
	}

	p.idle = append(p.idle, s.conn)
	p.mu.Unlock()
	p.publishDelta()
}

// Resize clamps newMax to [config.min, config.max] and applies it. Shrinks
// close excess idle sessions lazily; in-use sessions are never force-closed.
// Never blocks acquire callers.
func (p *Pool) Resize(newMax int) int {
	cfg := p.store.Load()
	if newMax < cfg.Autoscaling.MinSessions {
		newMax = cfg.Autoscaling.MinSessions
	}
	if newMax > cfg.Autoscaling.MaxSessions {
		newMax = cfg.Autoscaling.MaxSessions
	}

	p.mu.Lock()
	p.currentMax = newMax
	p.lastResize = time.Now()

	for p.total > p.currentMax && len(p.idle) > 0 {
		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.total--
		go conn.Close()
	}
	applied := p.currentMax
	total := p.total
	idle := len(p.idle)
	waiting := len(p.waiters)
	p.mu.Unlock()

	p.agg.RecordPoolDelta(metrics.PoolDelta{
		Total:      total,
		Idle:       idle,
		Waiting:    waiting,
		CurrentMax: applied,
	})
	return applied
}

// HealthProbe executes a trivial round-trip with its own 2s deadline and
// updates the probe-failure streak and lastHealthyAt. Three consecutive
// failures flip the controller to degraded; one success flips it back.
func (p *Pool) HealthProbe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := p.db.PingContext(ctx)

	p.mu.Lock()
	if err == nil {
		p.consecutiveProbeFailures = 0
		p.lastHealthyAt = time.Now()
		wasDegraded := p.state == StateDegraded
		p.mu.Unlock()
		if wasDegraded {
			p.transitionTo(StateReady)
		}
		return true
	}

	p.consecutiveProbeFailures++
	flip := p.consecutiveProbeFailures >= 3 && p.state == StateReady
	p.mu.Unlock()

	if flip {
		p.transitionTo(StateDegraded)
	}
	p.agg.RecordError(string(apierr.ConnectFailed))
	return false
}

// Shutdown stops accepting new acquires, waits up to grace for in-flight
// holders to return their sessions, then closes everything.
func (p *Pool) Shutdown(ctx context.Context, grace time.Duration) error {
	p.mu.Lock()
	p.state = StateClosing
	for _, w := range p.waiters {
		w.ch <- acquireResult{err: apierr.New(apierr.ShuttingDown, "pool is shutting down")}
	}
	p.waiters = nil
	p.mu.Unlock()

	deadline := time.Now().Add(grace)
	for {
		p.mu.Lock()
		leased := p.total - len(p.idle)
		p.mu.Unlock()
		if leased <= 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}

	p.mu.Lock()
	for _, conn := range p.idle {
		conn.Close()
	}
	p.idle = nil
	p.state = StateClosed
	p.mu.Unlock()

	close(p.closed)
	return p.db.Close()
}
