// Package autoscaler implements the periodic control loop that reads
// aggregated metrics and time-of-day, and issues resize decisions to the
// Pool Controller under cooldown.
package autoscaler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/propsearch/poolcore/internal/config"
	"github.com/propsearch/poolcore/internal/logging"
	"github.com/propsearch/poolcore/internal/metrics"
	"github.com/propsearch/poolcore/internal/notify"
)

// State is one of the Autoscaler's lifecycle states.
type State string

const (
	StateIdle        State = "idle"
	StateEvaluating  State = "evaluating"
	StateApplying    State = "applying"
	StateCoolingDown State = "cooling_down"
)

const (
	ReasonHighUtilization = "high_utilization"
	ReasonLowUtilization  = "low_utilization"
	ReasonPeakHour        = "peak_hour"
	ReasonOffPeakHour     = "off_peak_hour"
	ReasonManual          = "manual"
	ReasonResizeFailed    = "resize_failed"
)

// PoolStatus mirrors poolctl.Status so this package does not need to import
// poolctl (the dependency runs the other way: the composition root adapts
// poolctl.Status to this shape).
type PoolStatus struct {
	Total      int
	Idle       int
	Waiting    int
	CurrentMax int
}

// Pool is the narrow interface the Autoscaler needs from the Pool
// Controller.
type Pool interface {
	Resize(newMax int) int
	PoolStatus() PoolStatus
}

// candidate is an internal resize decision before cooldown/clamp checks.
type candidate struct {
	action string
	reason string
	target int
}

// Event mirrors notify.ScalingEvent plus the snapshot that produced it, for
// the bounded in-memory history exposed by the observability surface.
type Event struct {
	notify.ScalingEvent
	Snapshot metrics.Snapshot
}

const maxHistory = 256

// Autoscaler runs the single-threaded tick loop described in §4.4.
type Autoscaler struct {
	pool     Pool
	agg      *metrics.Aggregator
	store    *config.Store
	listener notify.Listener
	log      *logging.Logger

	tick time.Duration

	mu         sync.Mutex
	state      State
	lastResize time.Time
	history    []Event
}

// New builds an Autoscaler. tick defaults to 5s when zero.
func New(pool Pool, agg *metrics.Aggregator, store *config.Store, listener notify.Listener, log *logging.Logger, tick time.Duration) *Autoscaler {
	if tick <= 0 {
		tick = 5 * time.Second
	}
	if listener == nil {
		listener = notify.Multi{}
	}
	return &Autoscaler{
		pool:     pool,
		agg:      agg,
		store:    store,
		listener: listener,
		log:      log,
		tick:     tick,
		state:    StateIdle,
	}
}

// Run drives the tick loop until ctx is cancelled. An in-flight resize
// always completes before Run returns.
func (a *Autoscaler) Run(ctx context.Context) {
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.evaluateAndApply(now)
		}
	}
}

func (a *Autoscaler) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// State returns the Autoscaler's current lifecycle state.
func (a *Autoscaler) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Autoscaler) evaluateAndApply(now time.Time) {
	a.setState(StateEvaluating)

	cfg := a.store.Load()
	policy := cfg.Autoscaling
	status := a.pool.PoolStatus()

	_, isPeak := policy.PeakHours[now.Hour()]
	snap := a.agg.Snapshot(now, isPeak)

	cand := decide(snap, status, policy, now.Hour())
	if cand == nil {
		a.setState(StateIdle)
		return
	}

	a.mu.Lock()
	last := a.lastResize
	a.mu.Unlock()
	if !last.IsZero() && now.Sub(last) < policy.Cooldown {
		a.setState(StateIdle)
		return
	}

	target := clamp(cand.target, policy.MinSessions, policy.MaxSessions)
	if target == status.CurrentMax {
		a.setState(StateIdle)
		return
	}

	a.setState(StateApplying)
	applied, resizeErr := a.safeResize(target)
	if resizeErr != nil {
		a.mu.Lock()
		a.lastResize = now
		event := Event{
			ScalingEvent: notify.ScalingEvent{
				Action:    cand.action,
				Reason:    ReasonResizeFailed,
				OldMax:    status.CurrentMax,
				NewMax:    status.CurrentMax,
				Timestamp: now,
			},
			Snapshot: snap,
		}
		a.history = append(a.history, event)
		if len(a.history) > maxHistory {
			a.history = a.history[len(a.history)-maxHistory:]
		}
		a.mu.Unlock()

		if a.log != nil {
			a.log.WithError(resizeErr).Warn("autoscaler: resize failed, returning to idle")
		}
		a.setState(StateIdle)
		return
	}

	a.mu.Lock()
	a.lastResize = now
	event := Event{
		ScalingEvent: notify.ScalingEvent{
			Action:    cand.action,
			Reason:    cand.reason,
			OldMax:    status.CurrentMax,
			NewMax:    applied,
			Timestamp: now,
		},
		Snapshot: snap,
	}
	a.history = append(a.history, event)
	if len(a.history) > maxHistory {
		a.history = a.history[len(a.history)-maxHistory:]
	}
	a.mu.Unlock()

	if a.log != nil {
		a.log.Scaling(cand.reason, status.CurrentMax, applied)
	}
	a.listener.OnPoolScaled(event.ScalingEvent)

	a.setState(StateCoolingDown)
	a.setState(StateIdle)
}

// ApplyManual performs an administrative resize through the same serialized
// path as policy-driven ticks (§9), recording a Scaling Event with reason
// "manual".
func (a *Autoscaler) ApplyManual(newMax int) int {
	status := a.pool.PoolStatus()
	applied := a.pool.Resize(newMax)

	now := time.Now()
	a.mu.Lock()
	a.lastResize = now
	event := Event{
		ScalingEvent: notify.ScalingEvent{
			Action:    actionFor(status.CurrentMax, applied),
			Reason:    ReasonManual,
			OldMax:    status.CurrentMax,
			NewMax:    applied,
			Timestamp: now,
		},
	}
	a.history = append(a.history, event)
	if len(a.history) > maxHistory {
		a.history = a.history[len(a.history)-maxHistory:]
	}
	a.mu.Unlock()

	a.listener.OnPoolScaled(event.ScalingEvent)
	return applied
}

// History returns a copy of the bounded Scaling Event history.
func (a *Autoscaler) History() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Event, len(a.history))
	copy(out, a.history)
	return out
}

// safeResize calls the pool's Resize and recovers from a panic in the Pool
// implementation, surfacing it as a resize error instead of crashing the
// tick loop. Resize itself never returns an error in the normal case (it
// clamps rather than fails); this guards the §4.10 "applying → idle on
// resize error" transition against a misbehaving Pool implementation
// without changing the interface's everyday contract.
func (a *Autoscaler) safeResize(target int) (applied int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("autoscaler: resize panicked: %v", r)
		}
	}()
	return a.pool.Resize(target), nil
}

func actionFor(oldMax, newMax int) string {
	if newMax >= oldMax {
		return "up"
	}
	return "down"
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// decide implements the §4.4 step 2-4 precedence: time-of-day rules take
// precedence over utilization rules when both fire.
func decide(snap metrics.Snapshot, status PoolStatus, policy config.AutoscalingPolicy, hour int) *candidate {
	if !policy.Enabled {
		return nil
	}

	if _, ok := policy.PeakHours[hour]; ok && status.CurrentMax < policy.MaxSessions {
		return &candidate{action: "up", reason: ReasonPeakHour, target: status.CurrentMax + policy.ScaleUpStep}
	}
	if _, ok := policy.OffPeakHours[hour]; ok && status.CurrentMax > policy.MinSessions {
		return &candidate{action: "down", reason: ReasonOffPeakHour, target: status.CurrentMax - policy.ScaleDownStep}
	}

	if snap.Utilization >= policy.ScaleUpThreshold {
		return &candidate{action: "up", reason: ReasonHighUtilization, target: status.CurrentMax + policy.ScaleUpStep}
	}
	if snap.Utilization <= policy.ScaleDownThreshold && status.Waiting == 0 {
		return &candidate{action: "down", reason: ReasonLowUtilization, target: status.CurrentMax - policy.ScaleDownStep}
	}

	return nil
}
