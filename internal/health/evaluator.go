// Package health implements the Health Evaluator: a pure function of a
// metrics snapshot, a pool status, and the last probe result, plus a single
// counter tracking "waiting > 0 for N consecutive snapshots".
package health

import "github.com/propsearch/poolcore/internal/metrics"

// Status is the tri-state health classification.
type Status string

const (
	Healthy  Status = "healthy"
	Degraded Status = "degraded"
	Critical Status = "critical"
)

// Recommendation tags, appended for each triggering condition.
const (
	RecIncreasePoolSize   = "increase_pool_size"
	RecReviewSlowQueries  = "review_slow_queries"
	RecHighPoolUtilization = "high_pool_utilization"
	RecHighErrorRate      = "high_error_rate"
)

// PoolStatus is the subset of pool state the evaluator needs.
type PoolStatus struct {
	Total      int
	Idle       int
	Waiting    int
	CurrentMax int
}

// Report is the derived, unstored health classification for one decision
// point.
type Report struct {
	Status          Status
	Recommendations []string
}

const consecutiveWaitingThreshold = 2

// Evaluator holds only the small amount of state the decision table needs
// across calls: a consecutive-waiting-snapshots counter. Everything else is
// a pure function of its arguments.
type Evaluator struct {
	consecutiveWaiting int
}

// New creates an Evaluator with a fresh consecutive-waiting counter.
func New() *Evaluator { return &Evaluator{} }

// Evaluate implements the §4.3 decision table. probeOK is the result of the
// Pool Controller's most recent health_probe.
func (e *Evaluator) Evaluate(snap metrics.Snapshot, pool PoolStatus, probeOK bool) Report {
	if pool.Waiting > 0 {
		e.consecutiveWaiting++
	} else {
		e.consecutiveWaiting = 0
	}

	var recs []string

	if !probeOK || snap.ErrorRate > 0.05 {
		if snap.ErrorRate > 0.05 {
			recs = append(recs, RecHighErrorRate)
		}
		return Report{Status: Critical, Recommendations: recs}
	}

	degraded := false
	if snap.Utilization > 0.85 {
		degraded = true
		recs = append(recs, RecHighPoolUtilization, RecIncreasePoolSize)
	}
	if snap.P95QueryTime.Milliseconds() > 1000 {
		degraded = true
		recs = append(recs, RecReviewSlowQueries)
	}
	if e.consecutiveWaiting >= consecutiveWaitingThreshold {
		degraded = true
		recs = append(recs, RecIncreasePoolSize)
	}

	if degraded {
		return Report{Status: Degraded, Recommendations: dedupe(recs)}
	}
	return Report{Status: Healthy}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
