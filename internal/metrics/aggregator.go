// Package metrics maintains the rolling window of pool/query/error
// observations and derives the immutable MetricsSnapshot consumed by the
// Health Evaluator and the Autoscaler, plus a Prometheus registry exposing
// the same counters for the observability surface.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

const (
	snapshotCapacity = 1024
	latencyWindow    = 512
)

// Snapshot is the immutable value produced by Aggregator.Snapshot.
type Snapshot struct {
	Timestamp    time.Time
	Utilization  float64
	AvgQueryTime time.Duration
	P95QueryTime time.Duration
	ErrorRate    float64
	Active       int
	Waiting      int
	HourOfDay    int
	IsPeakHour   bool
}

// PoolDelta is the pool-side event fed into record_pool_delta.
type PoolDelta struct {
	Total      int
	Idle       int
	Waiting    int
	CurrentMax int
}

// Aggregator owns the ring buffer of snapshots and the per-kind counters
// that feed it. A single mutex guards every counter and the ring buffer, so
// each Snapshot reads all counters at one consistent point; Snapshot and
// History take that same mutex, so reads are not lock-free.
type Aggregator struct {
	mu sync.Mutex

	queryDurations []time.Duration // bounded ring, most recent latencyWindow
	queryOK        int
	queryTotal     int

	errorCount int
	totalCount int

	lastDelta PoolDelta

	peakHours func(hour int) bool

	history    []Snapshot
	historyPos int
	historyLen int
}

// New creates an Aggregator. isPeakHour classifies the current hour for the
// snapshot's is_peak_hour field (wired from the live PoolConfig at call
// time by the caller, not captured here, since the policy can change).
func New() *Aggregator {
	return &Aggregator{
		queryDurations: make([]time.Duration, 0, latencyWindow),
		history:        make([]Snapshot, snapshotCapacity),
	}
}

// RecordQuery records the outcome of one query observation.
func (a *Aggregator) RecordQuery(start, end time.Time, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := end.Sub(start)
	if len(a.queryDurations) >= latencyWindow {
		a.queryDurations = a.queryDurations[1:]
	}
	a.queryDurations = append(a.queryDurations, d)

	a.queryTotal++
	if ok {
		a.queryOK++
	}
}

// RecordError increments the error counter. kind is accepted for call-site
// symmetry with the spec's record_error(kind) but this aggregator tracks
// only the aggregate error rate; per-kind breakdowns live in the Prometheus
// registry.
func (a *Aggregator) RecordError(kind string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errorCount++
	a.totalCount++
}

// RecordPoolDelta updates the pool-side counters used to compute
// utilization and waiting.
func (a *Aggregator) RecordPoolDelta(d PoolDelta) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastDelta = d
	a.totalCount++
}

// Snapshot computes the current MetricsSnapshot and appends it to the
// history ring. utilization is NaN-safe: 0 when current_max is 0.
func (a *Aggregator) Snapshot(now time.Time, isPeakHour bool) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	util := 0.0
	if a.lastDelta.CurrentMax > 0 {
		util = float64(a.lastDelta.Total) / float64(a.lastDelta.CurrentMax)
	}
	if math.IsNaN(util) || math.IsInf(util, 0) {
		util = 0
	}

	avg, p95 := percentiles(a.queryDurations)

	errRate := 0.0
	if a.totalCount > 0 {
		errRate = float64(a.errorCount) / float64(a.totalCount)
	}

	snap := Snapshot{
		Timestamp:    now,
		Utilization:  util,
		AvgQueryTime: avg,
		P95QueryTime: p95,
		ErrorRate:    errRate,
		Active:       a.lastDelta.Total - a.lastDelta.Idle,
		Waiting:      a.lastDelta.Waiting,
		HourOfDay:    now.Hour(),
		IsPeakHour:   isPeakHour,
	}

	a.history[a.historyPos] = snap
	a.historyPos = (a.historyPos + 1) % snapshotCapacity
	if a.historyLen < snapshotCapacity {
		a.historyLen++
	}

	return snap
}

// History returns the last k snapshots, oldest first. k is clamped to the
// buffer's current length.
func (a *Aggregator) History(k int) []Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if k > a.historyLen {
		k = a.historyLen
	}
	out := make([]Snapshot, k)
	for i := 0; i < k; i++ {
		idx := (a.historyPos - k + i + snapshotCapacity) % snapshotCapacity
		out[i] = a.history[idx]
	}
	return out
}

// percentiles computes the mean and the nearest-rank p95 of a bounded
// window via a sorted copy. The window is capped at 512 samples so the sort
// is cheap; the p95 is exact for that window, and no histogram is kept.
func percentiles(samples []time.Duration) (avg, p95 time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	avg = total / time.Duration(len(sorted))

	idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	p95 = sorted[idx]
	return avg, p95
}
