package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/propsearch/poolcore/internal/metrics"
)

func TestEvaluateProbeFailureIsCritical(t *testing.T) {
	e := New()
	report := e.Evaluate(metrics.Snapshot{}, PoolStatus{}, false)
	assert.Equal(t, Critical, report.Status)
}

func TestEvaluateHighErrorRateIsCriticalWithRecommendation(t *testing.T) {
	e := New()
	report := e.Evaluate(metrics.Snapshot{ErrorRate: 0.2}, PoolStatus{}, true)
	assert.Equal(t, Critical, report.Status)
	assert.Contains(t, report.Recommendations, RecHighErrorRate)
}

func TestEvaluateHealthyWhenNothingTriggers(t *testing.T) {
	e := New()
	report := e.Evaluate(metrics.Snapshot{Utilization: 0.3, ErrorRate: 0.0}, PoolStatus{}, true)
	assert.Equal(t, Healthy, report.Status)
	assert.Empty(t, report.Recommendations)
}

func TestEvaluateHighUtilizationIsDegraded(t *testing.T) {
	e := New()
	report := e.Evaluate(metrics.Snapshot{Utilization: 0.9}, PoolStatus{}, true)
	assert.Equal(t, Degraded, report.Status)
	assert.Contains(t, report.Recommendations, RecHighPoolUtilization)
	assert.Contains(t, report.Recommendations, RecIncreasePoolSize)
}

func TestEvaluateSlowP95IsDegraded(t *testing.T) {
	e := New()
	report := e.Evaluate(metrics.Snapshot{P95QueryTime: 1500_000_000}, PoolStatus{}, true)
	assert.Equal(t, Degraded, report.Status)
	assert.Contains(t, report.Recommendations, RecReviewSlowQueries)
}

func TestEvaluateConsecutiveWaitingRequiresTwoSnapshots(t *testing.T) {
	e := New()

	first := e.Evaluate(metrics.Snapshot{}, PoolStatus{Waiting: 1}, true)
	assert.Equal(t, Healthy, first.Status)

	second := e.Evaluate(metrics.Snapshot{}, PoolStatus{Waiting: 1}, true)
	assert.Equal(t, Degraded, second.Status)
	assert.Contains(t, second.Recommendations, RecIncreasePoolSize)
}

func TestEvaluateWaitingResetsWhenWaitingDropsToZero(t *testing.T) {
	e := New()
	e.Evaluate(metrics.Snapshot{}, PoolStatus{Waiting: 1}, true)
	e.Evaluate(metrics.Snapshot{}, PoolStatus{Waiting: 0}, true)
	report := e.Evaluate(metrics.Snapshot{}, PoolStatus{Waiting: 1}, true)
	assert.Equal(t, Healthy, report.Status)
}

func TestEvaluateDedupesRecommendations(t *testing.T) {
	e := New()
	e.Evaluate(metrics.Snapshot{}, PoolStatus{Waiting: 1}, true)
	report := e.Evaluate(metrics.Snapshot{Utilization: 0.9}, PoolStatus{Waiting: 1}, true)

	count := 0
	for _, r := range report.Recommendations {
		if r == RecIncreasePoolSize {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
