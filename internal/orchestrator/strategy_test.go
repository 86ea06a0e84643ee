package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/propsearch/poolcore/internal/health"
	"github.com/propsearch/poolcore/internal/metrics"
	"github.com/propsearch/poolcore/internal/models"
)

func TestSelectStrategyCachedUnderLoad(t *testing.T) {
	snap := metrics.Snapshot{Utilization: 0.9}
	s := selectStrategy(snap, health.Report{Status: health.Healthy}, true, true)
	assert.Equal(t, models.StrategyCached, s)
}

func TestSelectStrategySimplifiedUnderLoadNoCacheHit(t *testing.T) {
	snap := metrics.Snapshot{Utilization: 0.9}
	s := selectStrategy(snap, health.Report{Status: health.Healthy}, true, false)
	assert.Equal(t, models.StrategySimplified, s)
}

func TestSelectStrategyDowngradeSequence(t *testing.T) {
	// scenario 4: utilization=0.5, avg_query_time=120ms, embedding_ok=true -> text
	snap := metrics.Snapshot{Utilization: 0.5, AvgQueryTime: 120 * time.Millisecond}
	report := health.Report{Status: health.Healthy}

	s := selectStrategy(snap, report, true, false)
	assert.Equal(t, models.StrategyText, s)

	// same snapshot, embedding unreachable -> still text
	s = selectStrategy(snap, report, false, false)
	assert.Equal(t, models.StrategyText, s)

	// avg_query_time=700ms, embedding_ok=true -> vector
	snap.AvgQueryTime = 700 * time.Millisecond
	s = selectStrategy(snap, report, true, false)
	assert.Equal(t, models.StrategyVector, s)
}

func TestSelectStrategyHybridWhenFast(t *testing.T) {
	snap := metrics.Snapshot{Utilization: 0.5, AvgQueryTime: 80 * time.Millisecond}
	s := selectStrategy(snap, health.Report{Status: health.Healthy}, true, false)
	assert.Equal(t, models.StrategyHybrid, s)
}

func TestSelectStrategyFallbackWhenUnhealthy(t *testing.T) {
	snap := metrics.Snapshot{Utilization: 0.5, AvgQueryTime: 80 * time.Millisecond}
	s := selectStrategy(snap, health.Report{Status: health.Critical}, true, false)
	assert.Equal(t, models.StrategyFallback, s)
}
