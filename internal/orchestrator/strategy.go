package orchestrator

import (
	"time"

	"github.com/propsearch/poolcore/internal/health"
	"github.com/propsearch/poolcore/internal/metrics"
	"github.com/propsearch/poolcore/internal/models"
)

const highUtilization = 0.8

// selectStrategy implements the §4.9 decision table as a total function of
// one snapshot, the pool's health classification, request properties, and
// whether a cache entry already exists for this request's fingerprint.
func selectStrategy(snap metrics.Snapshot, report health.Report, embeddingAvailable, cacheHit bool) models.Strategy {
	if snap.Utilization > highUtilization {
		if cacheHit {
			return models.StrategyCached
		}
		return models.StrategySimplified
	}

	healthy := report.Status == health.Healthy

	if healthy && snap.AvgQueryTime < 100*time.Millisecond && embeddingAvailable {
		return models.StrategyHybrid
	}
	if healthy && snap.AvgQueryTime < 500*time.Millisecond {
		return models.StrategyText
	}
	if healthy && embeddingAvailable {
		return models.StrategyVector
	}
	return models.StrategyFallback
}
