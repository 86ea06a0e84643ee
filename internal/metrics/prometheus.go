package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the Prometheus instruments exported alongside the
// in-process Aggregator. Wiring both isn't redundant: the Aggregator feeds
// strategy/health decisions synchronously, while the Registry is a
// pull-based, cumulative view scraped independently.
type Registry struct {
	PoolUtilization    prometheus.Gauge
	PoolActive         prometheus.Gauge
	PoolIdle           prometheus.Gauge
	PoolWaiting        prometheus.Gauge
	PoolCurrentMax     prometheus.Gauge
	PoolResizesTotal   *prometheus.CounterVec
	QueriesTotal       *prometheus.CounterVec
	QueryDuration      prometheus.Histogram
	ErrorsTotal        *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	StrategyTotal      *prometheus.CounterVec
	HealthStatusGauge  prometheus.Gauge
}

// NewRegistry registers and returns the metric set under namespace/service.
func NewRegistry(namespace, service string) *Registry {
	return &Registry{
		PoolUtilization: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: service, Name: "pool_utilization",
			Help: "Current pool utilization as total/current_max.",
		}),
		PoolActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: service, Name: "pool_active_sessions",
			Help: "Sessions currently leased.",
		}),
		PoolIdle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: service, Name: "pool_idle_sessions",
			Help: "Sessions currently idle.",
		}),
		PoolWaiting: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: service, Name: "pool_waiting_callers",
			Help: "Acquire callers blocked on the FIFO wait queue.",
		}),
		PoolCurrentMax: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: service, Name: "pool_current_max",
			Help: "Effective pool cap after any scale-downs.",
		}),
		PoolResizesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service, Name: "pool_resizes_total",
			Help: "Resize decisions applied, labeled by action and reason.",
		}, []string{"action", "reason"}),
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service, Name: "queries_total",
			Help: "Queries executed, labeled by outcome.",
		}, []string{"outcome"}),
		QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: service, Name: "query_duration_seconds",
			Help:    "Query latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service, Name: "errors_total",
			Help: "Errors recorded, labeled by error kind.",
		}, []string{"kind"}),
		CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service, Name: "cache_hits_total",
			Help: "Query result cache hits.",
		}),
		CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service, Name: "cache_misses_total",
			Help: "Query result cache misses.",
		}),
		StrategyTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: service, Name: "strategy_selected_total",
			Help: "Requests handled, labeled by strategy_used.",
		}, []string{"strategy"}),
		HealthStatusGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: service, Name: "health_status",
			Help: "0=healthy 1=degraded 2=critical.",
		}),
	}
}
