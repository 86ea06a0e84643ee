package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/propsearch/poolcore/internal/autoscaler"
	"github.com/propsearch/poolcore/internal/config"
	"github.com/propsearch/poolcore/internal/health"
	"github.com/propsearch/poolcore/internal/logging"
	"github.com/propsearch/poolcore/internal/metrics"
	"github.com/propsearch/poolcore/internal/notify"
	"github.com/propsearch/poolcore/internal/poolctl"
)

// Server builds the observability and administrative HTTP surface. It holds
// references to the already-running collaborators; it starts nothing of
// its own.
type Server struct {
	pool      *poolctl.Pool
	scaler    *autoscaler.Autoscaler
	evaluator *health.Evaluator
	agg       *metrics.Aggregator
	store     *config.Store
	reg       *metrics.Registry
	events    *notify.WSBroadcaster
	log       *logging.Logger
}

// New builds a Server. events may be nil, in which case /events responds
// 404 rather than panicking.
func New(pool *poolctl.Pool, scaler *autoscaler.Autoscaler, evaluator *health.Evaluator,
	agg *metrics.Aggregator, store *config.Store, reg *metrics.Registry,
	events *notify.WSBroadcaster, log *logging.Logger) *Server {
	return &Server{pool: pool, scaler: scaler, evaluator: evaluator, agg: agg, store: store, reg: reg, events: events, log: log}
}

// Handler assembles the full mux wrapped in the standard middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/pool/status", s.handlePoolStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/scaling-events", s.handleScalingEvents)
	mux.HandleFunc("/admin/pool/resize", s.handleAdminResize)
	if s.events != nil {
		mux.Handle("/events", s.events)
	}

	return Chain(mux, WithRequestID, WithRecovery(s.log), WithMetrics(s.reg))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.PoolStatus())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	cfg := s.store.Load()
	_, isPeak := cfg.Autoscaling.PeakHours[now.Hour()]
	snap := s.agg.Snapshot(now, isPeak)

	status := s.pool.PoolStatus()
	report := s.evaluator.Evaluate(snap, health.PoolStatus{
		Total: status.Total, Idle: status.Idle, Waiting: status.Waiting, CurrentMax: status.CurrentMax,
	}, s.pool.State() != poolctl.StateDegraded)

	if s.reg != nil {
		s.reg.HealthStatusGauge.Set(healthGaugeValue(report.Status))
	}

	writeJSON(w, http.StatusOK, struct {
		Status           health.Status `json:"status"`
		PoolSubStatus    poolctl.State `json:"pool_sub_status"`
		ScalingSubStatus string        `json:"scaling_sub_status"`
		Recommendations  []string      `json:"recommendations"`
	}{
		Status:           report.Status,
		PoolSubStatus:    s.pool.State(),
		ScalingSubStatus: string(s.scaler.State()),
		Recommendations:  report.Recommendations,
	})
}

func healthGaugeValue(status health.Status) float64 {
	switch status {
	case health.Healthy:
		return 0
	case health.Degraded:
		return 1
	default:
		return 2
	}
}

func (s *Server) handleScalingEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scaler.History())
}

type resizeRequest struct {
	NewMax int `json:"new_max"`
}

func (s *Server) handleAdminResize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewMax <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_kind": "INVALID_REQUEST", "message": "new_max must be positive"})
		return
	}

	applied := s.scaler.ApplyManual(req.NewMax)
	writeJSON(w, http.StatusOK, map[string]int{"applied_max": applied})
}
