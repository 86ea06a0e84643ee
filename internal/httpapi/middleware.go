// Package httpapi exposes the observability and administrative HTTP
// surface: pool/health/scaling-event endpoints, the Prometheus scrape
// endpoint, the live events feed, and the single admin resize endpoint,
// wrapped in request-id, panic-recovery, and metrics middleware.
package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/propsearch/poolcore/internal/logging"
	"github.com/propsearch/poolcore/internal/metrics"
)

// responseWriter wraps http.ResponseWriter to capture the status code for
// the metrics middleware, matching the teacher's monitoring wrapper.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// WithRequestID assigns a request ID (reusing an inbound X-Request-ID
// header when present) and stores it on the request context.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := logging.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithRecovery recovers panics, logs and reports them to Sentry when
// configured, and returns a 500 rather than crashing the server.
func WithRecovery(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					stack := debug.Stack()
					if log != nil {
						log.WithField("panic", fmt.Sprintf("%v", rec)).Error("httpapi: recovered panic")
					}
					if sentry.CurrentHub() != nil {
						sentry.WithScope(func(scope *sentry.Scope) {
							scope.SetLevel(sentry.LevelFatal)
							scope.SetContext("panic", map[string]interface{}{
								"path": r.URL.Path, "method": r.Method,
								"recovered": rec, "stack": string(stack),
							})
							sentry.CaptureException(fmt.Errorf("http panic: %v", rec))
						})
					}
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					fmt.Fprint(w, `{"error_kind":"INTERNAL","message":"internal server error"}`)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WithMetrics records request duration and outcome counters on reg.
func WithMetrics(reg *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			outcome := "ok"
			if wrapped.statusCode >= 400 {
				outcome = "error"
			}
			reg.QueriesTotal.WithLabelValues(outcome).Inc()
			reg.QueryDuration.Observe(time.Since(start).Seconds())
		})
	}
}

// Chain composes middleware in application order (first listed runs
// outermost).
func Chain(h http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
