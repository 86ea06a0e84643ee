// Package telemetry wires process-wide error reporting. It trims the
// teacher's generic Sentry helper down to what this core actually calls:
// initialization plus the PII scrubber used on every captured event.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig configures the Sentry client.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	ServiceName string
}

// InitSentry initializes the global Sentry hub. It is a no-op (returning
// nil) when no DSN is configured.
func InitSentry(cfg SentryConfig) error {
	if cfg.DSN == "" {
		return nil
	}

	sampleRate := 0.25
	tracesSampleRate := 0.05
	if cfg.Environment == "production" {
		sampleRate = 1.0
		tracesSampleRate = 0.1
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		TracesSampleRate: tracesSampleRate,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			event.Tags["service"] = cfg.ServiceName
			filterSensitiveData(event)
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("telemetry: init sentry: %w", err)
	}
	return nil
}

// FlushSentry blocks until buffered events are sent or timeout elapses.
func FlushSentry(timeout time.Duration) { sentry.Flush(timeout) }

var sensitiveKeys = []string{
	"password", "passwd", "pwd", "secret", "token", "key",
	"authorization", "auth", "api_key", "apikey",
	"access_token", "refresh_token", "private_key", "privatekey",
}

func filterSensitiveData(event *sentry.Event) {
	if event.Request != nil {
		for key := range event.Request.Headers {
			if containsSensitiveKey(key) {
				event.Request.Headers[key] = "[FILTERED]"
			}
		}
	}
	for ctxKey, ctxValue := range event.Contexts {
		for key := range ctxValue {
			if containsSensitiveKey(key) {
				ctxValue[key] = "[FILTERED]"
			}
		}
		event.Contexts[ctxKey] = ctxValue
	}
	for key := range event.Extra {
		if containsSensitiveKey(key) {
			event.Extra[key] = "[FILTERED]"
		}
	}
}

func containsSensitiveKey(key string) bool {
	lower := []byte(key)
	for i, c := range lower {
		if c >= 'A' && c <= 'Z' {
			lower[i] = c + 32
		}
	}
	for _, sensitive := range sensitiveKeys {
		if stringsContains(string(lower), sensitive) {
			return true
		}
	}
	return false
}

func stringsContains(s, substr string) bool {
	if len(substr) > len(s) {
		return false
	}
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
