// Package logging wraps zerolog with the request-scoped context helpers and
// domain-specific audit methods this core needs (scaling and health
// transitions, slow-request notices) in place of the teacher's generic
// Audit/Security pair.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	traceIDKey   contextKey = "trace_id"

	// RequestIDHeader is the HTTP header carrying a caller-supplied request id.
	RequestIDHeader = "X-Request-ID"
)

// GenerateRequestID produces a new request id.
func GenerateRequestID() string { return uuid.New().String() }

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID reads the request id from ctx, or "" if absent.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithTraceID attaches a trace id to ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceID reads the trace id from ctx, or "" if absent.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// Level mirrors the teacher's LogLevel naming.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config controls how a Logger is constructed.
type Config struct {
	Level       Level
	Service     string
	Environment string
	Output      io.Writer
	PrettyLog   bool
}

// DefaultConfig returns a sensible default, pretty-printing in development.
func DefaultConfig(service string) *Config {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	return &Config{
		Level:       LevelInfo,
		Service:     service,
		Environment: env,
		Output:      os.Stdout,
		PrettyLog:   env == "development",
	}
}

// Logger wraps a zerolog.Logger with this core's context and audit helpers.
type Logger struct {
	logger zerolog.Logger
}

// New builds a Logger from cfg.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig("poolcore")
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var out io.Writer = cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.PrettyLog {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	zl := zerolog.New(out).With().
		Timestamp().
		Str("service", cfg.Service).
		Str("environment", cfg.Environment).
		Logger()

	return &Logger{logger: zl}
}

func parseLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithContext returns a Logger annotated with the request/trace id from ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zl := l.logger.With().Logger()
	if id := RequestID(ctx); id != "" {
		zl = zl.With().Str("request_id", id).Logger()
	}
	if id := TraceID(ctx); id != "" {
		zl = zl.With().Str("trace_id", id).Logger()
	}
	return &Logger{logger: zl}
}

// WithField returns a Logger with one extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithError returns a Logger annotated with err.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.logger.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }

func (l *Logger) Infof(format string, args ...interface{})  { l.logger.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logger.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logger.Error().Msgf(format, args...) }

// Scaling logs a resize decision with its before/after bounds.
func (l *Logger) Scaling(reason string, oldMax, newMax int) {
	l.logger.Info().
		Str("event", "scaling").
		Str("reason", reason).
		Int("old_max", oldMax).
		Int("new_max", newMax).
		Msg("pool resized")
}

// HealthTransition logs a pool or autoscaler state-machine transition.
func (l *Logger) HealthTransition(component, from, to string) {
	l.logger.Info().
		Str("event", "health_transition").
		Str("component", component).
		Str("from", from).
		Str("to", to).
		Msg("state transition")
}

// Performance logs a slow operation, matching the teacher's threshold-based
// severity bump.
func (l *Logger) Performance(operation string, d time.Duration, slowThreshold time.Duration) {
	ev := l.logger.With().Str("operation", operation).Dur("duration_ms", d).Logger()
	if d > slowThreshold {
		ev.Warn().Msg("slow_operation")
		return
	}
	ev.Debug().Msg("performance")
}

var global *Logger

// Init sets the process-wide default Logger.
func Init(cfg *Config) { global = New(cfg) }

// Default returns the process-wide Logger, initializing it on first use.
func Default() *Logger {
	if global == nil {
		Init(DefaultConfig("poolcore"))
	}
	return global
}

// Fields is a convenience alias matching the teacher's map-based field sets.
type Fields = map[string]interface{}
