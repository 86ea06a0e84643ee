// Package config loads the environment-driven GlobalConfig and holds the
// runtime-mutable PoolConfig behind an atomic pointer so a reload swaps one
// immutable value rather than mutating shared fields in place.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
)

// AutoscalingPolicy is the embedded policy governing the Autoscaler's
// control loop.
type AutoscalingPolicy struct {
	Enabled            bool
	MinSessions        int
	MaxSessions        int
	ScaleUpThreshold   float64
	ScaleDownThreshold float64
	ScaleUpStep        int
	ScaleDownStep      int
	Cooldown           time.Duration
	PeakHours          map[int]struct{}
	OffPeakHours       map[int]struct{}
}

// PoolConfig is the mutable-at-runtime configuration of the pool and its
// autoscaling policy.
type PoolConfig struct {
	ConnectionEndpoint string
	IdleTimeout        time.Duration
	ConnectTimeout     time.Duration
	TLSRequired        bool
	Autoscaling        AutoscalingPolicy
}

// Validate enforces the Data Model invariants from §3.
func (c *PoolConfig) Validate() error {
	p := c.Autoscaling
	if !(p.ScaleDownThreshold >= 0 && p.ScaleDownThreshold < p.ScaleUpThreshold && p.ScaleUpThreshold <= 1) {
		return fmt.Errorf("config: invalid threshold bounds: down=%v up=%v", p.ScaleDownThreshold, p.ScaleUpThreshold)
	}
	if !(1 <= p.MinSessions && p.MinSessions <= p.MaxSessions) {
		return fmt.Errorf("config: invalid session bounds: min=%d max=%d", p.MinSessions, p.MaxSessions)
	}
	for h := range p.PeakHours {
		if _, clash := p.OffPeakHours[h]; clash {
			return fmt.Errorf("config: hour %d is both peak and off-peak", h)
		}
	}
	return nil
}

// ExternalPoolerHint renders the effective pool bounds as a pgbouncer-style
// ini snippet for operators fronting the pool with an external pooler. This
// is a read-only diagnostic; the pool never depends on pgbouncer itself.
func (c *PoolConfig) ExternalPoolerHint(database string) string {
	var b strings.Builder
	b.WriteString("[databases]\n")
	fmt.Fprintf(&b, "%s = pool_size=%d reserve_pool_size=%d\n",
		database, c.Autoscaling.MaxSessions, c.Autoscaling.MinSessions)
	b.WriteString("\n[pgbouncer]\n")
	b.WriteString("pool_mode = transaction\n")
	fmt.Fprintf(&b, "default_pool_size = %d\n", c.Autoscaling.MaxSessions)
	fmt.Fprintf(&b, "reserve_pool_size = %d\n", c.Autoscaling.MinSessions)
	return b.String()
}

// Store holds a PoolConfig behind an atomic.Pointer so readers always see a
// fully-formed, internally-consistent value. Swap is the sole write path.
type Store struct {
	ptr atomic.Pointer[PoolConfig]
}

// NewStore creates a Store seeded with initial, which must already be valid.
func NewStore(initial *PoolConfig) *Store {
	s := &Store{}
	s.ptr.Store(initial)
	return s
}

// Load returns the current PoolConfig. Safe for concurrent use.
func (s *Store) Load() *PoolConfig { return s.ptr.Load() }

// Swap validates next and atomically replaces the current config, returning
// an error (and leaving the old config in place) if next is invalid.
func (s *Store) Swap(next *PoolConfig) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.ptr.Store(next)
	return nil
}

// CacheConfig sizes and expires the Query Result Cache.
type CacheConfig struct {
	TTL      time.Duration
	Capacity int
}

// SearchConfig holds search-path tuning values.
type SearchConfig struct {
	SimilarityThreshold  float64
	SlowRequestThreshold time.Duration
}

// GlobalConfig is the process-wide, load-once configuration read from the
// environment. The runtime-mutable pool/autoscaling subset additionally
// lives in a Store so it can be swapped without restarting the process.
type GlobalConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	HTTPAddr string

	Pool   PoolConfig
	Cache  CacheConfig
	Search SearchConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EmbeddingEndpoints []string
	TextSearchBaseURL  string

	SentryDSN     string
	AMQPURL       string
	AMQPExchange  string
	NotifyEnabled bool
	WSFeedEnabled bool
}

// Load reads a GlobalConfig from the environment, loading a .env file if
// present (ignored if absent), the same pattern as the teacher's config
// loader.
func Load() (*GlobalConfig, error) {
	_ = godotenv.Load()

	cfg := &GlobalConfig{
		ServiceName:    getEnvString("SERVICE_NAME", "poolcore"),
		ServiceVersion: getEnvString("SERVICE_VERSION", "dev"),
		Environment:    getEnvString("ENVIRONMENT", "development"),
		HTTPAddr:       getEnvString("HTTP_ADDR", ":8080"),

		Pool: PoolConfig{
			ConnectionEndpoint: getEnvString("DB_DSN", "postgres://localhost:5432/properties?sslmode=disable"),
			IdleTimeout:        getEnvDuration("POOL_IDLE_TIMEOUT", 5*time.Minute),
			ConnectTimeout:     getEnvDuration("POOL_CONNECT_TIMEOUT", 5*time.Second),
			TLSRequired:        getEnvBool("POOL_TLS_REQUIRED", false),
			Autoscaling: AutoscalingPolicy{
				Enabled:            getEnvBool("AUTOSCALE_ENABLED", true),
				MinSessions:        getEnvInt("POOL_MIN_SESSIONS", 2),
				MaxSessions:        getEnvInt("POOL_MAX_SESSIONS", 20),
				ScaleUpThreshold:   getEnvFloat("SCALE_UP_THRESHOLD", 0.7),
				ScaleDownThreshold: getEnvFloat("SCALE_DOWN_THRESHOLD", 0.3),
				ScaleUpStep:        getEnvInt("SCALE_UP_STEP", 3),
				ScaleDownStep:      getEnvInt("SCALE_DOWN_STEP", 2),
				Cooldown:           getEnvDuration("SCALE_COOLDOWN", 30*time.Second),
				PeakHours:          parseHourSet(getEnvString("PEAK_HOURS", "")),
				OffPeakHours:       parseHourSet(getEnvString("OFF_PEAK_HOURS", "")),
			},
		},

		Cache: CacheConfig{
			TTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),
			Capacity: getEnvInt("CACHE_CAPACITY", 10000),
		},

		Search: SearchConfig{
			SimilarityThreshold:  getEnvFloat("SIMILARITY_THRESHOLD", 0.7),
			SlowRequestThreshold: getEnvDuration("SLOW_REQUEST_THRESHOLD", 1*time.Second),
		},

		RedisAddr:     getEnvString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnvString("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		EmbeddingEndpoints: parseCSV(getEnvString("EMBEDDING_ENDPOINTS", "http://localhost:8090")),
		TextSearchBaseURL:  getEnvString("TEXT_SEARCH_BASE_URL", "http://localhost:8091"),

		SentryDSN:     getEnvString("SENTRY_DSN", ""),
		AMQPURL:       getEnvString("AMQP_URL", ""),
		AMQPExchange:  getEnvString("AMQP_EXCHANGE", "poolcore.events"),
		NotifyEnabled: getEnvBool("NOTIFY_ENABLED", false),
		WSFeedEnabled: getEnvBool("WS_FEED_ENABLED", true),
	}

	if err := cfg.Pool.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseCSV(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseHourSet(csv string) map[int]struct{} {
	set := make(map[int]struct{})
	if csv == "" {
		return set
	}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if h, err := strconv.Atoi(part); err == nil && h >= 0 && h <= 23 {
			set[h] = struct{}{}
		}
	}
	return set
}

func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
