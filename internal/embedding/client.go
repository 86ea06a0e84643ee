// Package embedding implements the failover-capable remote vectorization
// client described in §4.5: an ordered endpoint list with per-endpoint
// backoff and circuit breaking, a persistent round-robin index, and a
// Redis-backed embedding cache keyed by text fingerprint.
package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"

	"github.com/propsearch/poolcore/internal/apierr"
	"github.com/propsearch/poolcore/internal/logging"
	"github.com/propsearch/poolcore/internal/resilience"
)

const (
	requestTimeout = 5 * time.Second
	cacheTTL       = time.Hour
	batchSize      = 50
)

// Config configures the Embedding Client.
type Config struct {
	// Endpoints is the ordered primary+failover endpoint list.
	Endpoints []string
	Retries   int
	RateLimit rate.Limit
	RateBurst int
}

// Client is the Embedding Client.
type Client struct {
	cfg      Config
	http     *http.Client
	rdb      *redis.Client
	log      *logging.Logger
	limiter  *rate.Limiter
	breakers *resilience.Group

	// nextIdx is the persistent round-robin cursor across calls, advanced
	// only when an endpoint exhausts its retries.
	nextIdx uint64
}

// New builds a Client. rdb may be nil, in which case the cache is skipped
// entirely (every call falls through to the remote endpoints).
func New(cfg Config, rdb *redis.Client, log *logging.Logger) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: requestTimeout},
		rdb:      rdb,
		log:      log,
		limiter:  rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		breakers: resilience.NewGroup(),
	}
}

// Embed returns one vector per input text, batching in chunks of 50.
// A chunk failure aborts the whole call with its error; prior successful
// chunks are not rolled back, but Embed only returns them as part of a
// full result, matching the caller's single logical transaction.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	fp := fingerprint(texts)
	if cached, ok := c.getCache(ctx, fp); ok {
		return cached, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}

	c.putCache(ctx, fp, out)
	return out, nil
}

// embedChunk walks the endpoint list starting from the persistent
// round-robin cursor, retrying each endpoint with a 1s*k backoff before
// advancing to the next one.
func (c *Client) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	n := len(c.cfg.Endpoints)
	if n == 0 {
		return nil, apierr.New(apierr.UpstreamUnavailable, "EmbeddingUnavailable: no endpoints configured")
	}

	start := int(atomic.LoadUint64(&c.nextIdx)) % n
	for offset := 0; offset < n; offset++ {
		idx := (start + offset) % n
		endpoint := c.cfg.Endpoints[idx]

		vecs, err := c.tryEndpoint(ctx, endpoint, texts)
		if err == nil {
			return vecs, nil
		}
		if c.log != nil {
			c.log.WithError(err).Warnf("embedding: endpoint %s exhausted", endpoint)
		}
		atomic.StoreUint64(&c.nextIdx, uint64((idx+1)%n))
	}

	return nil, apierr.New(apierr.UpstreamUnavailable, "EmbeddingUnavailable: all endpoints failed").
		WithDetails("endpoints_tried", n)
}

func (c *Client) tryEndpoint(ctx context.Context, endpoint string, texts []string) ([][]float32, error) {
	breaker := c.breakers.Get(endpoint)

	var lastErr error
	for k := 1; k <= c.cfg.Retries; k++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var vecs [][]float32
		lastErr = breaker.Execute(ctx, func(ctx context.Context) error {
			v, err := c.call(ctx, endpoint, texts)
			if err != nil {
				return err
			}
			vecs = v
			return nil
		})
		if lastErr == nil {
			return vecs, nil
		}
		if k == c.cfg.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(k) * time.Second):
		}
	}
	return nil, lastErr
}

func (c *Client) call(ctx context.Context, endpoint string, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]interface{}{"texts": texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.New(apierr.ConnectFailed, "embedding request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apierr.New(apierr.UpstreamUnavailable, fmt.Sprintf("embedding endpoint returned %d", resp.StatusCode))
	}

	var parsed struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apierr.New(apierr.QueryFailed, "embedding response decode failed").WithCause(err)
	}
	return parsed.Embeddings, nil
}

func (c *Client) getCache(ctx context.Context, fp string) ([][]float32, bool) {
	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, cacheKey(fp)).Bytes()
	if err != nil {
		return nil, false
	}
	var vecs [][]float32
	if err := json.Unmarshal(raw, &vecs); err != nil {
		return nil, false
	}
	return vecs, true
}

func (c *Client) putCache(ctx context.Context, fp string, vecs [][]float32) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(vecs)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(fp), raw, cacheTTL).Err(); err != nil && c.log != nil {
		c.log.WithError(err).Warn("embedding: cache write failed")
	}
}

func cacheKey(fp string) string {
	return "embedding:" + fp
}

// fingerprint hashes the concatenated, order-preserving input texts.
func fingerprint(texts []string) string {
	h, _ := blake2b.New256(nil)
	for _, t := range texts {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
