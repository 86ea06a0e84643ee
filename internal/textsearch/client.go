// Package textsearch implements the remote keyword-search client described
// in §4.6: filter-expression translation, a 5s timeout, a wrapping circuit
// breaker, and a health probe. Failures here are never fatal to the
// orchestrator — a failed text search degrades to empty hits.
package textsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/propsearch/poolcore/internal/logging"
	"github.com/propsearch/poolcore/internal/models"
	"github.com/propsearch/poolcore/internal/resilience"
)

const requestTimeout = 5 * time.Second

// Config configures the Text Search Client.
type Config struct {
	BaseURL string
}

// Client is the Text Search Client.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.CircuitBreaker
	log     *logging.Logger
}

// New builds a Client wrapped in its own circuit breaker.
func New(cfg Config, log *logging.Logger) *Client {
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.Name = "text-search"
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: requestTimeout},
		breaker: resilience.NewCircuitBreaker(breakerCfg),
		log:     log,
	}
}

// filterExpr translates a subset of the Search Request into the remote
// filter-expression grammar: location equality, price range, type equality,
// bedroom equality. §6 documents the outgoing filter field as an array of
// expressions (`filter: [expr]`), one clause per element.
func filterExpr(req *models.SearchRequest) []string {
	var parts []string
	if req.Location != "" {
		parts = append(parts, fmt.Sprintf("location:%s", req.Location))
	}
	if req.PropertyType != "" {
		parts = append(parts, fmt.Sprintf("type:%s", req.PropertyType))
	}
	if req.Bedrooms > 0 {
		parts = append(parts, fmt.Sprintf("bedrooms:%d", req.Bedrooms))
	}
	if req.PriceRange != nil {
		parts = append(parts, fmt.Sprintf("price:[%s,%s]",
			strconv.FormatFloat(req.PriceRange.Min, 'f', 2, 64),
			strconv.FormatFloat(req.PriceRange.Max, 'f', 2, 64)))
	}
	return parts
}

// sortExpr renders the request's sort field/order as "field:order", omitted
// entirely when no explicit sort was requested.
func sortExpr(req *models.SearchRequest) string {
	if req.SortBy == "" {
		return ""
	}
	order := req.SortOrder
	if order == "" {
		order = models.SortDesc
	}
	return fmt.Sprintf("%s:%s", req.SortBy, order)
}

// Search runs a keyword search. On any failure it returns an empty response
// rather than an error, since text search failures are non-fatal to the
// orchestrator (§4.6); the caller distinguishes "no hits" from "search
// unavailable" only through logging.
func (c *Client) Search(ctx context.Context, req *models.SearchRequest) models.TextSearchResponse {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	var resp models.TextSearchResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		r, callErr := c.call(ctx, req)
		if callErr != nil {
			return callErr
		}
		resp = r
		return nil
	})
	if err != nil {
		if c.log != nil {
			c.log.WithError(err).Warn("textsearch: search failed, degrading to empty hits")
		}
		return models.TextSearchResponse{ProcessingTime: time.Since(start)}
	}
	return resp
}

// wireHit and wireResponse mirror §6's documented response shape
// (`{hits, estimatedTotalHits, processingTimeMs}`) exactly; they exist
// separately from models.TextSearchResponse because the wire's
// "processingTimeMs" is a millisecond integer, not a time.Duration, and
// decoding straight into a time.Duration field would silently parse it as
// nanoseconds.
type wireHit struct {
	PropertyID string `json:"property_id"`
	Rank       int    `json:"rank"`
}

type wireResponse struct {
	Hits              []wireHit `json:"hits"`
	EstimatedTotal    int       `json:"estimatedTotalHits"`
	ProcessingTimeMs  int64     `json:"processingTimeMs"`
}

func (c *Client) call(ctx context.Context, req *models.SearchRequest) (models.TextSearchResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":  req.QueryText,
		"filter": filterExpr(req),
		"limit":  req.Limit,
		"offset": req.Offset,
		"sort":   sortExpr(req),
	})
	if err != nil {
		return models.TextSearchResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/search", strings.NewReader(string(body)))
	if err != nil {
		return models.TextSearchResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return models.TextSearchResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.TextSearchResponse{}, fmt.Errorf("textsearch: remote returned %d", resp.StatusCode)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return models.TextSearchResponse{}, err
	}

	hits := make([]models.TextHit, len(wire.Hits))
	for i, h := range wire.Hits {
		hits[i] = models.TextHit{PropertyID: h.PropertyID, Rank: h.Rank}
	}
	return models.TextSearchResponse{
		Hits:           hits,
		EstimatedTotal: wire.EstimatedTotal,
		ProcessingTime: time.Duration(wire.ProcessingTimeMs) * time.Millisecond,
	}, nil
}

// Health probes the remote service's /health endpoint.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
