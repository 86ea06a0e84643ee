// Package orchestrator implements the Search Orchestrator (§4.9): strategy
// selection over a single request-entry snapshot, concurrent hybrid
// execution with a shared deadline, and the failure taxonomy that
// determines which errors are recoverable within one request.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/propsearch/poolcore/internal/apierr"
	"github.com/propsearch/poolcore/internal/cache"
	"github.com/propsearch/poolcore/internal/config"
	"github.com/propsearch/poolcore/internal/embedding"
	"github.com/propsearch/poolcore/internal/health"
	"github.com/propsearch/poolcore/internal/logging"
	"github.com/propsearch/poolcore/internal/metrics"
	"github.com/propsearch/poolcore/internal/models"
	"github.com/propsearch/poolcore/internal/poolctl"
	"github.com/propsearch/poolcore/internal/textsearch"
	"github.com/propsearch/poolcore/internal/vectorsearch"
)

// hybridSafetyMargin is subtracted from the request deadline to give the
// merge step room to run after both branches return (§4.9).
const hybridSafetyMargin = 100 * time.Millisecond

// Orchestrator wires the Pool Controller, Metrics Aggregator, Health
// Evaluator, Query Result Cache, and the remote search collaborators into
// the single request path described in §4.9.
type Orchestrator struct {
	pool      *poolctl.Pool
	agg       *metrics.Aggregator
	evaluator *health.Evaluator
	cache     *cache.Cache
	store     *config.Store
	embed     *embedding.Client
	text      *textsearch.Client
	vector    *vectorsearch.Executor
	log       *logging.Logger
}

// New builds an Orchestrator from its collaborators.
func New(
	pool *poolctl.Pool,
	agg *metrics.Aggregator,
	evaluator *health.Evaluator,
	resultCache *cache.Cache,
	store *config.Store,
	embed *embedding.Client,
	text *textsearch.Client,
	vector *vectorsearch.Executor,
	log *logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		pool: pool, agg: agg, evaluator: evaluator, cache: resultCache,
		store: store, embed: embed, text: text, vector: vector, log: log,
	}
}

// Search runs one request end-to-end: strategy selection happens-before
// any session acquire (§5 ordering guarantee (a)).
func (o *Orchestrator) Search(ctx context.Context, req *models.SearchRequest) (models.SearchResult, error) {
	start := time.Now()

	fp := cache.Fingerprint(req)
	cached, cacheHit := o.cache.Get(fp)

	now := start
	cfg := o.store.Load()
	_, isPeak := cfg.Autoscaling.PeakHours[now.Hour()]
	snap := o.agg.Snapshot(now, isPeak)

	poolStatus := o.pool.PoolStatus()
	report := o.evaluator.Evaluate(snap, health.PoolStatus{
		Total: poolStatus.Total, Idle: poolStatus.Idle,
		Waiting: poolStatus.Waiting, CurrentMax: poolStatus.CurrentMax,
	}, o.pool.State() != poolctl.StateDegraded)

	embeddingAvailable := req.HasEmbedding() || o.embed != nil
	strategy := selectStrategy(snap, report, embeddingAvailable, cacheHit)

	result, err := o.execute(ctx, req, strategy, cached, cacheHit)
	if err != nil {
		o.agg.RecordError(string(apierr.KindOf(err)))
		return models.SearchResult{}, err
	}

	result.Elapsed = time.Since(start)
	result.Metadata.PoolUtilization = snap.Utilization
	result.Metadata.CacheHit = cacheHit

	if strategy != models.StrategyCached {
		o.cache.Put(fp, result)
	}
	o.agg.RecordQuery(start, time.Now(), true)
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, req *models.SearchRequest, strategy models.Strategy, cached models.SearchResult, cacheHit bool) (models.SearchResult, error) {
	switch strategy {
	case models.StrategyCached:
		cached.StrategyUsed = models.StrategyCached
		return cached, nil
	case models.StrategySimplified:
		return o.runSimplified(ctx, req)
	case models.StrategyHybrid:
		return o.runHybrid(ctx, req)
	case models.StrategyText:
		return o.runText(ctx, req)
	case models.StrategyVector:
		return o.runVector(ctx, req)
	default:
		if cacheHit {
			cached.StrategyUsed = models.StrategyFallback
			return cached, nil
		}
		return models.SearchResult{StrategyUsed: models.StrategyFallback}, nil
	}
}

// withSession acquires one session with req.Deadline as the acquire deadline
// (5s from now when the request has none), guarantees release on every exit
// path, and retries the acquire once, immediately, if it fails with
// PoolExhausted.
func (o *Orchestrator) withSession(ctx context.Context, req *models.SearchRequest, fn func(*poolctl.Session) error) error {
	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(5 * time.Second)
	}

	session, err := o.pool.Acquire(ctx, deadline)
	if apierr.Is(err, apierr.PoolExhausted) {
		session, err = o.pool.Acquire(ctx, deadline)
	}
	if err != nil {
		return err
	}
	defer session.Release()

	return fn(session)
}

func (o *Orchestrator) runSimplified(ctx context.Context, req *models.SearchRequest) (models.SearchResult, error) {
	var hits []models.VectorHit
	err := o.withSession(ctx, req, func(s *poolctl.Session) error {
		h, e := o.vector.Search(ctx, s.Conn(), req, req.Embedding)
		hits = h
		return e
	})
	if err != nil {
		return models.SearchResult{}, err
	}

	items := make([]models.ResultItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, models.ResultItem{Property: h.Property, Similarity: h.Similarity})
	}
	return models.SearchResult{
		Items:        items,
		Total:        len(items),
		StrategyUsed: models.StrategySimplified,
		Metadata:     models.ResultMetadata{OptimizationsUsed: []string{"minimal_columns", "no_joins"}},
	}, nil
}

func (o *Orchestrator) runText(ctx context.Context, req *models.SearchRequest) (models.SearchResult, error) {
	resp := o.text.Search(ctx, req)
	items := make([]models.ResultItem, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		items = append(items, models.ResultItem{Property: models.Property{ID: h.PropertyID}, Relevance: float64(1)})
	}
	return models.SearchResult{
		Items:        items,
		Total:        resp.EstimatedTotal,
		StrategyUsed: models.StrategyText,
		Metadata:     models.ResultMetadata{TextResultCount: len(resp.Hits)},
	}, nil
}

func (o *Orchestrator) runVector(ctx context.Context, req *models.SearchRequest) (models.SearchResult, error) {
	embedding, err := o.resolveEmbedding(ctx, req)
	if err != nil {
		return models.SearchResult{}, err
	}

	var hits []models.VectorHit
	err = o.withSession(ctx, req, func(s *poolctl.Session) error {
		h, e := o.vector.Search(ctx, s.Conn(), req, embedding)
		hits = h
		return e
	})
	if err != nil {
		return models.SearchResult{}, err
	}

	items := make([]models.ResultItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, models.ResultItem{Property: h.Property, Similarity: h.Similarity})
	}
	return models.SearchResult{
		Items:        items,
		Total:        len(items),
		StrategyUsed: models.StrategyVector,
		Metadata:     models.ResultMetadata{VectorResultCount: len(hits)},
	}, nil
}

// runHybrid runs the text and vector branches concurrently under a shared
// deadline (request deadline minus the safety margin). If either branch
// fails or exceeds the shared deadline, its contribution is zero; the
// other contributes alone. If neither branch contributes a hit, runHybrid
// itself returns an empty result tagged fallback.
func (o *Orchestrator) runHybrid(ctx context.Context, req *models.SearchRequest) (models.SearchResult, error) {
	deadline := req.Deadline
	if !deadline.IsZero() {
		deadline = deadline.Add(-hybridSafetyMargin)
	}
	hctx := ctx
	var cancel context.CancelFunc
	if !deadline.IsZero() {
		hctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	var wg sync.WaitGroup
	var textResp models.TextSearchResponse
	var vectorHits []models.VectorHit
	var vectorErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		textResp = o.text.Search(hctx, req)
	}()
	go func() {
		defer wg.Done()
		embedding, err := o.resolveEmbedding(hctx, req)
		if err != nil {
			vectorErr = err
			return
		}
		vectorErr = o.withSession(hctx, req, func(s *poolctl.Session) error {
			h, e := o.vector.Search(hctx, s.Conn(), req, embedding)
			vectorHits = h
			return e
		})
	}()
	wg.Wait()

	if vectorErr != nil {
		vectorHits = nil
	}
	if len(textResp.Hits) == 0 && len(vectorHits) == 0 {
		return models.SearchResult{StrategyUsed: models.StrategyFallback}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	items := mergeHybrid(textResp.Hits, vectorHits, limit)

	return models.SearchResult{
		Items:        items,
		Total:        len(items),
		StrategyUsed: models.StrategyHybrid,
		Metadata: models.ResultMetadata{
			TextResultCount:   len(textResp.Hits),
			VectorResultCount: len(vectorHits),
		},
	}, nil
}

func (o *Orchestrator) resolveEmbedding(ctx context.Context, req *models.SearchRequest) ([]float32, error) {
	if req.HasEmbedding() {
		return req.Embedding, nil
	}
	if o.embed == nil || req.QueryText == "" {
		return nil, apierr.New(apierr.InvalidRequest, "no embedding available for request")
	}
	vecs, err := o.embed.Embed(ctx, []string{req.QueryText})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, apierr.New(apierr.UpstreamUnavailable, "embedding client returned no vectors")
	}
	return vecs[0], nil
}
