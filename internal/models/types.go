// Package models holds the request, result, and domain value types shared
// across the pool, search, and orchestration packages.
package models

import "time"

// SortField is the field a Search Request is ordered by.
type SortField string

const (
	SortRelevance SortField = "relevance"
	SortPrice     SortField = "price"
	SortSize      SortField = "size"
	SortDate      SortField = "date"
)

// SortOrder is the direction of a Search Request's ordering.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Strategy identifies the execution plan chosen by the orchestrator for a
// given request.
type Strategy string

const (
	StrategyHybrid     Strategy = "hybrid"
	StrategyText       Strategy = "text"
	StrategyVector     Strategy = "vector"
	StrategyCached     Strategy = "cached"
	StrategyFallback   Strategy = "fallback"
	StrategySimplified Strategy = "simplified"
	StrategyOptimized  Strategy = "optimized"
)

// PriceRange bounds a property price filter. Both bounds are always applied
// as an inclusive range; a zero bound filters on zero rather than leaving
// that side open.
type PriceRange struct {
	Min float64
	Max float64
}

// SearchRequest is the normalized input to the Search Orchestrator.
type SearchRequest struct {
	QueryText    string
	Location     string
	PriceRange   *PriceRange
	PropertyType string
	Bedrooms     int
	Bathrooms    int
	Features     []string
	Embedding    []float32

	Limit     int
	Offset    int
	SortBy    SortField
	SortOrder SortOrder
	Deadline  time.Time
}

// HasEmbedding reports whether a precomputed embedding was supplied on the
// request (as opposed to one the orchestrator must fetch).
func (r *SearchRequest) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// Property is a single listing record as read from the properties table.
type Property struct {
	ID           string
	Title        string
	Description  string
	Price        float64
	Location     string
	PropertyType string
	Bedrooms     int
	Bathrooms    int
	Size         float64
	Features     []string
	Images       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ResultItem wraps a Property with the scores assigned by whichever search
// path produced it.
type ResultItem struct {
	Property   Property
	Similarity float64 // set by the vector path; 0 if not applicable
	Relevance  float64 // set by the text path; 0 if not applicable
	Combined   float64 // set by the hybrid merge
}

// ResultMetadata carries execution-time diagnostics that are not part of
// the result set itself.
type ResultMetadata struct {
	PoolUtilization    float64
	OptimizationsUsed  []string
	CacheHit           bool
	IndexesHinted      []string
	TextResultCount    int
	VectorResultCount  int
}

// SearchResult is the output of the Search Orchestrator.
type SearchResult struct {
	Items        []ResultItem
	Total        int
	StrategyUsed Strategy
	Elapsed      time.Duration
	Metadata     ResultMetadata
}

// TextHit is a single record returned by the Text Search Client.
type TextHit struct {
	PropertyID string `json:"property_id"`
	Rank       int    `json:"rank"`
}

// TextSearchResponse is the Text Search Client's response shape, translated
// from the remote service's `{hits, estimatedTotalHits, processingTimeMs}`
// payload (§6) by the Text Search Client — ProcessingTime here is already a
// time.Duration, not the wire's millisecond integer.
type TextSearchResponse struct {
	Hits           []TextHit     `json:"hits"`
	EstimatedTotal int           `json:"estimatedTotalHits"`
	ProcessingTime time.Duration `json:"-"`
}

// VectorHit is a single row produced by the Vector Search Executor.
type VectorHit struct {
	Property   Property
	Similarity float64
}
