// Package querybuilder renders the parametric vector-similarity query used
// by the Vector Search Executor (§4.7). It is a pure function: same inputs
// always produce the same {sql, params, hints} triple, with no I/O.
package querybuilder

import (
	"fmt"
	"strings"

	"github.com/propsearch/poolcore/internal/models"
)

const defaultSimilarityThreshold = 0.7

// Query is the rendered statement plus the positional parameters that fill
// its placeholders, and the planner hints the caller may log or surface in
// ResultMetadata.
type Query struct {
	SQL    string
	Params []interface{}
	Hints  []string
}

// Build renders a similarity query against the properties table: rows with
// vector distance below (1 - similarity_threshold) are selected, equality
// and range filters are applied, results are ordered by distance ascending,
// then LIMIT/OFFSET.
func Build(req *models.SearchRequest, embedding []float32, similarityThreshold float64) Query {
	if similarityThreshold <= 0 {
		similarityThreshold = defaultSimilarityThreshold
	}
	maxDistance := 1 - similarityThreshold

	var b strings.Builder
	var params []interface{}
	var hints []string

	b.WriteString("SELECT id, title, description, price, location, property_type, bedrooms, bathrooms, size, features, images, created_at, updated_at, ")
	params = append(params, vectorLiteral(embedding))
	b.WriteString(fmt.Sprintf("(embedding <=> $%d) AS distance FROM properties WHERE (embedding <=> $%d) < $%d", len(params), len(params), len(params)+1))
	params = append(params, maxDistance)
	hints = append(hints, "ivfflat_embedding_idx")

	if req.Location != "" {
		params = append(params, req.Location)
		fmt.Fprintf(&b, " AND location = $%d", len(params))
		hints = append(hints, "btree_location_idx")
	}
	if req.PropertyType != "" {
		params = append(params, req.PropertyType)
		fmt.Fprintf(&b, " AND property_type = $%d", len(params))
	}
	if req.Bedrooms > 0 {
		params = append(params, req.Bedrooms)
		fmt.Fprintf(&b, " AND bedrooms = $%d", len(params))
	}
	if req.Bathrooms > 0 {
		params = append(params, req.Bathrooms)
		fmt.Fprintf(&b, " AND bathrooms = $%d", len(params))
	}
	if req.PriceRange != nil {
		params = append(params, req.PriceRange.Min, req.PriceRange.Max)
		fmt.Fprintf(&b, " AND price BETWEEN $%d AND $%d", len(params)-1, len(params))
		hints = append(hints, "btree_price_idx")
	}

	b.WriteString(" ORDER BY distance ASC")

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	params = append(params, limit)
	fmt.Fprintf(&b, " LIMIT $%d", len(params))

	params = append(params, req.Offset)
	fmt.Fprintf(&b, " OFFSET $%d", len(params))

	return Query{SQL: b.String(), Params: params, Hints: hints}
}

// vectorLiteral renders an embedding as the pgvector literal form
// "[v1,v2,...]" that lib/pq passes through as a plain string parameter.
func vectorLiteral(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
