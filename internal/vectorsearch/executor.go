// Package vectorsearch executes the parametric similarity query built by
// querybuilder against an acquired session, and applies the bounded
// relevance re-ranking described in §4.7.
package vectorsearch

import (
	"context"
	"database/sql"
	"sort"

	"github.com/propsearch/poolcore/internal/models"
	"github.com/propsearch/poolcore/internal/querybuilder"
)

const defaultSimilarityThreshold = 0.7

// RelevanceBooster assigns an additional per-row weight (e.g. for featured
// listings or recent postings). It never participates in distance
// computation; it only adjusts ordering within the bound Executor enforces.
type RelevanceBooster func(models.Property) float64

// Executor runs similarity queries against a *sql.Conn obtained from the
// Pool Controller. It does not acquire or release sessions itself: the
// orchestrator owns the scoped acquisition lifecycle.
type Executor struct {
	SimilarityThreshold float64
	Booster             RelevanceBooster
}

// New builds an Executor with the default similarity threshold and no
// booster.
func New() *Executor {
	return &Executor{SimilarityThreshold: defaultSimilarityThreshold}
}

// Search runs the built query over conn and returns ranked hits.
func (e *Executor) Search(ctx context.Context, conn *sql.Conn, req *models.SearchRequest, embedding []float32) ([]models.VectorHit, error) {
	q := querybuilder.Build(req, embedding, e.SimilarityThreshold)

	rows, err := conn.QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []models.VectorHit
	for rows.Next() {
		var p models.Property
		var distance float64
		var features, images []byte
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.Location, &p.PropertyType,
			&p.Bedrooms, &p.Bathrooms, &p.Size, &features, &images, &p.CreatedAt, &p.UpdatedAt, &distance); err != nil {
			return nil, err
		}
		hits = append(hits, models.VectorHit{Property: p, Similarity: 1 - distance})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	e.applyBoost(hits)
	return hits, nil
}

// applyBoost re-sorts hits using the booster, constrained to never move a
// row past the first 20% of the result set (§4.7): ranking stays
// explainable, distance order dominates beyond that window.
func (e *Executor) applyBoost(hits []models.VectorHit) {
	if e.Booster == nil || len(hits) == 0 {
		return
	}

	boundary := len(hits) / 5
	if boundary < 1 {
		boundary = 1
	}
	window := hits[:boundary]

	sort.SliceStable(window, func(i, j int) bool {
		bi := window[i].Similarity + e.Booster(window[i].Property)
		bj := window[j].Similarity + e.Booster(window[j].Property)
		return bi > bj
	})
}
