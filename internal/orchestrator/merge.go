package orchestrator

import (
	"sort"

	"github.com/propsearch/poolcore/internal/models"
)

// mergeHybrid combines text and vector hits per §4.9: text hits receive
// text_score = 1 - rank/|text_hits|; vector hits receive
// vector_score = 1 - distance (already carried as Similarity). Items in
// both lists combine as 0.6*text + 0.4*vector; items from only one source
// are scaled by that source's weight alone, which keeps the combined score
// a monotonic transform of the single source's score and so preserves that
// source's relative order when the other source is empty.
func mergeHybrid(textHits []models.TextHit, vectorHits []models.VectorHit, limit int) []models.ResultItem {
	textScore := make(map[string]float64, len(textHits))
	n := len(textHits)
	for i, h := range textHits {
		textScore[h.PropertyID] = 1 - float64(i)/float64(n)
	}

	vectorScore := make(map[string]float64, len(vectorHits))
	vectorProp := make(map[string]models.Property, len(vectorHits))
	for _, h := range vectorHits {
		vectorScore[h.Property.ID] = h.Similarity
		vectorProp[h.Property.ID] = h.Property
	}

	seen := make(map[string]bool, len(textScore)+len(vectorScore))
	var order []string
	for _, h := range textHits {
		if !seen[h.PropertyID] {
			seen[h.PropertyID] = true
			order = append(order, h.PropertyID)
		}
	}
	for _, h := range vectorHits {
		if !seen[h.Property.ID] {
			seen[h.Property.ID] = true
			order = append(order, h.Property.ID)
		}
	}

	items := make([]models.ResultItem, 0, len(order))
	for _, id := range order {
		t, hasT := textScore[id]
		v, hasV := vectorScore[id]

		var combined float64
		switch {
		case hasT && hasV:
			combined = 0.6*t + 0.4*v
		case hasV:
			combined = 0.4 * v
		case hasT:
			combined = 0.6 * t
		}

		prop, ok := vectorProp[id]
		if !ok {
			prop = models.Property{ID: id}
		}

		items = append(items, models.ResultItem{
			Property:   prop,
			Relevance:  t,
			Similarity: v,
			Combined:   combined,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Combined != items[j].Combined {
			return items[i].Combined > items[j].Combined
		}
		return items[i].Property.ID < items[j].Property.ID
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
