package querybuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/propsearch/poolcore/internal/models"
)

func TestBuildAppliesFiltersAndDefaultLimit(t *testing.T) {
	req := &models.SearchRequest{
		Location:     "austin",
		PropertyType: "house",
		Bedrooms:     3,
		PriceRange:   &models.PriceRange{Min: 200000, Max: 600000},
	}
	q := Build(req, []float32{0.1, 0.2, 0.3}, 0)

	assert.Contains(t, q.SQL, "location = $")
	assert.Contains(t, q.SQL, "property_type = $")
	assert.Contains(t, q.SQL, "bedrooms = $")
	assert.Contains(t, q.SQL, "price BETWEEN $")
	assert.Contains(t, q.SQL, "ORDER BY distance ASC")
	assert.Contains(t, q.SQL, "LIMIT $")
	assert.Contains(t, q.Hints, "ivfflat_embedding_idx")

	// vector literal, max distance, location, type, bedrooms, price lo/hi, limit, offset
	assert.Equal(t, 9, len(q.Params))
}

func TestBuildIsDeterministic(t *testing.T) {
	req := &models.SearchRequest{Location: "austin", Limit: 10, Offset: 5}
	emb := []float32{0.5, 0.25}

	a := Build(req, emb, 0.8)
	b := Build(req, emb, 0.8)
	assert.Equal(t, a, b)
}

func TestBuildDefaultsLimitTo20(t *testing.T) {
	req := &models.SearchRequest{}
	q := Build(req, nil, 0.7)
	assert.Equal(t, 20, q.Params[len(q.Params)-2])
}
