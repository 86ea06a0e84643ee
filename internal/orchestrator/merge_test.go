package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsearch/poolcore/internal/models"
)

func TestMergeHybridWeightsBothSources(t *testing.T) {
	text := []models.TextHit{{PropertyID: "A"}, {PropertyID: "B"}, {PropertyID: "C"}}
	vector := []models.VectorHit{
		{Property: models.Property{ID: "B"}, Similarity: 0.9},
		{Property: models.Property{ID: "D"}, Similarity: 0.8},
	}

	items := mergeHybrid(text, vector, 10)
	require.Len(t, items, 4)

	byID := make(map[string]models.ResultItem, len(items))
	for _, it := range items {
		byID[it.Property.ID] = it
	}

	assert.InDelta(t, 0.76, byID["B"].Combined, 0.001)
	assert.InDelta(t, 0.32, byID["D"].Combined, 0.001)
	assert.Greater(t, byID["D"].Combined, byID["C"].Combined)
}

func TestMergeHybridPreservesSingleSourceOrderWhenOtherIsEmpty(t *testing.T) {
	text := []models.TextHit{{PropertyID: "A"}, {PropertyID: "B"}, {PropertyID: "C"}}

	items := mergeHybrid(text, nil, 10)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{items[0].Property.ID, items[1].Property.ID, items[2].Property.ID})
}

func TestMergeHybridTruncatesToLimit(t *testing.T) {
	text := []models.TextHit{{PropertyID: "A"}, {PropertyID: "B"}, {PropertyID: "C"}}
	items := mergeHybrid(text, nil, 2)
	assert.Len(t, items, 2)
}

// TestMergeHybridScenarioThreeOrdering pins down the deliberate resolution
// of the worked example's internal inconsistency (DESIGN.md, Open Question
// decisions): the prose rule scales every text-only hit by 0.6 and every
// vector-only hit by 0.4 uniformly, which yields B,A,D,C rather than the
// literal A,B,D,C the scenario's own numbers assumed for A. A's raw score
// (1.0) ties the scaled interpretation (0.6) at rank only if the formula is
// applied inconsistently; applying it uniformly puts B ahead of A.
func TestMergeHybridScenarioThreeOrdering(t *testing.T) {
	text := []models.TextHit{{PropertyID: "A"}, {PropertyID: "B"}, {PropertyID: "C"}}
	vector := []models.VectorHit{
		{Property: models.Property{ID: "B"}, Similarity: 0.9},
		{Property: models.Property{ID: "D"}, Similarity: 0.8},
	}

	items := mergeHybrid(text, vector, 10)
	require.Len(t, items, 4)

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.Property.ID
	}
	assert.Equal(t, []string{"B", "A", "D", "C"}, ids)
}
