package vectorsearch

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/propsearch/poolcore/internal/models"
)

func TestSearchScansRowsAndComputesSimilarity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "title", "description", "price", "location", "property_type",
		"bedrooms", "bathrooms", "size", "features", "images", "created_at", "updated_at", "distance",
	}).AddRow("p1", "Loft", "desc", 450000.0, "austin", "condo", 2, 1, 900.0, []byte("{}"), []byte("{}"), time.Now(), time.Now(), 0.1)

	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	e := New()
	hits, err := e.Search(context.Background(), conn, &models.SearchRequest{Location: "austin", Limit: 10}, []float32{0.1, 0.2})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.InDelta(t, 0.9, hits[0].Similarity, 0.0001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyBoostReordersOnlyWithinFirst20Percent(t *testing.T) {
	hits := make([]models.VectorHit, 10)
	for i := range hits {
		hits[i] = models.VectorHit{
			Property:   models.Property{ID: string(rune('a' + i))},
			Similarity: 1 - float64(i)*0.05,
		}
	}
	original := append([]models.VectorHit(nil), hits...)

	// boost the second-ranked row ("b", within the first 20%) above the
	// first-ranked row ("a").
	e := &Executor{Booster: func(p models.Property) float64 {
		if p.ID == "b" {
			return 1
		}
		return 0
	}}
	e.applyBoost(hits)

	require.Equal(t, "b", hits[0].Property.ID)
	require.Equal(t, "a", hits[1].Property.ID)

	// everything past the first 20% (index >= 2) is untouched.
	for i := 2; i < len(hits); i++ {
		require.Equal(t, original[i].Property.ID, hits[i].Property.ID)
	}
}
