package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/propsearch/poolcore/internal/cache"
	"github.com/propsearch/poolcore/internal/config"
	"github.com/propsearch/poolcore/internal/health"
	"github.com/propsearch/poolcore/internal/metrics"
	"github.com/propsearch/poolcore/internal/models"
	"github.com/propsearch/poolcore/internal/poolctl"
	"github.com/propsearch/poolcore/internal/textsearch"
	"github.com/propsearch/poolcore/internal/vectorsearch"
)

func testStore(t *testing.T) *config.Store {
	t.Helper()
	return config.NewStore(&config.PoolConfig{
		ConnectionEndpoint: "test",
		IdleTimeout:        time.Minute,
		ConnectTimeout:     time.Second,
		Autoscaling: config.AutoscalingPolicy{
			Enabled:            true,
			MinSessions:        2,
			MaxSessions:        10,
			ScaleUpThreshold:   0.7,
			ScaleDownThreshold: 0.3,
			ScaleUpStep:        2,
			ScaleDownStep:      1,
			Cooldown:           30 * time.Second,
		},
	})
}

func vectorRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "description", "price", "location", "property_type",
		"bedrooms", "bathrooms", "size", "features", "images", "created_at", "updated_at", "distance",
	}).AddRow("B", "Condo", "d", 300000.0, "austin", "condo", 2, 1, 800.0, []byte("{}"), []byte("{}"), time.Now(), time.Now(), 0.1).
		AddRow("D", "House", "d", 500000.0, "austin", "house", 3, 2, 1500.0, []byte("{}"), []byte("{}"), time.Now(), time.Now(), 0.2)
}

func TestSearchRunsHybridAndMergesResults(t *testing.T) {
	textSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":[{"property_id":"A"},{"property_id":"B"},{"property_id":"C"}],"estimatedTotalHits":3}`))
	}))
	defer textSrv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(vectorRows())

	store := testStore(t)
	agg := metrics.New()
	pool := poolctl.OpenWithDB(db, store, agg, nil)
	resultCache := cache.New(5*time.Minute, 100)
	defer resultCache.Stop()

	orch := New(pool, agg, health.New(), resultCache, store, nil,
		textsearch.New(textsearch.Config{BaseURL: textSrv.URL}, nil), vectorsearch.New(), nil)

	req := &models.SearchRequest{
		QueryText: "loft",
		Embedding: []float32{0.1, 0.2, 0.3},
		Limit:     10,
		Deadline:  time.Now().Add(2 * time.Second),
	}

	result, err := orch.Search(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.StrategyHybrid, result.StrategyUsed)
	require.NotEmpty(t, result.Items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchReturnsCachedStrategyOnSecondCall(t *testing.T) {
	textSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":[],"estimatedTotalHits":0}`))
	}))
	defer textSrv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(vectorRows())

	store := testStore(t)
	agg := metrics.New()
	// Force high utilization so the strategy table selects simplified/cached.
	agg.RecordPoolDelta(metrics.PoolDelta{Total: 9, Idle: 0, Waiting: 0, CurrentMax: 10})
	pool := poolctl.OpenWithDB(db, store, agg, nil)
	resultCache := cache.New(5*time.Minute, 100)
	defer resultCache.Stop()

	orch := New(pool, agg, health.New(), resultCache, store, nil,
		textsearch.New(textsearch.Config{BaseURL: textSrv.URL}, nil), vectorsearch.New(), nil)

	req := &models.SearchRequest{
		QueryText: "loft",
		Embedding: []float32{0.1, 0.2, 0.3},
		Limit:     10,
		Deadline:  time.Now().Add(2 * time.Second),
	}

	first, err := orch.Search(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.StrategySimplified, first.StrategyUsed)

	// The first search's acquire and release republished the pool's real
	// counters (one session of ten); force high utilization again.
	agg.RecordPoolDelta(metrics.PoolDelta{Total: 9, Idle: 0, Waiting: 0, CurrentMax: 10})

	second, err := orch.Search(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.StrategyCached, second.StrategyUsed)
}
