package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsearch/poolcore/internal/models"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Stop()

	req := &models.SearchRequest{QueryText: "loft", Limit: 20}
	fp := Fingerprint(req)
	c.Put(fp, models.SearchResult{Total: 3})

	got, ok := c.Get(fp)
	require.True(t, ok)
	assert.Equal(t, 3, got.Total)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Stop()

	_, ok := c.Get("nonexistent")
	assert.False(t, ok)
}

func TestEntryExpiresByTTL(t *testing.T) {
	c := New(time.Millisecond, 10)
	defer c.Stop()

	c.Put("k", models.SearchResult{Total: 1})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(time.Minute, 2)
	defer c.Stop()

	c.Put("a", models.SearchResult{Total: 1})
	c.Put("b", models.SearchResult{Total: 2})
	c.Get("a") // touch a so b becomes the least-recently-used entry
	c.Put("c", models.SearchResult{Total: 3})

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	assert.True(t, aOK)
	assert.False(t, bOK)
	assert.True(t, cOK)
}

func TestFingerprintIgnoresEmbeddingButNotText(t *testing.T) {
	base := &models.SearchRequest{QueryText: "sunny loft", Location: "Austin", Limit: 20}
	withEmbedding := &models.SearchRequest{QueryText: "sunny loft", Location: "Austin", Limit: 20, Embedding: []float32{0.1, 0.2}}
	differentText := &models.SearchRequest{QueryText: "dark basement", Location: "Austin", Limit: 20}

	assert.Equal(t, Fingerprint(base), Fingerprint(withEmbedding))
	assert.NotEqual(t, Fingerprint(base), Fingerprint(differentText))
}

func TestFingerprintIgnoresFeatureOrder(t *testing.T) {
	a := &models.SearchRequest{QueryText: "loft", Features: []string{"pool", "garage"}}
	b := &models.SearchRequest{QueryText: "loft", Features: []string{"garage", "pool"}}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}
