package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsearch/poolcore/internal/apierr"
)

func vectorServer(t *testing.T, failures int) *httptest.Server {
	t.Helper()
	calls := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Texts []string `json:"texts"`
			Model string   `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		vecs := make([][]float32, len(req.Texts))
		for i := range vecs {
			vecs[i] = []float32{1, 2, 3}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": vecs})
	}))
}

func TestEmbedReturnsVectorsFromHealthyEndpoint(t *testing.T) {
	srv := vectorServer(t, 0)
	defer srv.Close()

	c := New(Config{Endpoints: []string{srv.URL}, Retries: 2}, nil, nil)
	vecs, err := c.Embed(context.Background(), []string{"two bedroom flat"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, []float32{1, 2, 3}, vecs[0])
}

func TestEmbedFailsOverToSecondEndpoint(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	good := vectorServer(t, 0)
	defer good.Close()

	c := New(Config{Endpoints: []string{bad.URL, good.URL}, Retries: 1}, nil, nil)
	vecs, err := c.Embed(context.Background(), []string{"loft with parking"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
}

func TestEmbedReturnsUpstreamUnavailableWhenAllEndpointsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	c := New(Config{Endpoints: []string{bad.URL}, Retries: 1}, nil, nil)
	_, err := c.Embed(context.Background(), []string{"studio downtown"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.UpstreamUnavailable))
}

func TestEmbedChunksLargeBatches(t *testing.T) {
	srv := vectorServer(t, 0)
	defer srv.Close()

	c := New(Config{Endpoints: []string{srv.URL}, Retries: 1}, nil, nil)
	texts := make([]string, 120)
	for i := range texts {
		texts[i] = "unit"
	}
	vecs, err := c.Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, 120)
}
