package googleai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGeminiServer answers embedding calls with values and records the request path.
func newGeminiServer(t *testing.T, values []float32, gotPath *string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotPath = r.URL.Path

		if !strings.Contains(strings.ToLower(r.URL.Path), "embedcontent") {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": []map[string]any{{"values": values}},
			"embedding":  map[string]any{"values": values},
		})
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestClient_CreateEmbedding(t *testing.T) {
	var path string

	srv := newGeminiServer(t, []float32{0, 1, 0}, &path)

	client, err := NewClient(context.Background(), "test-key",
		WithBaseURL(srv.URL+"/"),
		WithModel("text-embedding-004"),
		WithDimensions(3),
	)
	require.NoError(t, err)

	vec, err := client.CreateEmbedding(context.Background(), "dance salsa")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, vec)
	assert.Contains(t, path, "text-embedding-004")
}

func TestClient_CreateEmbedding_dimensionMismatch(t *testing.T) {
	var path string

	srv := newGeminiServer(t, []float32{1, 0}, &path)

	client, err := NewClient(context.Background(), "test-key", WithBaseURL(srv.URL+"/"), WithDimensions(3))
	require.NoError(t, err)

	_, err = client.CreateEmbedding(context.Background(), "dance salsa")
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestClient_CreateEmbedding_validation(t *testing.T) {
	client, err := NewClient(context.Background(), "test-key", WithDimensions(0))
	require.NoError(t, err)

	_, err = client.CreateEmbedding(context.Background(), " ")
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = client.CreateEmbedding(context.Background(), "chess")
	require.ErrorIs(t, err, ErrInvalidDims)
}

func TestModel_default(t *testing.T) {
	client, err := NewClient(context.Background(), "test-key", WithModel(""))
	require.NoError(t, err)
	assert.Equal(t, "gemini-embedding-001", client.Model())
}
