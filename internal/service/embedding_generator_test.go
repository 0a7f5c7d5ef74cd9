package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackform/vibes/internal/normalize"
	"github.com/quackform/vibes/internal/vibeerrors"
	"github.com/quackform/vibes/pkg/cache"
	"github.com/quackform/vibes/pkg/embeddings"
)

type mockEmbeddingClient struct {
	createFn func(ctx context.Context, input string) ([]float32, error)
	calls    atomic.Int32
	inputs   []string
}

func (m *mockEmbeddingClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	m.calls.Add(1)
	m.inputs = append(m.inputs, input)

	return m.createFn(ctx, input)
}

func fixedVector(vec ...float32) func(context.Context, string) ([]float32, error) {
	return func(context.Context, string) ([]float32, error) {
		out := make([]float32, len(vec))
		copy(out, vec)

		return out, nil
	}
}

type mockCacheMetrics struct {
	hits   int
	misses int
}

func (m *mockCacheMetrics) RecordHit(context.Context, string)  { m.hits++ }
func (m *mockCacheMetrics) RecordMiss(context.Context, string) { m.misses++ }

func newTestGenerator(client EmbeddingClient, dim int) *EmbeddingGenerator {
	return NewEmbeddingGenerator(EmbeddingGeneratorParams{
		Client:     client,
		Normalizer: normalize.New(),
		Provider:   "openai",
		Model:      "test-model",
		Dimension:  dim,
	})
}

func TestEmbeddingGenerator_Embed(t *testing.T) {
	t.Run("normalizes the text then the vector", func(t *testing.T) {
		client := &mockEmbeddingClient{createFn: fixedVector(3, 4, 0)}
		g := newTestGenerator(client, 3)

		emb, err := g.Embed(context.Background(), "  I want to Cook Pasta!! ", false)
		require.NoError(t, err)

		assert.Equal(t, []string{"cook pasta"}, client.inputs)
		assert.InDeltaSlice(t, []float32{0.6, 0.8, 0}, emb.Vector, 1e-6)
		assert.InDelta(t, 1.0, embeddings.Norm(emb.Vector), 1e-6)
		assert.Equal(t, "test-model", emb.Model)
	})

	t.Run("already normalized text is sent as-is", func(t *testing.T) {
		client := &mockEmbeddingClient{createFn: fixedVector(1, 0, 0)}
		g := newTestGenerator(client, 3)

		_, err := g.Embed(context.Background(), "I want to cook", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"I want to cook"}, client.inputs)
	})

	t.Run("normalization failure is an embedding error", func(t *testing.T) {
		client := &mockEmbeddingClient{createFn: fixedVector(1, 0, 0)}
		g := newTestGenerator(client, 3)

		_, err := g.Embed(context.Background(), "   ", false)
		require.ErrorIs(t, err, vibeerrors.ErrEmbedding)
		require.ErrorIs(t, err, vibeerrors.ErrNormalization)
		assert.Zero(t, client.calls.Load())
	})

	t.Run("provider failure keeps the cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		client := &mockEmbeddingClient{createFn: func(context.Context, string) ([]float32, error) {
			return nil, cause
		}}
		g := newTestGenerator(client, 3)

		_, err := g.Embed(context.Background(), "chess", true)
		require.ErrorIs(t, err, vibeerrors.ErrEmbedding)
		require.ErrorIs(t, err, cause)

		var embErr *vibeerrors.EmbeddingError
		require.ErrorAs(t, err, &embErr)
		assert.Equal(t, "chess", embErr.Text)
	})

	t.Run("rejects bad vectors", func(t *testing.T) {
		tests := []struct {
			name string
			vec  []float32
		}{
			{"empty", []float32{}},
			{"wrong dimension", []float32{1, 0}},
			{"zero norm", []float32{0, 0, 0}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				g := newTestGenerator(&mockEmbeddingClient{createFn: fixedVector(tt.vec...)}, 3)

				_, err := g.Embed(context.Background(), "chess", true)
				require.ErrorIs(t, err, vibeerrors.ErrEmbedding)
			})
		}
	})

	t.Run("timeout bounds the provider call", func(t *testing.T) {
		client := &mockEmbeddingClient{createFn: func(ctx context.Context, _ string) ([]float32, error) {
			<-ctx.Done()

			return nil, ctx.Err()
		}}
		g := NewEmbeddingGenerator(EmbeddingGeneratorParams{
			Client:     client,
			Normalizer: normalize.New(),
			Model:      "test-model",
			Dimension:  3,
			Timeout:    10 * time.Millisecond,
		})

		_, err := g.Embed(context.Background(), "chess", true)
		require.ErrorIs(t, err, vibeerrors.ErrEmbedding)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestEmbeddingGenerator_EmbedQuery_cache(t *testing.T) {
	queryCache, err := cache.NewLoaderCache[[]float32](16)
	require.NoError(t, err)

	client := &mockEmbeddingClient{createFn: fixedVector(0, 2, 0)}
	metrics := &mockCacheMetrics{}
	g := NewEmbeddingGenerator(EmbeddingGeneratorParams{
		Client:       client,
		Normalizer:   normalize.New(),
		Model:        "test-model",
		Dimension:    3,
		QueryCache:   queryCache,
		CacheMetrics: metrics,
	})
	ctx := context.Background()

	first, err := g.EmbedQuery(ctx, "I want to cook")
	require.NoError(t, err)

	// Mutating a returned vector must not leak into the cache.
	first.Vector[1] = 42

	second, err := g.EmbedQuery(ctx, "cook.")
	require.NoError(t, err)

	assert.Equal(t, int32(1), client.calls.Load(), "same normalized text should hit the cache")
	assert.Equal(t, []float32{0, 1, 0}, second.Vector)
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
}

func TestEmbeddingGenerator_EmbedQuery_failedLoadNotCached(t *testing.T) {
	queryCache, err := cache.NewLoaderCache[[]float32](16)
	require.NoError(t, err)

	fail := true
	client := &mockEmbeddingClient{createFn: func(context.Context, string) ([]float32, error) {
		if fail {
			return nil, errors.New("rate limited")
		}

		return []float32{1, 0, 0}, nil
	}}
	g := NewEmbeddingGenerator(EmbeddingGeneratorParams{
		Client:     client,
		Normalizer: normalize.New(),
		Dimension:  3,
		QueryCache: queryCache,
	})

	_, err = g.EmbedQuery(context.Background(), "chess")
	require.ErrorIs(t, err, vibeerrors.ErrEmbedding)

	fail = false

	emb, err := g.EmbedQuery(context.Background(), "chess")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, emb.Vector)
}

func TestFallbackEmbeddingClient(t *testing.T) {
	client := NewFallbackEmbeddingClient(64)
	g := NewEmbeddingGenerator(EmbeddingGeneratorParams{
		Client:     client,
		Normalizer: normalize.New(),
		Provider:   "fallback",
		Model:      client.Model(),
		Dimension:  64,
	})

	a, err := g.Embed(context.Background(), "dance salsa", true)
	require.NoError(t, err)

	b, err := g.Embed(context.Background(), "dance salsa", true)
	require.NoError(t, err)

	assert.Equal(t, a.Vector, b.Vector)
	assert.Equal(t, "fallback-sha512-64", a.Model)
	assert.InDelta(t, 1.0, embeddings.Norm(a.Vector), 1e-6)
}
