package service

import (
	"context"

	"github.com/quackform/vibes/pkg/embeddings"
)

// EmbeddingClient generates embedding vectors for text.
// Implemented by provider-specific clients (OpenAI, Google Gemini) and FallbackEmbeddingClient.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

// FallbackEmbeddingClient produces deterministic SHA-512 vectors without calling a provider.
// It is used for offline runs, placeholder vibes and tests.
type FallbackEmbeddingClient struct {
	dimension int
}

// NewFallbackEmbeddingClient creates a fallback client producing vectors of the given dimension.
func NewFallbackEmbeddingClient(dimension int) *FallbackEmbeddingClient {
	return &FallbackEmbeddingClient{dimension: dimension}
}

// Model returns the model tag stored with fallback vectors.
func (c *FallbackEmbeddingClient) Model() string {
	return embeddings.DeterministicModel(c.dimension)
}

// CreateEmbedding returns the deterministic vector for input. It never fails.
func (c *FallbackEmbeddingClient) CreateEmbedding(_ context.Context, input string) ([]float32, error) {
	return embeddings.Deterministic(input, c.dimension), nil
}

var _ EmbeddingClient = (*FallbackEmbeddingClient)(nil)
