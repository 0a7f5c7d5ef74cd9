package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quackform/vibes/internal/models"
	"github.com/quackform/vibes/internal/observability"
	"github.com/quackform/vibes/internal/vibeerrors"
	"github.com/quackform/vibes/pkg/cache"
	"github.com/quackform/vibes/pkg/embeddings"
)

const tracerName = "github.com/quackform/vibes/internal/service"

// TextNormalizer turns raw user text into its canonical form.
// Implemented by *normalize.Normalizer.
type TextNormalizer interface {
	Normalize(raw string) (string, error)
}

// EmbeddingGenerator turns text into unit-length vectors tagged with the configured model.
// Every failure is returned as *vibeerrors.EmbeddingError. Safe for concurrent use.
type EmbeddingGenerator struct {
	client       EmbeddingClient
	normalizer   TextNormalizer
	provider     string
	model        string
	dimension    int
	timeout      time.Duration
	queryCache   *cache.LoaderCache[[]float32]
	metrics      observability.VibeMetrics
	cacheMetrics observability.CacheMetrics
	tracer       trace.Tracer
	logger       *slog.Logger
}

// EmbeddingGeneratorParams configures EmbeddingGenerator. QueryCache, Metrics and CacheMetrics may be nil.
type EmbeddingGeneratorParams struct {
	Client     EmbeddingClient
	Normalizer TextNormalizer
	// Provider labels metrics (openai, google, fallback).
	Provider  string
	Model     string
	Dimension int
	// Timeout bounds one provider call; 0 leaves it to the caller's context.
	Timeout      time.Duration
	QueryCache   *cache.LoaderCache[[]float32]
	Metrics      observability.VibeMetrics
	CacheMetrics observability.CacheMetrics
	Logger       *slog.Logger
}

// NewEmbeddingGenerator creates an EmbeddingGenerator.
func NewEmbeddingGenerator(p EmbeddingGeneratorParams) *EmbeddingGenerator {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &EmbeddingGenerator{
		client:       p.Client,
		normalizer:   p.Normalizer,
		provider:     p.Provider,
		model:        p.Model,
		dimension:    p.Dimension,
		timeout:      p.Timeout,
		queryCache:   p.QueryCache,
		metrics:      p.Metrics,
		cacheMetrics: p.CacheMetrics,
		tracer:       otel.Tracer(tracerName),
		logger:       logger,
	}
}

// Model returns the model tag stored with generated vectors.
func (g *EmbeddingGenerator) Model() string {
	return g.model
}

// Dimension returns the configured vector length.
func (g *EmbeddingGenerator) Dimension() int {
	return g.dimension
}

// Embed returns the embedding of text. Unless alreadyNormalized is set, text is normalized first
// and a normalization failure is returned as an EmbeddingError wrapping the NormalizationError.
func (g *EmbeddingGenerator) Embed(ctx context.Context, text string, alreadyNormalized bool) (models.Embedding, error) {
	normalized := text

	if !alreadyNormalized {
		var err error

		normalized, err = g.normalizer.Normalize(text)
		if err != nil {
			return models.Embedding{}, vibeerrors.NewEmbeddingError(text, "normalize text", err)
		}
	}

	vec, err := g.generate(ctx, normalized)
	if err != nil {
		return models.Embedding{}, err
	}

	return models.Embedding{Vector: vec, Model: g.model}, nil
}

// EmbedQuery embeds a raw search query. Vectors are cached by normalized text when a query cache is
// configured, so repeated searches skip the provider. The returned vector is a private copy.
func (g *EmbeddingGenerator) EmbedQuery(ctx context.Context, raw string) (models.Embedding, error) {
	normalized, err := g.normalizer.Normalize(raw)
	if err != nil {
		return models.Embedding{}, vibeerrors.NewEmbeddingError(raw, "normalize text", err)
	}

	if g.queryCache == nil {
		vec, genErr := g.generate(ctx, normalized)
		if genErr != nil {
			return models.Embedding{}, genErr
		}

		return models.Embedding{Vector: vec, Model: g.model}, nil
	}

	vec, hit, err := g.queryCache.Get(ctx, normalized, g.generate)
	if err != nil {
		if !errors.Is(err, vibeerrors.ErrEmbedding) {
			err = vibeerrors.NewEmbeddingError(normalized, "query embedding wait ended", err)
		}

		return models.Embedding{}, err
	}

	if g.cacheMetrics != nil {
		if hit {
			g.cacheMetrics.RecordHit(ctx, observability.CacheNameQueryEmbedding)
		} else {
			g.cacheMetrics.RecordMiss(ctx, observability.CacheNameQueryEmbedding)
		}
	}

	return models.Embedding{Vector: slices.Clone(vec), Model: g.model}, nil
}

// generate calls the provider for already normalized text and validates the vector.
func (g *EmbeddingGenerator) generate(ctx context.Context, normalized string) ([]float32, error) {
	ctx, span := g.tracer.Start(ctx, "embedding.generate", trace.WithAttributes(
		attribute.String("embedding.provider", g.provider),
		attribute.String("embedding.model", g.model),
		attribute.Int("embedding.dimension", g.dimension),
	))
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	vec, err := g.client.CreateEmbedding(ctx, normalized)

	status, embErr := g.check(vec, err, normalized)
	if g.metrics != nil {
		g.metrics.RecordEmbedding(ctx, g.provider, status, time.Since(start))
	}

	if embErr != nil {
		span.RecordError(embErr)
		span.SetStatus(codes.Error, status)
		g.logger.WarnContext(ctx, "embedding generation failed",
			"provider", g.provider,
			"model", g.model,
			"status", status,
			"error", embErr,
		)

		return nil, embErr
	}

	return vec, nil
}

// check validates a provider response, L2-normalizing vec in place on success.
// It returns the metric status and an EmbeddingError on failure.
func (g *EmbeddingGenerator) check(vec []float32, err error, text string) (string, error) {
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		return "timeout", vibeerrors.NewEmbeddingError(text, "embedding provider timed out", err)
	case err != nil:
		return "error", vibeerrors.NewEmbeddingError(text, "embedding provider call failed", err)
	case len(vec) == 0:
		return "invalid_vector", vibeerrors.NewEmbeddingError(text, "embedding provider returned no vector", nil)
	case len(vec) != g.dimension:
		return "wrong_dimension", vibeerrors.NewEmbeddingError(text,
			fmt.Sprintf("embedding has dimension %d, expected %d", len(vec), g.dimension), nil)
	}

	if normErr := embeddings.NormalizeL2(vec); normErr != nil {
		return "invalid_vector", vibeerrors.NewEmbeddingError(text, "embedding vector cannot be normalized", normErr)
	}

	return "success", nil
}
