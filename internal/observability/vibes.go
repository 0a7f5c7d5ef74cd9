package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// VibeMetrics records store, search and embedding metrics for the vibes service.
type VibeMetrics interface {
	RecordStore(ctx context.Context, status string, duration time.Duration)
	RecordSearch(ctx context.Context, status string, candidates, results int, duration time.Duration)
	RecordEmbedding(ctx context.Context, provider, status string, duration time.Duration)
}

type vibeMetrics struct {
	stores            metric.Int64Counter
	storeDuration     metric.Float64Histogram
	searches          metric.Int64Counter
	searchDuration    metric.Float64Histogram
	searchCandidates  metric.Int64Histogram
	searchResults     metric.Int64Histogram
	embeddings        metric.Int64Counter
	embeddingDuration metric.Float64Histogram
}

// NewVibeMetrics creates VibeMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewVibeMetrics(meter metric.Meter) (VibeMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	stores, err := meter.Int64Counter(
		MetricNameVibesStored,
		metric.WithDescription("Total store vibe operations by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create vibe store counter: %w", err)
	}

	storeDuration, err := meter.Float64Histogram(
		MetricNameStoreDuration,
		metric.WithDescription("Store vibe duration including normalization and embedding (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create vibe store duration histogram: %w", err)
	}

	searches, err := meter.Int64Counter(
		MetricNameSearches,
		metric.WithDescription("Total vibe searches by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create vibe search counter: %w", err)
	}

	searchDuration, err := meter.Float64Histogram(
		MetricNameSearchDuration,
		metric.WithDescription("Vibe search duration including query embedding and ranking (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create vibe search duration histogram: %w", err)
	}

	searchCandidates, err := meter.Int64Histogram(
		MetricNameSearchCandidates,
		metric.WithDescription("Nearest-neighbour candidates returned by the vector store per search"),
	)
	if err != nil {
		return nil, fmt.Errorf("create vibe search candidates histogram: %w", err)
	}

	searchResults, err := meter.Int64Histogram(
		MetricNameSearchResults,
		metric.WithDescription("Results left after the relevance floor per search"),
	)
	if err != nil {
		return nil, fmt.Errorf("create vibe search results histogram: %w", err)
	}

	embeddings, err := meter.Int64Counter(
		MetricNameEmbeddingRequests,
		metric.WithDescription("Total embedding provider calls by provider and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding requests counter: %w", err)
	}

	embeddingDuration, err := meter.Float64Histogram(
		MetricNameEmbeddingDuration,
		metric.WithDescription("Embedding provider call duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding duration histogram: %w", err)
	}

	return &vibeMetrics{
		stores:            stores,
		storeDuration:     storeDuration,
		searches:          searches,
		searchDuration:    searchDuration,
		searchCandidates:  searchCandidates,
		searchResults:     searchResults,
		embeddings:        embeddings,
		embeddingDuration: embeddingDuration,
	}, nil
}

func (v *vibeMetrics) RecordStore(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrStatus, NormalizeReason(status, AllowedOperationStatuses)))
	v.stores.Add(ctx, 1, attrs)
	v.storeDuration.Record(ctx, duration.Seconds(), attrs)
}

func (v *vibeMetrics) RecordSearch(ctx context.Context, status string, candidates, results int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrStatus, NormalizeReason(status, AllowedOperationStatuses)))
	v.searches.Add(ctx, 1, attrs)
	v.searchDuration.Record(ctx, duration.Seconds(), attrs)

	if status == "success" {
		v.searchCandidates.Record(ctx, int64(candidates))
		v.searchResults.Record(ctx, int64(results))
	}
}

func (v *vibeMetrics) RecordEmbedding(ctx context.Context, provider, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrProvider, NormalizeReason(provider, AllowedEmbeddingProviders)),
		attribute.String(AttrStatus, NormalizeReason(status, AllowedEmbeddingStatuses)),
	)
	v.embeddings.Add(ctx, 1, attrs)
	v.embeddingDuration.Record(ctx, duration.Seconds(), attrs)
}
