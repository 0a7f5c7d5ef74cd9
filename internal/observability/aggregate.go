package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all vibes metric collectors. When metrics are disabled, the aggregate is nil.
// Components that accept an interface (VibeMetrics, ReembedMetrics, CacheMetrics, APIMetrics) can
// receive the corresponding field; they already handle nil.
type Metrics struct {
	Vibes   VibeMetrics
	Reembed ReembedMetrics
	Cache   CacheMetrics
	API     APIMetrics
}

// NewMetrics creates every collector from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	vibes, err := NewVibeMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("vibe metrics: %w", err)
	}

	reembed, err := NewReembedMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("reembed metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	api, err := NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("api metrics: %w", err)
	}

	return &Metrics{
		Vibes:   vibes,
		Reembed: reembed,
		Cache:   cache,
		API:     api,
	}, nil
}
