// Package observability provides OpenTelemetry metrics, tracing and log correlation for the vibes API.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameHTTPRequests        = "vibes_http_requests_total"
	MetricNameHTTPRequestDuration = "vibes_http_request_duration_seconds"
	MetricNameRequestBodyTooLarge = "vibes_http_request_body_too_large_total"
	MetricNameVibesStored         = "vibes_store_operations_total"
	MetricNameStoreDuration       = "vibes_store_duration_seconds"
	MetricNameSearches            = "vibes_searches_total"
	MetricNameSearchDuration      = "vibes_search_duration_seconds"
	MetricNameSearchCandidates    = "vibes_search_candidates"
	MetricNameSearchResults       = "vibes_search_results"
	MetricNameEmbeddingRequests   = "vibes_embedding_requests_total"
	MetricNameEmbeddingDuration   = "vibes_embedding_duration_seconds"
	MetricNameReembedEnqueued     = "vibes_reembed_jobs_enqueued_total"
	MetricNameReembedEnqueueErrs  = "vibes_reembed_enqueue_errors_total"
	MetricNameReembedOutcomes     = "vibes_reembed_outcomes_total"
	MetricNameReembedWorkerErrors = "vibes_reembed_worker_errors_total"
	MetricNameReembedDuration     = "vibes_reembed_duration_seconds"
	MetricNameReembedQueueDepth   = "vibes_reembed_queue_depth"
	MetricNameCacheHits           = "vibes_cache_hits_total"
	MetricNameCacheMisses         = "vibes_cache_misses_total"
)

// Attribute keys.
const (
	AttrCache       = "cache"
	AttrMethod      = "method"
	AttrProvider    = "provider"
	AttrReason      = "reason"
	AttrRoute       = "route"
	AttrStatus      = "status"
	AttrStatusClass = "status_class"
)

// CacheNameQueryEmbedding labels the search query embedding cache.
const CacheNameQueryEmbedding = "query_embedding"

// AllowedOperationStatuses for vibes_store_operations_total and vibes_searches_total.
var AllowedOperationStatuses = map[string]bool{
	"success":             true,
	"validation_error":    true,
	"normalization_error": true,
	"embedding_error":     true,
	"store_error":         true,
}

// AllowedEmbeddingProviders for vibes_embedding_requests_total.
var AllowedEmbeddingProviders = map[string]bool{
	"openai":   true,
	"google":   true,
	"fallback": true,
}

// AllowedEmbeddingStatuses for vibes_embedding_requests_total and vibes_embedding_duration_seconds.
var AllowedEmbeddingStatuses = map[string]bool{
	"success":         true,
	"error":           true,
	"timeout":         true,
	"invalid_vector":  true,
	"wrong_dimension": true,
}

// AllowedReembedReasons for vibes_reembed_worker_errors_total and vibes_reembed_enqueue_errors_total.
var AllowedReembedReasons = map[string]bool{
	"get_vibe_failed":   true,
	"embedding_failed":  true,
	"upsert_failed":     true,
	"list_stale_failed": true,
	"enqueue_failed":    true,
}

// AllowedReembedOutcomes for vibes_reembed_outcomes_total and vibes_reembed_duration_seconds.
var AllowedReembedOutcomes = map[string]bool{
	"success": true,
	"skipped": true,
	"failed":  true,
}

var allowedCacheNames = map[string]bool{
	CacheNameQueryEmbedding: true,
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeCacheName returns name if it is a known cache, otherwise "other".
func NormalizeCacheName(name string) string {
	return NormalizeReason(name, allowedCacheNames)
}

// StatusClass maps an HTTP status code to 1xx..5xx.
func StatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status >= 100:
		return "1xx"
	default:
		return "unknown"
	}
}
