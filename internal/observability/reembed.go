package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReembedMetrics records re-embedding pipeline metrics (enqueue, worker).
// Methods accept ctx for future exemplar support.
type ReembedMetrics interface {
	RecordJobsEnqueued(ctx context.Context, count int64)
	RecordEnqueueError(ctx context.Context, reason string)
	RecordOutcome(ctx context.Context, status string)
	RecordWorkerError(ctx context.Context, reason string)
	RecordDuration(ctx context.Context, duration time.Duration, status string)
	// SetQueueDepth stores the latest reembed queue depth; it is reported on collection.
	SetQueueDepth(depth int)
}

type reembedMetrics struct {
	jobsEnqueued  metric.Int64Counter
	enqueueErrors metric.Int64Counter
	outcomes      metric.Int64Counter
	workerErrors  metric.Int64Counter
	duration      metric.Float64Histogram
	queueDepth    atomic.Int64
}

// NewReembedMetrics creates ReembedMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewReembedMetrics(meter metric.Meter) (ReembedMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	jobsEnqueued, err := meter.Int64Counter(
		MetricNameReembedEnqueued,
		metric.WithDescription("Total re-embed jobs enqueued"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reembed jobs enqueued counter: %w", err)
	}

	enqueueErrors, err := meter.Int64Counter(
		MetricNameReembedEnqueueErrs,
		metric.WithDescription("Total re-embed enqueue failures (listing stale vibes, inserting jobs)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reembed enqueue errors counter: %w", err)
	}

	outcomes, err := meter.Int64Counter(
		MetricNameReembedOutcomes,
		metric.WithDescription("Total re-embed job outcomes by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reembed outcomes counter: %w", err)
	}

	workerErrors, err := meter.Int64Counter(
		MetricNameReembedWorkerErrors,
		metric.WithDescription("Total re-embed worker errors (get vibe, embedding, upsert)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reembed worker errors counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameReembedDuration,
		metric.WithDescription("Re-embed job duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reembed duration histogram: %w", err)
	}

	m := &reembedMetrics{
		jobsEnqueued:  jobsEnqueued,
		enqueueErrors: enqueueErrors,
		outcomes:      outcomes,
		workerErrors:  workerErrors,
		duration:      duration,
	}

	_, err = meter.Int64ObservableGauge(
		MetricNameReembedQueueDepth,
		metric.WithDescription("Current reembed queue depth (available, retryable, scheduled)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.queueDepth.Load())

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create reembed queue depth gauge: %w", err)
	}

	return m, nil
}

func (r *reembedMetrics) RecordJobsEnqueued(ctx context.Context, count int64) {
	r.jobsEnqueued.Add(ctx, count)
}

func (r *reembedMetrics) RecordEnqueueError(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedReembedReasons)
	r.enqueueErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (r *reembedMetrics) RecordOutcome(ctx context.Context, status string) {
	status = NormalizeReason(status, AllowedReembedOutcomes)
	r.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (r *reembedMetrics) RecordWorkerError(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedReembedReasons)
	r.workerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (r *reembedMetrics) RecordDuration(ctx context.Context, duration time.Duration, status string) {
	status = NormalizeReason(status, AllowedReembedOutcomes)
	r.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (r *reembedMetrics) SetQueueDepth(depth int) {
	r.queueDepth.Store(int64(depth))
}
