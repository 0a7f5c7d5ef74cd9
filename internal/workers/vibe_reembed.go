// Package workers provides River job workers (vibe re-embedding).
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"golang.org/x/time/rate"

	"github.com/quackform/vibes/internal/observability"
	"github.com/quackform/vibes/internal/service"
	"github.com/quackform/vibes/internal/vibeerrors"
)

// vibeReembedder is the minimal interface needed by the worker.
type vibeReembedder interface {
	ReembedVibe(ctx context.Context, uid string) (bool, error)
}

// VibeReembedWorker re-embeds one vibe's normalized text with the current model.
type VibeReembedWorker struct {
	river.WorkerDefaults[service.VibeReembedArgs]

	reembedder vibeReembedder
	limiter    *rate.Limiter
	metrics    observability.ReembedMetrics
}

// NewVibeReembedWorker creates the worker. limiter paces provider calls across all jobs and may be nil
// (unlimited); metrics may be nil when metrics are disabled.
func NewVibeReembedWorker(
	reembedder vibeReembedder, limiter *rate.Limiter, metrics observability.ReembedMetrics,
) *VibeReembedWorker {
	return &VibeReembedWorker{reembedder: reembedder, limiter: limiter, metrics: metrics}
}

const vibeReembedTimeout = 30 * time.Second

// Timeout limits how long a single re-embed job can run.
func (w *VibeReembedWorker) Timeout(*river.Job[service.VibeReembedArgs]) time.Duration {
	return vibeReembedTimeout
}

// Work re-embeds the vibe. A vanished vibe or one already on the current model completes without retry;
// provider failures are retried until the last attempt; store failures are always retried.
func (w *VibeReembedWorker) Work(ctx context.Context, job *river.Job[service.VibeReembedArgs]) error {
	uid := job.Args.UID
	start := time.Now()

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("reembed rate limit: %w", err)
		}
	}

	changed, err := w.reembedder.ReembedVibe(ctx, uid)

	switch {
	case err == nil && changed:
		w.record(ctx, start, "success", "")
		slog.InfoContext(ctx, "reembed: stored", "uid", uid)

		return nil
	case err == nil:
		w.record(ctx, start, "skipped", "")
		slog.DebugContext(ctx, "reembed: skipped (model current)", "uid", uid)

		return nil
	case errors.Is(err, vibeerrors.ErrNotFound):
		w.record(ctx, start, "skipped", "get_vibe_failed")
		slog.WarnContext(ctx, "reembed: vibe no longer exists", "uid", uid)

		return nil
	case errors.Is(err, vibeerrors.ErrEmbedding) || errors.Is(err, vibeerrors.ErrNormalization):
		if job.Attempt >= job.MaxAttempts {
			w.record(ctx, start, "failed", "embedding_failed")
			slog.ErrorContext(ctx, "reembed: embedding failed (final attempt)", "uid", uid, "error", err)

			return nil
		}

		w.recordError(ctx, "embedding_failed")

		return fmt.Errorf("reembed %q: %w", uid, err)
	default:
		reason := "upsert_failed"

		var storeErr *vibeerrors.StoreError
		if errors.As(err, &storeErr) && storeErr.Op == "get" {
			reason = "get_vibe_failed"
		}

		w.record(ctx, start, "failed", reason)
		slog.ErrorContext(ctx, "reembed: store failed", "uid", uid, "error", err)

		return fmt.Errorf("reembed %q: %w", uid, err)
	}
}

func (w *VibeReembedWorker) record(ctx context.Context, start time.Time, outcome, reason string) {
	if w.metrics == nil {
		return
	}

	if reason != "" {
		w.metrics.RecordWorkerError(ctx, reason)
	}

	w.metrics.RecordOutcome(ctx, outcome)
	w.metrics.RecordDuration(ctx, time.Since(start), outcome)
}

func (w *VibeReembedWorker) recordError(ctx context.Context, reason string) {
	if w.metrics != nil {
		w.metrics.RecordWorkerError(ctx, reason)
	}
}
