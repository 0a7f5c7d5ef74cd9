package service

import (
	"context"

	"github.com/quackform/vibes/internal/models"
)

// VibesStore persists vibes and answers nearest-neighbour queries under cosine distance.
// Implementations return *vibeerrors.StoreError for I/O failures and vibeerrors.ErrNotFound
// (as *vibeerrors.NotFoundError) from Get when the uid is absent.
type VibesStore interface {
	// Upsert inserts or replaces the vibe for uid; created_at is kept on overwrite.
	Upsert(ctx context.Context, vibe models.VibeUpsert) error
	Get(ctx context.Context, uid string) (*models.Vibe, error)
	// List returns up to limit vibes ordered by updated_at descending.
	List(ctx context.Context, limit int) ([]models.Vibe, error)
	// Nearest returns up to limit candidates in ascending cosine distance to query.
	Nearest(ctx context.Context, query []float32, limit int) ([]models.VibeCandidate, error)
	// Wipe deletes every vibe and reports how many were removed.
	Wipe(ctx context.Context) (int64, error)
	// ListStale returns up to limit uids whose embedding was produced by a model other than model.
	ListStale(ctx context.Context, model string, limit int) ([]string, error)
}
