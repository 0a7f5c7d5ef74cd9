package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/riverqueue/river"

	"github.com/quackform/vibes/internal/models"
	"github.com/quackform/vibes/internal/observability"
	"github.com/quackform/vibes/internal/ranking"
	"github.com/quackform/vibes/internal/vibeerrors"
	"github.com/quackform/vibes/pkg/embeddings"
)

// Limits enforced by VibesService.
const (
	MaxUIDLength               = 255
	MinTopK                    = 1
	MaxTopK                    = 50
	DefaultListLimit           = 20
	MaxListLimit               = 1000
	DefaultCandidateMultiplier = 3
	DefaultMaxCandidates       = 200
	defaultStaleBatch          = 1000
)

// VibesService stores vibes and answers hybrid searches over them. Safe for concurrent use.
type VibesService struct {
	store               VibesStore
	normalizer          TextNormalizer
	generator           *EmbeddingGenerator
	scorer              *ranking.Scorer
	candidateMultiplier int
	maxCandidates       int
	reembedInserter     ReembedInserter
	reembedMaxAttempts  int
	metrics             observability.VibeMetrics
	reembedMetrics      observability.ReembedMetrics
	logger              *slog.Logger
}

// VibesServiceParams configures VibesService. ReembedInserter and the metrics may be nil.
type VibesServiceParams struct {
	Store      VibesStore
	Normalizer TextNormalizer
	Generator  *EmbeddingGenerator
	Scorer     *ranking.Scorer
	// CandidateMultiplier widens the nearest-neighbour pool to topK*CandidateMultiplier before ranking.
	CandidateMultiplier int
	// MaxCandidates caps the pool regardless of topK.
	MaxCandidates      int
	ReembedInserter    ReembedInserter
	ReembedMaxAttempts int
	Metrics            observability.VibeMetrics
	ReembedMetrics     observability.ReembedMetrics
	Logger             *slog.Logger
}

// NewVibesService creates a VibesService.
func NewVibesService(p VibesServiceParams) *VibesService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	scorer := p.Scorer
	if scorer == nil {
		scorer = ranking.NewScorer(ranking.DefaultPolicy())
	}

	multiplier := p.CandidateMultiplier
	if multiplier < 1 {
		multiplier = DefaultCandidateMultiplier
	}

	maxCandidates := p.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}

	return &VibesService{
		store:               p.Store,
		normalizer:          p.Normalizer,
		generator:           p.Generator,
		scorer:              scorer,
		candidateMultiplier: multiplier,
		maxCandidates:       maxCandidates,
		reembedInserter:     p.ReembedInserter,
		reembedMaxAttempts:  p.ReembedMaxAttempts,
		metrics:             p.Metrics,
		reembedMetrics:      p.ReembedMetrics,
		logger:              logger,
	}
}

// SetReembedInserter sets the job inserter after construction. The River client needs the worker,
// which needs this service, so the client is attached once it exists. Call before serving requests.
func (s *VibesService) SetReembedInserter(inserter ReembedInserter) {
	s.reembedInserter = inserter
}

// StoreVibe normalizes and embeds raw text and upserts it under uid. Nothing is written when
// validation, normalization or embedding fails.
func (s *VibesService) StoreVibe(ctx context.Context, uid, raw string) (models.Vibe, error) {
	start := time.Now()

	vibe, err := s.storeVibe(ctx, uid, raw)
	if s.metrics != nil {
		s.metrics.RecordStore(ctx, outcomeStatus(err), time.Since(start))
	}

	return vibe, err
}

func (s *VibesService) storeVibe(ctx context.Context, uid, raw string) (models.Vibe, error) {
	uid, err := validateUID(uid)
	if err != nil {
		return models.Vibe{}, err
	}

	normalized, err := s.normalizer.Normalize(raw)
	if err != nil {
		//nolint:wrapcheck // NormalizationError is returned as-is for status mapping
		return models.Vibe{}, err
	}

	emb, err := s.generator.Embed(ctx, normalized, true)
	if err != nil {
		s.logger.ErrorContext(ctx, "store vibe: embedding failed", "uid", uid, "error", err)

		return models.Vibe{}, err
	}

	if !embeddings.IsUnit(emb.Vector) {
		return models.Vibe{}, vibeerrors.NewStoreError("upsert", uid,
			fmt.Errorf("embedding norm %.6f is not unit length", embeddings.Norm(emb.Vector)))
	}

	upsert := models.VibeUpsert{
		UID:            uid,
		OriginalText:   strings.TrimSpace(raw),
		NormalizedText: normalized,
		Embedding:      emb.Vector,
		EmbeddingModel: emb.Model,
	}

	if err := s.store.Upsert(ctx, upsert); err != nil {
		s.logger.ErrorContext(ctx, "store vibe: upsert failed", "uid", uid, "error", err)

		return models.Vibe{}, asStoreError("upsert", uid, err)
	}

	s.logger.InfoContext(ctx, "vibe stored", "uid", uid, "model", emb.Model)

	return models.Vibe{
		UID:            upsert.UID,
		OriginalText:   upsert.OriginalText,
		NormalizedText: upsert.NormalizedText,
		EmbeddingModel: upsert.EmbeddingModel,
	}, nil
}

// SearchVibes embeds rawQuery, fetches a widened nearest-neighbour pool and returns at most topK
// results ranked by the hybrid score. A store failure is an error, never an empty result.
func (s *VibesService) SearchVibes(ctx context.Context, rawQuery string, topK int) ([]models.SearchResult, error) {
	start := time.Now()

	results, candidates, err := s.searchVibes(ctx, rawQuery, topK)
	if s.metrics != nil {
		s.metrics.RecordSearch(ctx, outcomeStatus(err), candidates, len(results), time.Since(start))
	}

	return results, err
}

func (s *VibesService) searchVibes(ctx context.Context, rawQuery string, topK int) ([]models.SearchResult, int, error) {
	if topK < MinTopK || topK > MaxTopK {
		return nil, 0, vibeerrors.NewValidationError("topK",
			fmt.Sprintf("topK must be between %d and %d", MinTopK, MaxTopK))
	}

	emb, err := s.generator.EmbedQuery(ctx, rawQuery)
	if err != nil {
		return nil, 0, err
	}

	pool := s.candidatePool(topK)

	candidates, err := s.store.Nearest(ctx, emb.Vector, pool)
	if err != nil {
		s.logger.ErrorContext(ctx, "search vibes: nearest failed", "top_k", topK, "pool", pool, "error", err)

		return nil, 0, asStoreError("nearest", "", err)
	}

	results := s.scorer.Rank(rawQuery, candidates, topK)

	s.logger.DebugContext(ctx, "search vibes",
		"top_k", topK,
		"pool", pool,
		"candidates", len(candidates),
		"results", len(results),
	)

	return results, len(candidates), nil
}

// candidatePool returns how many neighbours to fetch so ranking can reorder beyond the first topK.
func (s *VibesService) candidatePool(topK int) int {
	return min(max(topK, topK*s.candidateMultiplier), max(topK, s.maxCandidates))
}

// GetVibe returns the stored vibe for uid or a NotFoundError.
func (s *VibesService) GetVibe(ctx context.Context, uid string) (*models.Vibe, error) {
	uid, err := validateUID(uid)
	if err != nil {
		return nil, err
	}

	vibe, err := s.store.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, vibeerrors.ErrNotFound) {
			//nolint:wrapcheck // return as-is so handler can map to 404
			return nil, err
		}

		return nil, asStoreError("get", uid, err)
	}

	return vibe, nil
}

// ListVibes returns the most recently updated vibes. limit 0 means DefaultListLimit.
func (s *VibesService) ListVibes(ctx context.Context, limit int) ([]models.Vibe, error) {
	if limit == 0 {
		limit = DefaultListLimit
	}

	if limit < 0 || limit > MaxListLimit {
		return nil, vibeerrors.NewValidationError("limit",
			fmt.Sprintf("limit must be between 1 and %d", MaxListLimit))
	}

	vibes, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, asStoreError("list", "", err)
	}

	return vibes, nil
}

// WipeVibes deletes every stored vibe and returns the number removed.
func (s *VibesService) WipeVibes(ctx context.Context) (int64, error) {
	n, err := s.store.Wipe(ctx)
	if err != nil {
		return 0, asStoreError("wipe", "", err)
	}

	s.logger.WarnContext(ctx, "all vibes wiped", "count", n)

	return n, nil
}

// ReembedVibe recomputes the embedding of uid's normalized text with the current model.
// It reports false when the vibe already carries the current model.
func (s *VibesService) ReembedVibe(ctx context.Context, uid string) (bool, error) {
	vibe, err := s.GetVibe(ctx, uid)
	if err != nil {
		return false, err
	}

	if vibe.EmbeddingModel == s.generator.Model() {
		return false, nil
	}

	emb, err := s.generator.Embed(ctx, vibe.NormalizedText, true)
	if err != nil {
		return false, err
	}

	err = s.store.Upsert(ctx, models.VibeUpsert{
		UID:            vibe.UID,
		OriginalText:   vibe.OriginalText,
		NormalizedText: vibe.NormalizedText,
		Embedding:      emb.Vector,
		EmbeddingModel: emb.Model,
	})
	if err != nil {
		return false, asStoreError("upsert", vibe.UID, err)
	}

	s.logger.InfoContext(ctx, "vibe re-embedded", "uid", vibe.UID, "from_model", vibe.EmbeddingModel, "model", emb.Model)

	return true, nil
}

// EnqueueStaleReembeds enqueues one re-embed job per vibe whose model differs from the current one,
// up to limit (0 means a default batch). It returns the number of jobs enqueued.
func (s *VibesService) EnqueueStaleReembeds(ctx context.Context, limit int) (int, error) {
	if s.reembedInserter == nil {
		return 0, errors.New("re-embedding is not configured")
	}

	if limit <= 0 {
		limit = defaultStaleBatch
	}

	uids, err := s.store.ListStale(ctx, s.generator.Model(), limit)
	if err != nil {
		if s.reembedMetrics != nil {
			s.reembedMetrics.RecordEnqueueError(ctx, "list_stale_failed")
		}

		return 0, asStoreError("list stale", "", err)
	}

	opts := &river.InsertOpts{
		Queue:       ReembedQueueName,
		MaxAttempts: s.reembedMaxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}

	enqueued := 0

	for _, uid := range uids {
		if _, err := s.reembedInserter.Insert(ctx, VibeReembedArgs{UID: uid}, opts); err != nil {
			if s.reembedMetrics != nil {
				s.reembedMetrics.RecordEnqueueError(ctx, "enqueue_failed")
			}

			s.logger.ErrorContext(ctx, "reembed: enqueue failed", "uid", uid, "error", err)

			return enqueued, fmt.Errorf("enqueue reembed for %q: %w", uid, err)
		}

		enqueued++
	}

	if s.reembedMetrics != nil && enqueued > 0 {
		s.reembedMetrics.RecordJobsEnqueued(ctx, int64(enqueued))
	}

	s.logger.InfoContext(ctx, "reembed: jobs enqueued", "count", enqueued, "model", s.generator.Model())

	return enqueued, nil
}

func validateUID(uid string) (string, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return "", vibeerrors.NewValidationError("uid", "uid is required")
	}

	if len(uid) > MaxUIDLength {
		return "", vibeerrors.NewValidationError("uid",
			fmt.Sprintf("uid must be at most %d bytes", MaxUIDLength))
	}

	return uid, nil
}

// asStoreError keeps typed store errors and wraps anything else.
func asStoreError(op, uid string, err error) error {
	if errors.Is(err, vibeerrors.ErrStore) {
		return err
	}

	return vibeerrors.NewStoreError(op, uid, err)
}

// outcomeStatus maps an operation error to its metric status label.
func outcomeStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, vibeerrors.ErrValidation):
		return "validation_error"
	case errors.Is(err, vibeerrors.ErrNormalization) && !errors.Is(err, vibeerrors.ErrEmbedding):
		return "normalization_error"
	case errors.Is(err, vibeerrors.ErrEmbedding):
		return "embedding_error"
	default:
		return "store_error"
	}
}
