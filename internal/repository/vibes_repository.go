package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quackform/vibes/internal/models"
	"github.com/quackform/vibes/internal/vibeerrors"
)

const tracerName = "github.com/quackform/vibes/internal/repository"

// DefaultProbes is the ivfflat.probes value used when none is configured.
const DefaultProbes = 100

// VibesRepository stores vibes in the Postgres vibes table (pgvector, cosine distance).
type VibesRepository struct {
	db     *pgxpool.Pool
	probes int
	tracer trace.Tracer
}

// NewVibesRepository creates a repository that applies probes as ivfflat.probes on every
// nearest-neighbour query. The pool must have the vector types registered.
func NewVibesRepository(db *pgxpool.Pool, probes int) *VibesRepository {
	if probes <= 0 {
		probes = DefaultProbes
	}

	return &VibesRepository{db: db, probes: probes, tracer: otel.Tracer(tracerName)}
}

// Upsert inserts the vibe or replaces every field but uid and created_at.
func (r *VibesRepository) Upsert(ctx context.Context, vibe models.VibeUpsert) error {
	ctx, span := startStoreSpan(ctx, r.tracer, "upsert", "postgres")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		INSERT INTO vibes (uid, original_vibe, vibe, embedding, embedding_model)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uid) DO UPDATE SET
			original_vibe = EXCLUDED.original_vibe,
			vibe = EXCLUDED.vibe,
			embedding = EXCLUDED.embedding,
			embedding_model = EXCLUDED.embedding_model,
			updated_at = NOW()`,
		vibe.UID, vibe.OriginalText, vibe.NormalizedText, pgvector.NewVector(vibe.Embedding), vibe.EmbeddingModel,
	)
	if err != nil {
		return spanError(span, vibeerrors.NewStoreError("upsert", vibe.UID, err))
	}

	return nil
}

// Get returns the vibe for uid including its embedding.
func (r *VibesRepository) Get(ctx context.Context, uid string) (*models.Vibe, error) {
	var (
		v   models.Vibe
		vec pgvector.Vector
	)

	err := r.db.QueryRow(ctx, `
		SELECT uid, original_vibe, vibe, embedding, embedding_model, created_at, updated_at
		FROM vibes WHERE uid = $1`, uid,
	).Scan(&v.UID, &v.OriginalText, &v.NormalizedText, &vec, &v.EmbeddingModel, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vibeerrors.NewNotFoundError("vibe", fmt.Sprintf("no vibe stored for uid %q", uid))
		}

		return nil, vibeerrors.NewStoreError("get", uid, err)
	}

	v.Embedding = vec.Slice()

	return &v, nil
}

// List returns up to limit vibes, most recently updated first. Embeddings are not loaded.
func (r *VibesRepository) List(ctx context.Context, limit int) ([]models.Vibe, error) {
	rows, err := r.db.Query(ctx, `
		SELECT uid, original_vibe, vibe, embedding_model, created_at, updated_at
		FROM vibes
		ORDER BY updated_at DESC, uid
		LIMIT $1`, limit)
	if err != nil {
		return nil, vibeerrors.NewStoreError("list", "", err)
	}

	defer rows.Close()

	vibes := []models.Vibe{}

	for rows.Next() {
		var v models.Vibe
		if err := rows.Scan(&v.UID, &v.OriginalText, &v.NormalizedText, &v.EmbeddingModel, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, vibeerrors.NewStoreError("list", "", fmt.Errorf("scan vibe: %w", err))
		}

		vibes = append(vibes, v)
	}

	if err := rows.Err(); err != nil {
		return nil, vibeerrors.NewStoreError("list", "", fmt.Errorf("iterating vibes: %w", err))
	}

	return vibes, nil
}

// Nearest returns up to limit vibes in ascending cosine distance to query. The probes setting is
// scoped to the read transaction so pooled connections keep their defaults.
func (r *VibesRepository) Nearest(ctx context.Context, query []float32, limit int) ([]models.VibeCandidate, error) {
	ctx, span := startStoreSpan(ctx, r.tracer, "nearest", "postgres")
	defer span.End()

	span.SetAttributes(attribute.Int("vibes.limit", limit), attribute.Int("vibes.probes", r.probes))

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, spanError(span, vibeerrors.NewStoreError("nearest", "", err))
	}

	defer func() { _ = tx.Rollback(ctx) }()

	// SET does not take bind parameters; probes is an int.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", r.probes)); err != nil {
		return nil, spanError(span, vibeerrors.NewStoreError("nearest", "", fmt.Errorf("set probes: %w", err)))
	}

	rows, err := tx.Query(ctx, `
		SELECT uid, original_vibe, vibe, embedding_model, created_at, updated_at, embedding <=> $1 AS distance
		FROM vibes
		ORDER BY embedding <=> $1
		LIMIT $2`, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, spanError(span, vibeerrors.NewStoreError("nearest", "", err))
	}

	defer rows.Close()

	candidates := []models.VibeCandidate{}

	for rows.Next() {
		var c models.VibeCandidate
		if err := rows.Scan(
			&c.UID, &c.OriginalText, &c.NormalizedText, &c.EmbeddingModel, &c.CreatedAt, &c.UpdatedAt, &c.Distance,
		); err != nil {
			return nil, spanError(span, vibeerrors.NewStoreError("nearest", "", fmt.Errorf("scan candidate: %w", err)))
		}

		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, spanError(span, vibeerrors.NewStoreError("nearest", "", fmt.Errorf("iterating candidates: %w", err)))
	}

	span.SetAttributes(attribute.Int("vibes.candidates", len(candidates)))

	return candidates, nil
}

// Wipe deletes every vibe.
func (r *VibesRepository) Wipe(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM vibes`)
	if err != nil {
		return 0, vibeerrors.NewStoreError("wipe", "", err)
	}

	return tag.RowsAffected(), nil
}

// ListStale returns up to limit uids whose embedding was produced by a model other than model.
func (r *VibesRepository) ListStale(ctx context.Context, model string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT uid FROM vibes
		WHERE embedding_model <> $1
		ORDER BY updated_at
		LIMIT $2`, model, limit)
	if err != nil {
		return nil, vibeerrors.NewStoreError("list_stale", "", err)
	}

	defer rows.Close()

	var uids []string

	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, vibeerrors.NewStoreError("list_stale", "", fmt.Errorf("scan uid: %w", err))
		}

		uids = append(uids, uid)
	}

	if err := rows.Err(); err != nil {
		return nil, vibeerrors.NewStoreError("list_stale", "", fmt.Errorf("iterating stale uids: %w", err))
	}

	return uids, nil
}

func startStoreSpan(ctx context.Context, tracer trace.Tracer, op, backend string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "vibes.store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", backend)),
	)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}
