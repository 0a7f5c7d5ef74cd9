package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// RegisterVectorTypes registers the pgvector types on a new connection. Use with WithAfterConnect.
// The extension must exist before the first connection is opened with it, so schema bootstrap
// runs on a pool without this hook.
func RegisterVectorTypes(ctx context.Context, conn *pgx.Conn) error {
	if err := pgxvec.RegisterTypes(ctx, conn); err != nil {
		return fmt.Errorf("failed to register vector types: %w", err)
	}

	return nil
}

// EnsureVibesSchema creates the vibes table and its cosine ivfflat index when missing, and adds the
// original_vibe column to tables created before it existed (backfilled from the normalized text).
// Safe to run on every start.
func EnsureVibesSchema(ctx context.Context, db *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS vibes (
			uid VARCHAR(255) PRIMARY KEY,
			original_vibe TEXT,
			vibe TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			embedding_model VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		`ALTER TABLE vibes ADD COLUMN IF NOT EXISTS original_vibe TEXT`,
		`UPDATE vibes SET original_vibe = vibe WHERE original_vibe IS NULL`,
		`ALTER TABLE vibes ALTER COLUMN original_vibe SET NOT NULL`,
		`CREATE INDEX IF NOT EXISTS vibes_embedding_idx ON vibes
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE INDEX IF NOT EXISTS vibes_updated_at_idx ON vibes (updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS vibes_embedding_model_idx ON vibes (embedding_model)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure vibes schema: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}

	slog.Info("Vibes schema ready", "dimension", dimension)

	return nil
}

// NewVibesPool ensures the vibes schema on a short-lived bootstrap pool, then returns a pool that
// registers the pgvector types on every connection.
func NewVibesPool(ctx context.Context, databaseURL string, dimension int, opts ...PoolOption) (*pgxpool.Pool, error) {
	bootstrap, err := NewPostgresPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	err = EnsureVibesSchema(ctx, bootstrap, dimension)

	bootstrap.Close()

	if err != nil {
		return nil, err
	}

	return NewPostgresPool(ctx, databaseURL, append(opts, WithAfterConnect(RegisterVectorTypes))...)
}
