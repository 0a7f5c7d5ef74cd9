//go:build integration

package repository

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/quackform/vibes/internal/models"
	"github.com/quackform/vibes/internal/vibeerrors"
	"github.com/quackform/vibes/pkg/database"
)

const testDimension = 3

func startPgvector(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
		postgres.WithDatabase("vibes"),
		postgres.WithUsername("quack"),
		postgres.WithPassword("quack"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := database.NewVibesPool(ctx, dsn, testDimension)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func unit(v ...float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	n := float32(math.Sqrt(sum))
	out := make([]float32, len(v))

	for i, x := range v {
		out[i] = x / n
	}

	return out
}

func TestVibesRepository_Integration(t *testing.T) {
	pool := startPgvector(t)
	repo := NewVibesRepository(pool, 10)
	ctx := context.Background()

	t.Run("schema bootstrap is idempotent", func(t *testing.T) {
		require.NoError(t, database.EnsureVibesSchema(ctx, pool, testDimension))
	})

	t.Run("overwrite keeps created_at and refreshes updated_at", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, models.VibeUpsert{
			UID: "alice", OriginalText: "I want to learn French", NormalizedText: "learn french",
			Embedding: unit(1, 0, 0), EmbeddingModel: "m1",
		}))

		first, err := repo.Get(ctx, "alice")
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)

		require.NoError(t, repo.Upsert(ctx, models.VibeUpsert{
			UID: "alice", OriginalText: "Chess", NormalizedText: "chess",
			Embedding: unit(0, 1, 0), EmbeddingModel: "m2",
		}))

		second, err := repo.Get(ctx, "alice")
		require.NoError(t, err)

		assert.Equal(t, "Chess", second.OriginalText)
		assert.Equal(t, "chess", second.NormalizedText)
		assert.Equal(t, "m2", second.EmbeddingModel)
		assert.InDeltaSlice(t, unit(0, 1, 0), second.Embedding, 1e-6)
		assert.True(t, first.CreatedAt.Equal(*second.CreatedAt))
		assert.True(t, second.UpdatedAt.After(*first.UpdatedAt))

		var rows int
		require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM vibes WHERE uid = 'alice'`).Scan(&rows))
		assert.Equal(t, 1, rows)
	})

	t.Run("nearest orders by cosine distance", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, models.VibeUpsert{
			UID: "bob", OriginalText: "french cuisine", NormalizedText: "french cuisine",
			Embedding: unit(1, 0.1, 0), EmbeddingModel: "m2",
		}))
		require.NoError(t, repo.Upsert(ctx, models.VibeUpsert{
			UID: "carol", OriginalText: "tennis", NormalizedText: "tennis",
			Embedding: unit(0, 0, 1), EmbeddingModel: "m2",
		}))

		got, err := repo.Nearest(ctx, unit(1, 0, 0), 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "bob", got[0].UID)
		assert.Less(t, got[0].Distance, got[1].Distance)
		assert.Empty(t, got[0].Embedding)
	})

	t.Run("list and stale uids", func(t *testing.T) {
		list, err := repo.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "carol", list[0].UID)

		stale, err := repo.ListStale(ctx, "m2", 10)
		require.NoError(t, err)
		assert.Empty(t, stale)

		stale, err = repo.ListStale(ctx, "m3", 2)
		require.NoError(t, err)
		assert.Len(t, stale, 2)
	})

	t.Run("missing uid", func(t *testing.T) {
		_, err := repo.Get(ctx, "nobody")
		assert.ErrorIs(t, err, vibeerrors.ErrNotFound)
	})

	t.Run("wipe", func(t *testing.T) {
		removed, err := repo.Wipe(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)

		list, err := repo.List(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
