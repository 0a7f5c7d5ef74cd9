// Package bootstrap builds the vibes service graph from configuration. The API server, the
// management CLI and the backfill command share it so every binary embeds and stores the same way.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/quackform/vibes/internal/config"
	"github.com/quackform/vibes/internal/googleai"
	"github.com/quackform/vibes/internal/normalize"
	"github.com/quackform/vibes/internal/observability"
	"github.com/quackform/vibes/internal/openai"
	"github.com/quackform/vibes/internal/ranking"
	"github.com/quackform/vibes/internal/repository"
	"github.com/quackform/vibes/internal/service"
	"github.com/quackform/vibes/pkg/cache"
	"github.com/quackform/vibes/pkg/database"
)

var errUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")

// Components is the wired service graph. Close releases the store and the pool.
type Components struct {
	Pool      *pgxpool.Pool
	Store     service.VibesStore
	Generator *service.EmbeddingGenerator
	Service   *service.VibesService

	pingers    []func(context.Context) error
	closeStore func() error
}

// New connects to Postgres (always needed for the River queue), opens the configured vector store
// and builds the embedding generator and VibesService. metrics may be nil.
func New(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := &Components{Pool: pool}
	c.pingers = append(c.pingers, pool.Ping)

	if err := c.openStore(ctx, cfg); err != nil {
		pool.Close()

		return nil, err
	}

	client, err := NewEmbeddingClient(ctx, cfg)
	if err != nil {
		c.Close()

		return nil, err
	}

	normalizer, err := NewNormalizer(cfg)
	if err != nil {
		c.Close()

		return nil, err
	}

	var queryCache *cache.LoaderCache[[]float32]

	if cfg.SearchQueryCacheSize > 0 {
		queryCache, err = cache.NewLoaderCache[[]float32](cfg.SearchQueryCacheSize)
		if err != nil {
			c.Close()

			return nil, fmt.Errorf("create query embedding cache: %w", err)
		}
	}

	var (
		vibeMetrics    observability.VibeMetrics
		cacheMetrics   observability.CacheMetrics
		reembedMetrics observability.ReembedMetrics
	)

	if metrics != nil {
		vibeMetrics = metrics.Vibes
		cacheMetrics = metrics.Cache
		reembedMetrics = metrics.Reembed
	}

	c.Generator = service.NewEmbeddingGenerator(service.EmbeddingGeneratorParams{
		Client:       client,
		Normalizer:   normalizer,
		Provider:     cfg.EmbeddingProvider,
		Model:        cfg.ModelTag(),
		Dimension:    cfg.EmbeddingDimension,
		Timeout:      cfg.EmbeddingTimeout,
		QueryCache:   queryCache,
		Metrics:      vibeMetrics,
		CacheMetrics: cacheMetrics,
		Logger:       logger,
	})

	policy := ranking.DefaultPolicy()
	policy.MinScore = cfg.SearchMinScore

	c.Service = service.NewVibesService(service.VibesServiceParams{
		Store:               c.Store,
		Normalizer:          normalizer,
		Generator:           c.Generator,
		Scorer:              ranking.NewScorer(policy),
		CandidateMultiplier: cfg.SearchCandidateMultiplier,
		MaxCandidates:       cfg.SearchMaxCandidates,
		ReembedMaxAttempts:  cfg.ReembedMaxAttempts,
		Metrics:             vibeMetrics,
		ReembedMetrics:      reembedMetrics,
		Logger:              logger,
	})

	logger.Info("vibes service ready",
		"vector_store", cfg.VectorStore,
		"provider", cfg.EmbeddingProvider,
		"model", c.Generator.Model(),
		"dimension", cfg.EmbeddingDimension,
	)

	return c, nil
}

// openPool connects to Postgres. The vibes table is bootstrapped only when Postgres is the vector store.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.VectorStore == config.VectorStorePostgres {
		pool, err := database.NewVibesPool(ctx, cfg.DatabaseURL, cfg.EmbeddingDimension)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}

		return pool, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return pool, nil
}

func (c *Components) openStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.VectorStore {
	case config.VectorStoreQdrant:
		repo, err := repository.NewQdrantVibesRepository(repository.QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			Collection: cfg.QdrantCollection,
			APIKey:     cfg.QdrantAPIKey,
			Dimension:  cfg.EmbeddingDimension,
			HnswEf:     cfg.VectorSearchProbes,
		})
		if err != nil {
			return fmt.Errorf("connect to qdrant: %w", err)
		}

		if err := repo.EnsureCollection(ctx); err != nil {
			_ = repo.Close()

			return fmt.Errorf("ensure qdrant collection: %w", err)
		}

		c.Store = repo
		c.closeStore = repo.Close
		c.pingers = append(c.pingers, repo.Ping)
	default:
		c.Store = repository.NewVibesRepository(c.Pool, cfg.VectorSearchProbes)
	}

	return nil
}

// NewEmbeddingClient returns the provider client selected by EMBEDDING_PROVIDER.
func NewEmbeddingClient(ctx context.Context, cfg *config.Config) (service.EmbeddingClient, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		opts := []openai.ClientOption{
			openai.WithModel(cfg.EmbeddingModel),
			openai.WithDimensions(cfg.EmbeddingDimension),
			// Retries are left to the re-embed queue.
			openai.WithMaxRetries(0),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}

		return openai.NewClient(cfg.EmbeddingProviderAPIKey, opts...), nil
	case config.EmbeddingProviderGoogle:
		client, err := googleai.NewClient(ctx, cfg.EmbeddingProviderAPIKey,
			googleai.WithModel(cfg.EmbeddingModel),
			googleai.WithDimensions(cfg.EmbeddingDimension),
		)
		if err != nil {
			return nil, fmt.Errorf("create google embedding client: %w", err)
		}

		return client, nil
	case config.EmbeddingProviderFallback:
		return service.NewFallbackEmbeddingClient(cfg.EmbeddingDimension), nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}
}

// NewNormalizer builds the text normalizer, with the verb lemmatizer when enabled.
func NewNormalizer(cfg *config.Config) (*normalize.Normalizer, error) {
	if !cfg.NormalizeLemmatizeVerbs {
		return normalize.New(), nil
	}

	lemmatizer, err := normalize.NewVerbLemmatizer()
	if err != nil {
		return nil, fmt.Errorf("load verb lemmatizer: %w", err)
	}

	return normalize.New(normalize.WithLemmatizer(lemmatizer)), nil
}

// MigrateRiver applies River's schema migrations to pool.
func MigrateRiver(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}

	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("migrate river schema: %w", err)
	}

	if len(res.Versions) > 0 {
		slog.InfoContext(ctx, "river schema migrated", "versions", len(res.Versions))
	}

	return nil
}

// Ping checks Postgres and, when configured, Qdrant.
func (c *Components) Ping(ctx context.Context) error {
	for _, ping := range c.pingers {
		if err := ping(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Close releases the vector store connection and the Postgres pool.
func (c *Components) Close() {
	if c.closeStore != nil {
		if err := c.closeStore(); err != nil {
			slog.Warn("close vector store", "error", err)
		}
	}

	if c.Pool != nil {
		c.Pool.Close()
	}
}
