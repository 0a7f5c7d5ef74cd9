// backfill-embeddings enqueues River re-embed jobs for every vibe whose embedding_model differs
// from the configured model. Run it after changing EMBEDDING_MODEL or EMBEDDING_PROVIDER; workers
// in the API process the jobs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/quackform/vibes/internal/bootstrap"
	"github.com/quackform/vibes/internal/config"
	"github.com/quackform/vibes/internal/observability"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)

		return exitFailure
	}

	slog.SetDefault(observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	ctx := context.Background()

	components, err := bootstrap.New(ctx, cfg, nil, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize", "error", err)

		return exitFailure
	}
	defer components.Close()

	if err := bootstrap.MigrateRiver(ctx, components.Pool); err != nil {
		slog.Error("Failed to migrate River schema", "error", err)

		return exitFailure
	}

	riverClient, err := river.NewClient(riverpgxv5.New(components.Pool), &river.Config{})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)

		return exitFailure
	}

	components.Service.SetReembedInserter(riverClient)

	enqueued, err := components.Service.EnqueueStaleReembeds(ctx, getEnvAsInt("BACKFILL_LIMIT", 0))
	if err != nil {
		slog.Error("Backfill failed", "error", err, "enqueued", enqueued)

		return exitFailure
	}

	slog.Info("Backfill complete", "enqueued", enqueued, "model", components.Generator.Model())

	fmt.Printf("Enqueued %d re-embed job(s).\n", enqueued)

	return exitSuccess
}

func getEnvAsInt(key string, defaultValue int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}

	return n
}
