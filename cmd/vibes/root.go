// Command vibes manages stored vibes from the command line.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quackform/vibes/internal/bootstrap"
	"github.com/quackform/vibes/internal/config"
	"github.com/quackform/vibes/internal/observability"
)

var (
	globalConfig     *config.Config
	globalComponents *bootstrap.Components
)

var rootCmd = &cobra.Command{
	Use:           "vibes",
	Short:         "Manage vibes stored with their embeddings",
	Long:          "Insert, fetch, search, list and wipe vibes, and enqueue re-embedding after a model change.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || (cmd.HasParent() && cmd.Parent().Name() == "completion") {
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		globalConfig = cfg

		// Logs go to stderr so command output stays pipeable.
		slog.SetDefault(observability.NewLogger(os.Stderr, logLevel(cfg), cfg.LogFormat))

		components, err := bootstrap.New(cmd.Context(), cfg, nil, slog.Default())
		if err != nil {
			return err
		}

		globalComponents = components

		return nil
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		if globalComponents != nil {
			globalComponents.Close()
			globalComponents = nil
		}

		return nil
	},
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured LOG_LEVEL instead of warn")
}

func logLevel(cfg *config.Config) string {
	if verbose {
		return cfg.LogLevel
	}

	return "warn"
}
