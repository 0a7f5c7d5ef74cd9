package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/spf13/cobra"

	"github.com/quackform/vibes/internal/bootstrap"
	"github.com/quackform/vibes/internal/service"
	"github.com/quackform/vibes/internal/vibeerrors"
)

var upsertCmd = &cobra.Command{
	Use:   "upsert <uid> <vibe>",
	Short: "Insert or replace the vibe for a uid",
	Args:  cobra.ExactArgs(2),
	RunE:  runUpsert,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <uid>",
	Short: "Show the vibe stored for a uid",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search vibes by meaning",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var listUIDsCmd = &cobra.Command{
	Use:   "list-uids",
	Short: "List stored uids",
	Args:  cobra.NoArgs,
	RunE:  runListUIDs,
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete every stored vibe",
	Args:  cobra.NoArgs,
	RunE:  runWipe,
}

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Enqueue re-embedding for vibes stored under another model",
	Long:  "Enqueue one re-embed job per vibe whose embedding model differs from the configured one. The API server's workers process the jobs.",
	Args:  cobra.NoArgs,
	RunE:  runReembed,
}

// Flags
var (
	fetchOutput  string
	searchTopK   int
	listLimit    int
	wipeConfirm  bool
	reembedLimit int
)

func init() {
	rootCmd.AddCommand(upsertCmd, fetchCmd, searchCmd, listUIDsCmd, wipeCmd, reembedCmd)

	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", outputText, "Output format: text or yaml")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 5, "Number of results (1-50)")
	listUIDsCmd.Flags().IntVar(&listLimit, "limit", service.MaxListLimit, "Maximum number of uids")
	wipeCmd.Flags().BoolVar(&wipeConfirm, "confirm", false, "Skip the confirmation prompt")
	reembedCmd.Flags().IntVar(&reembedLimit, "limit", 0, "Maximum number of jobs to enqueue (0 for the default batch)")
}

var errNoVibe = errors.New("no vibe found")

func runUpsert(cmd *cobra.Command, args []string) error {
	vibe, err := globalComponents.Service.StoreVibe(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored vibe for '%s' (model %s).\n", vibe.UID, vibe.EmbeddingModel)

	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	if fetchOutput != outputText && fetchOutput != outputYAML {
		return fmt.Errorf("unknown output format %q (want %s or %s)", fetchOutput, outputText, outputYAML)
	}

	vibe, err := globalComponents.Service.GetVibe(cmd.Context(), args[0])
	if errors.Is(err, vibeerrors.ErrNotFound) {
		return fmt.Errorf("%w for uid '%s'", errNoVibe, args[0])
	}

	if err != nil {
		return err
	}

	return writeVibe(cmd.OutOrStdout(), *vibe, fetchOutput)
}

func runSearch(cmd *cobra.Command, args []string) error {
	results, err := globalComponents.Service.SearchVibes(cmd.Context(), args[0], searchTopK)
	if err != nil {
		return err
	}

	writeSearchResults(cmd.OutOrStdout(), results)

	return nil
}

func runListUIDs(cmd *cobra.Command, _ []string) error {
	vibes, err := globalComponents.Service.ListVibes(cmd.Context(), listLimit)
	if err != nil {
		return err
	}

	writeUIDs(cmd.OutOrStdout(), vibes)

	return nil
}

func runWipe(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if !wipeConfirm && !confirm(cmd.InOrStdin(), out,
		"This will delete all stored vibes. Are you sure you want to continue?") {
		fmt.Fprintln(out, "Aborted.")

		return nil
	}

	n, err := globalComponents.Service.WipeVibes(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "All vibes deleted (%d).\n", n)

	return nil
}

func runReembed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if err := bootstrap.MigrateRiver(ctx, globalComponents.Pool); err != nil {
		return err
	}

	// Insert-only client: no queues or workers, jobs are worked by the API server.
	riverClient, err := river.NewClient(riverpgxv5.New(globalComponents.Pool), &river.Config{})
	if err != nil {
		return fmt.Errorf("create River client: %w", err)
	}

	globalComponents.Service.SetReembedInserter(riverClient)

	enqueued, err := globalComponents.Service.EnqueueStaleReembeds(ctx, reembedLimit)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d re-embed job(s) for model %s.\n",
		enqueued, globalComponents.Generator.Model())

	return nil
}

// confirm asks a yes/no question on out and reads the answer from in. Only "y" or "yes" confirm.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
