package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quackform/vibes/internal/models"
)

const (
	outputText = "text"
	outputYAML = "yaml"
)

func writeVibe(w io.Writer, vibe models.Vibe, format string) error {
	if format == outputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(vibe); err != nil {
			return fmt.Errorf("encode vibe: %w", err)
		}

		return enc.Close()
	}

	fmt.Fprintf(w, "uid: %s\n", vibe.UID)
	fmt.Fprintf(w, "model: %s\n", vibe.EmbeddingModel)
	fmt.Fprintf(w, "created_at: %s\n", formatTime(vibe.CreatedAt))
	fmt.Fprintf(w, "updated_at: %s\n", formatTime(vibe.UpdatedAt))
	fmt.Fprintln(w, "original vibe:")
	fmt.Fprintln(w, vibe.OriginalText)
	fmt.Fprintln(w, "processed vibe:")
	fmt.Fprintln(w, vibe.NormalizedText)

	return nil
}

func writeSearchResults(w io.Writer, results []models.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching vibes.")

		return
	}

	for i, r := range results {
		fmt.Fprintf(w, "%d. uid=%s | score=%s | model=%s\n", i+1, r.UID, r.FormattedScore(), r.EmbeddingModel)
		fmt.Fprintf(w, "   original: %s\n", r.OriginalText)
		fmt.Fprintf(w, "   processed: %s\n", r.NormalizedText)

		if len(r.OverlapTerms) > 0 {
			fmt.Fprintf(w, "   overlap: %s\n", strings.Join(r.OverlapTerms, ", "))
		}
	}
}

// writeUIDs prints uids sorted case-insensitively, one per line.
func writeUIDs(w io.Writer, vibes []models.Vibe) {
	if len(vibes) == 0 {
		fmt.Fprintln(w, "No vibes stored.")

		return
	}

	uids := make([]string, len(vibes))
	for i := range vibes {
		uids[i] = vibes[i].UID
	}

	slices.SortFunc(uids, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})

	for _, uid := range uids {
		fmt.Fprintln(w, uid)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return t.UTC().Format(time.RFC3339)
}
