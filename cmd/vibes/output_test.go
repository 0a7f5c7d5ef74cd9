package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/quackform/vibes/internal/models"
)

func sampleVibe() models.Vibe {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	return models.Vibe{
		UID:            "alice",
		OriginalText:   "I'm into chess!",
		NormalizedText: "i am into chess",
		Embedding:      []float32{1, 0},
		EmbeddingModel: "text-embedding-3-small",
		CreatedAt:      &created,
	}
}

func TestWriteVibe_text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeVibe(&buf, sampleVibe(), outputText))

	out := buf.String()
	assert.Contains(t, out, "uid: alice\n")
	assert.Contains(t, out, "created_at: 2026-03-01T12:00:00Z\n")
	assert.Contains(t, out, "updated_at: -\n")
	assert.Contains(t, out, "processed vibe:\ni am into chess\n")
}

func TestWriteVibe_yamlOmitsEmbedding(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeVibe(&buf, sampleVibe(), outputYAML))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "alice", decoded["uid"])
	assert.Equal(t, "i am into chess", decoded["normalized_text"])
	assert.NotContains(t, decoded, "embedding")
	assert.NotContains(t, decoded, "updated_at")
}

func TestWriteSearchResults(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		writeSearchResults(&buf, nil)
		assert.Equal(t, "No matching vibes.\n", buf.String())
	})

	t.Run("ranked with breakdown", func(t *testing.T) {
		var buf bytes.Buffer
		writeSearchResults(&buf, []models.SearchResult{{
			Vibe:         models.Vibe{UID: "bob", OriginalText: "learn french", NormalizedText: "learn french"},
			Similarity:   0.9,
			FinalScore:   0.87,
			OverlapTerms: []string{"french", "learn"},
		}})

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 4)
		assert.True(t, strings.HasPrefix(lines[0], "1. uid=bob | score=0.870 (cosine 0.900"))
		assert.Equal(t, "   overlap: french, learn", lines[3])
	})
}

func TestWriteUIDs_sortedCaseInsensitive(t *testing.T) {
	var buf bytes.Buffer
	writeUIDs(&buf, []models.Vibe{{UID: "carol"}, {UID: "Bob"}, {UID: "alice"}})
	assert.Equal(t, "alice\nBob\ncarol\n", buf.String())
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), &out, "Sure?"), "input %q", tt.input)
		assert.Equal(t, "Sure? [y/N]: ", out.String())
	}
}
