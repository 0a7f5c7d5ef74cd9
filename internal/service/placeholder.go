package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/quackform/vibes/internal/models"
	"github.com/quackform/vibes/internal/vibeerrors"
	"github.com/quackform/vibes/pkg/embeddings"
)

const (
	maxNarrativeRunes     = 1000
	maxPlaceholderCampus  = 3
	maxPlaceholderProject = 5
	defaultNarrative      = "New 42 student on 42Connect"
	defaultPlaceholder    = "new 42 student on 42connect"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s]+`)

// ProvisionPlaceholderVibe makes sure a newcomer has a searchable vibe before writing one.
// The narrative is built from the profile and embedded with the deterministic fallback so no
// provider is called. An existing vibe is never replaced. created is false when the profile
// has neither login nor email, or when the uid already has a vibe.
func (s *VibesService) ProvisionPlaceholderVibe(ctx context.Context, profile models.Profile) (models.Vibe, bool, error) {
	uid, ok := placeholderUID(profile)
	if !ok {
		s.logger.DebugContext(ctx, "placeholder vibe: skip, no login or email")

		return models.Vibe{}, false, nil
	}

	existing, err := s.store.Get(ctx, uid)
	if err == nil {
		return *existing, false, nil
	}

	if !errors.Is(err, vibeerrors.ErrNotFound) {
		return models.Vibe{}, false, asStoreError("get", uid, err)
	}

	narrative := PlaceholderNarrative(profile)
	normalized := normalizePlaceholder(narrative)
	dim := s.generator.Dimension()

	upsert := models.VibeUpsert{
		UID:            uid,
		OriginalText:   narrative,
		NormalizedText: normalized,
		Embedding:      embeddings.Deterministic(normalized, dim),
		EmbeddingModel: embeddings.DeterministicModel(dim),
	}

	if err := s.store.Upsert(ctx, upsert); err != nil {
		s.logger.ErrorContext(ctx, "placeholder vibe: upsert failed", "uid", uid, "error", err)

		return models.Vibe{}, false, asStoreError("upsert", uid, err)
	}

	s.logger.InfoContext(ctx, "placeholder vibe provisioned", "uid", uid)

	return models.Vibe{
		UID:            upsert.UID,
		OriginalText:   upsert.OriginalText,
		NormalizedText: upsert.NormalizedText,
		EmbeddingModel: upsert.EmbeddingModel,
	}, true, nil
}

// placeholderUID prefers the login, then the email, cut to MaxUIDLength bytes.
func placeholderUID(p models.Profile) (string, bool) {
	uid := p.IntraLogin
	if uid == "" {
		uid = p.Email
	}

	if uid == "" {
		return "", false
	}

	return truncateBytes(uid, MaxUIDLength), true
}

// PlaceholderNarrative describes a profile in at most 1000 characters, e.g.
// "Ada just joined 42Connect. profile type student. based in Paris. campus Paris. projects libft (finished) mark 125".
func PlaceholderNarrative(p models.Profile) string {
	segments := make([]string, 0, 5)

	display := firstNonEmpty(p.DisplayName, p.UsualFullName, p.IntraLogin)
	if display != "" {
		segments = append(segments, display+" just joined 42Connect")
	} else {
		segments = append(segments, "A new 42 student just joined 42Connect")
	}

	if p.Kind != "" {
		segments = append(segments, "profile type "+p.Kind)
	}

	if p.Location != "" {
		segments = append(segments, "based in "+p.Location)
	}

	campus := make([]string, 0, maxPlaceholderCampus)
	for _, c := range p.Campus {
		if c.Name != "" {
			campus = append(campus, c.Name)
		}
	}

	if len(campus) > 0 {
		segments = append(segments, "campus "+strings.Join(campus[:min(len(campus), maxPlaceholderCampus)], ", "))
	}

	highlights := make([]string, 0, maxPlaceholderProject)
	for _, project := range p.Projects {
		if project.Name == "" || project.Status == "" {
			continue
		}

		snippet := project.Name + " (" + project.Status + ")"
		if project.FinalMark != nil {
			snippet += " mark " + strconv.FormatFloat(*project.FinalMark, 'f', -1, 64)
		}

		highlights = append(highlights, snippet)
		if len(highlights) == maxPlaceholderProject {
			break
		}
	}

	if len(highlights) > 0 {
		segments = append(segments, "projects "+strings.Join(highlights, "; "))
	}

	narrative := strings.TrimSpace(strings.Join(segments, ". "))
	if narrative == "" {
		narrative = defaultNarrative
	}

	return truncateRunes(narrative, maxNarrativeRunes)
}

// normalizePlaceholder keeps lowercase letters, digits and single spaces.
func normalizePlaceholder(text string) string {
	text = nonAlphanumeric.ReplaceAllString(strings.ToLower(text), " ")
	text = strings.Join(strings.Fields(text), " ")

	if text == "" {
		return defaultPlaceholder
	}

	return text
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// truncateRunes cuts s to limit runes, ending with an ellipsis when shortened.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return strings.TrimRightFunc(string(runes[:limit-1]), unicode.IsSpace) + "…"
}

// truncateBytes cuts s to at most limit bytes without splitting a UTF-8 sequence.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
