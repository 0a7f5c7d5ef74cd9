// Package normalize turns raw vibe text into the canonical form that is embedded and stored.
package normalize

import (
	"strings"
	"unicode"

	"github.com/quackform/vibes/internal/vibeerrors"
)

// intentPrefixes are stripped from the start of lowercased text; only the first match is removed.
// Longer phrasings come before the shorter ones they share a start with.
var intentPrefixes = []string{
	"i would like to ",
	"i'd like to ",
	"i want to learn how to ",
	"i want to practice ",
	"i want to learn ",
	"i want to speak ",
	"i want to play ",
	"i want to ",
}

const trailingPunctuation = "?!.,;:"

// Lemmatizer rewrites verb tokens of an already cleaned text to their base form.
type Lemmatizer interface {
	LemmatizeVerbs(text string) string
}

// Normalizer applies the cleanup steps and, when configured, verb lemmatization.
// A Normalizer is safe for concurrent use when its Lemmatizer is.
type Normalizer struct {
	lemmatizer Lemmatizer
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLemmatizer enables verb lemmatization as the final step. Nil disables it.
func WithLemmatizer(l Lemmatizer) Option {
	return func(n *Normalizer) {
		n.lemmatizer = l
	}
}

// New creates a Normalizer. Without options it performs no lemmatization.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Normalize returns the canonical form of raw or a *vibeerrors.NormalizationError when raw is
// blank or nothing is left after cleanup.
func (n *Normalizer) Normalize(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", vibeerrors.NewNormalizationError("cannot normalize empty text")
	}

	text = Clean(text)
	if text == "" {
		return "", vibeerrors.NewNormalizationError("text normalization removed all content")
	}

	if n.lemmatizer != nil {
		if lemmatized := strings.TrimSpace(n.lemmatizer.LemmatizeVerbs(text)); lemmatized != "" {
			text = lemmatized
		}
	}

	return text, nil
}

// Clean lowercases text, strips one intent prefix, collapses whitespace and removes trailing
// punctuation. It never lemmatizes and may return an empty string.
func Clean(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))

	for _, prefix := range intentPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = text[len(prefix):]

			break
		}
	}

	text = strings.Join(strings.Fields(text), " ")

	// Punctuation and any whitespace it exposes go together so a second pass changes nothing.
	return strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(trailingPunctuation, r)
	})
}
