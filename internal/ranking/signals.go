package ranking

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9']+`)

// stopWords carry intent ("i want to learn") rather than topic and never count as overlap.
var stopWords = map[string]struct{}{
	"i": {}, "want": {}, "to": {}, "like": {}, "would": {},
	"some": {}, "any": {}, "the": {}, "a": {}, "an": {},
	"language": {}, "speak": {}, "play": {}, "learn": {}, "practice": {},
}

const day = 24 * time.Hour

// Similarity converts a cosine distance into a similarity in [0, 1].
func Similarity(distance float64) float64 {
	return clamp01(1 - distance)
}

// Terms returns the set of lowercase alphanumeric/apostrophe tokens in text, minus stop words.
func Terms(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopWords[tok]; stop {
			continue
		}

		terms[tok] = struct{}{}
	}

	return terms
}

// LexicalOverlap is the fraction of the query's terms that also appear in doc, with the shared
// terms sorted. Extra terms in doc do not lower the score.
func LexicalOverlap(query, doc string) (float64, []string) {
	queryTerms := Terms(query)
	docTerms := Terms(doc)

	if len(queryTerms) == 0 || len(docTerms) == 0 {
		return 0, []string{}
	}

	shared := make([]string, 0, len(queryTerms))
	for term := range queryTerms {
		if _, ok := docTerms[term]; ok {
			shared = append(shared, term)
		}
	}

	sort.Strings(shared)

	return float64(len(shared)) / float64(len(queryTerms)), shared
}

// RecencyDecay returns exp(-age/tau) for the first non-nil reference time, clamped to [0, 1].
// Future timestamps count as age zero; with no reference time the decay is 0.
func RecencyDecay(now time.Time, tauDays float64, refs ...*time.Time) float64 {
	var ref *time.Time

	for _, r := range refs {
		if r != nil {
			ref = r

			break
		}
	}

	if ref == nil || tauDays <= 0 {
		return 0
	}

	ageDays := math.Max(0, now.Sub(*ref).Hours()/day.Hours())

	return clamp01(math.Exp(-ageDays / tauDays))
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
