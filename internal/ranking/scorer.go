// Package ranking blends vector similarity, lexical overlap and recency into one relevance score
// and applies the relevance floor.
package ranking

import (
	"sort"
	"time"

	"github.com/quackform/vibes/internal/models"
)

// Default ranking policy.
const (
	DefaultSimilarityWeight = 0.80
	DefaultLexicalWeight    = 0.15
	DefaultRecencyWeight    = 0.05
	// DefaultRecencyTauDays is the e-folding time of the recency decay (half-life about 42 days).
	DefaultRecencyTauDays = 60.0
	// DefaultMinScore is the relevance floor: results scoring below it are never returned.
	DefaultMinScore = 0.35
)

// Policy holds the blending weights and the relevance floor.
type Policy struct {
	SimilarityWeight float64
	LexicalWeight    float64
	RecencyWeight    float64
	RecencyTauDays   float64
	MinScore         float64
}

// DefaultPolicy returns the production weights.
func DefaultPolicy() Policy {
	return Policy{
		SimilarityWeight: DefaultSimilarityWeight,
		LexicalWeight:    DefaultLexicalWeight,
		RecencyWeight:    DefaultRecencyWeight,
		RecencyTauDays:   DefaultRecencyTauDays,
		MinScore:         DefaultMinScore,
	}
}

// Scorer ranks nearest-neighbour candidates. It holds no mutable state.
type Scorer struct {
	policy Policy
	now    func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock sets the time source used for recency. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

// NewScorer creates a Scorer for policy.
func NewScorer(policy Policy, opts ...Option) *Scorer {
	s := &Scorer{policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Policy returns the scorer's policy.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// Score computes every signal for one candidate.
func (s *Scorer) Score(query string, c models.VibeCandidate, now time.Time) models.SearchResult {
	similarity := Similarity(c.Distance)
	lexical, terms := LexicalOverlap(query, c.OriginalText)
	recency := RecencyDecay(now, s.policy.RecencyTauDays, c.UpdatedAt, c.CreatedAt)

	return models.SearchResult{
		Vibe:           c.Vibe,
		Distance:       c.Distance,
		Similarity:     similarity,
		LexicalOverlap: lexical,
		RecencyDecay:   recency,
		FinalScore: s.policy.SimilarityWeight*similarity +
			s.policy.LexicalWeight*lexical +
			s.policy.RecencyWeight*recency,
		OverlapTerms: terms,
	}
}

// Rank scores candidates against query, orders them by final score (ties keep the store's
// nearest-first order), drops those under the relevance floor and returns at most topK.
// Candidates are never added, only filtered and reordered.
func (s *Scorer) Rank(query string, candidates []models.VibeCandidate, topK int) []models.SearchResult {
	if topK <= 0 || len(candidates) == 0 {
		return []models.SearchResult{}
	}

	now := s.now()

	scored := make([]models.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, s.Score(query, c, now))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FinalScore > scored[j].FinalScore
	})

	out := make([]models.SearchResult, 0, min(topK, len(scored)))
	for _, r := range scored {
		if r.FinalScore < s.policy.MinScore {
			continue
		}

		out = append(out, r)
		if len(out) == topK {
			break
		}
	}

	return out
}
