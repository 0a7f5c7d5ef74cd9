package models

import (
	"fmt"
	"time"
)

// Vibe is one stored record: the user's text, its normalized form and the unit-length embedding of
// that normalized form. UID is the primary key; CreatedAt never changes after the first write.
type Vibe struct {
	UID            string     `json:"uid" yaml:"uid"`
	OriginalText   string     `json:"original_text" yaml:"original_text"`
	NormalizedText string     `json:"normalized_text" yaml:"normalized_text"`
	Embedding      []float32  `json:"embedding,omitempty" yaml:"-"`
	EmbeddingModel string     `json:"embedding_model" yaml:"embedding_model"`
	CreatedAt      *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// VibeUpsert is the write payload for one uid. All fields are replaced on conflict.
type VibeUpsert struct {
	UID            string
	OriginalText   string
	NormalizedText string
	Embedding      []float32
	EmbeddingModel string
}

// VibeCandidate is a stored vibe returned by nearest-neighbour lookup together with its cosine
// distance to the query vector. Candidates do not carry their embedding.
type VibeCandidate struct {
	Vibe
	Distance float64 `json:"distance"`
}

// Embedding is a unit-length vector tagged with the model that produced it.
type Embedding struct {
	Vector []float32
	Model  string
}

// SearchResult is a candidate annotated with every ranking signal and the blended score.
type SearchResult struct {
	Vibe
	Distance       float64  `json:"distance"`
	Similarity     float64  `json:"similarity"`
	LexicalOverlap float64  `json:"lexical_overlap"`
	RecencyDecay   float64  `json:"recency_decay"`
	FinalScore     float64  `json:"final_score"`
	OverlapTerms   []string `json:"overlap_terms"`
}

// FormattedScore renders the score breakdown, e.g. "0.812 (cosine 0.900, lexical 1.000, recency 0.990)".
func (r SearchResult) FormattedScore() string {
	return fmt.Sprintf("%.3f (cosine %.3f, lexical %.3f, recency %.3f)",
		r.FinalScore, r.Similarity, r.LexicalOverlap, r.RecencyDecay)
}
