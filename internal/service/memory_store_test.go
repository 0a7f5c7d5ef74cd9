package service

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quackform/vibes/internal/models"
	"github.com/quackform/vibes/internal/vibeerrors"
)

// memoryStore is an in-process VibesStore with the same upsert and ordering semantics as the
// database backends.
type memoryStore struct {
	mu     sync.Mutex
	order  []string
	vibes  map[string]models.Vibe
	now    func() time.Time
	writes int
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{vibes: map[string]models.Vibe{}, now: now}
}

func (m *memoryStore) Upsert(_ context.Context, v models.VibeUpsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	created := now

	if existing, ok := m.vibes[v.UID]; ok {
		created = *existing.CreatedAt
	} else {
		m.order = append(m.order, v.UID)
	}

	m.vibes[v.UID] = models.Vibe{
		UID:            v.UID,
		OriginalText:   v.OriginalText,
		NormalizedText: v.NormalizedText,
		Embedding:      slices.Clone(v.Embedding),
		EmbeddingModel: v.EmbeddingModel,
		CreatedAt:      &created,
		UpdatedAt:      &now,
	}
	m.writes++

	return nil
}

func (m *memoryStore) Get(_ context.Context, uid string) (*models.Vibe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vibes[uid]
	if !ok {
		return nil, vibeerrors.NewNotFoundError("vibe", "vibe not found")
	}

	return &v, nil
}

func (m *memoryStore) List(_ context.Context, limit int) ([]models.Vibe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Vibe, 0, len(m.vibes))
	for _, uid := range m.order {
		out = append(out, m.vibes[uid])
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(*out[j].UpdatedAt) })

	return out[:min(limit, len(out))], nil
}

func (m *memoryStore) Nearest(_ context.Context, query []float32, limit int) ([]models.VibeCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.VibeCandidate, 0, len(m.vibes))
	for _, uid := range m.order {
		v := m.vibes[uid]

		var dot float64
		for i := range query {
			dot += float64(query[i]) * float64(v.Embedding[i])
		}

		v.Embedding = nil
		out = append(out, models.VibeCandidate{Vibe: v, Distance: 1 - dot})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })

	return out[:min(limit, len(out))], nil
}

func (m *memoryStore) Wipe(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.vibes))
	m.vibes = map[string]models.Vibe{}
	m.order = nil

	return n, nil
}

func (m *memoryStore) ListStale(_ context.Context, model string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string

	for _, uid := range m.order {
		if m.vibes[uid].EmbeddingModel != model {
			out = append(out, uid)
		}
	}

	return out[:min(limit, len(out))], nil
}

// tokenBagClient embeds text as a bag of hashed tokens, so texts sharing words are close.
type tokenBagClient struct {
	dim int
}

func (c tokenBagClient) CreateEmbedding(_ context.Context, input string) ([]float32, error) {
	vec := make([]float32, c.dim)

	for _, tok := range strings.Fields(input) {
		var h uint32 = 2166136261
		for i := range len(tok) {
			h = (h ^ uint32(tok[i])) * 16777619
		}

		vec[h%uint32(c.dim)]++
	}

	return vec, nil
}
