package score

import (
	"context"
	"sync"
)

type entry struct {
	score    float64
	hitCount int
}

// Memory is an in-process Store for local runs and tests. It applies the same
// EMA semantics as the Postgres store under a mutex.
type Memory struct {
	mu     sync.Mutex
	clones map[string]map[string]*entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{clones: make(map[string]map[string]*entry)}
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, cloneID string, hashes []string, rating int, weight float64) (int, error) {
	if err := validateFeedback(rating, weight); err != nil {
		return 0, err
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	contribution := float64(rating) * LearningRate * weight

	m.mu.Lock()
	defer m.mu.Unlock()

	scores := m.clones[cloneID]
	if scores == nil {
		scores = make(map[string]*entry)
		m.clones[cloneID] = scores
	}

	for _, h := range hashes {
		if e, ok := scores[h]; ok {
			e.score = e.score*Decay + contribution
			e.hitCount++
		} else {
			scores[h] = &entry{score: contribution, hitCount: 1}
		}
	}
	return len(hashes), nil
}

// ScoreMap implements Store.
func (m *Memory) ScoreMap(ctx context.Context, cloneID string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]float64, len(m.clones[cloneID]))
	for h, e := range m.clones[cloneID] {
		out[h] = e.score
	}
	return out, nil
}

// DeleteClone implements Store.
func (m *Memory) DeleteClone(ctx context.Context, cloneID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clones, cloneID)
	return nil
}

// HitCount reports how many feedback events touched a chunk. Test helper.
func (m *Memory) HitCount(cloneID, hash string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.clones[cloneID][hash]; ok {
		return e.hitCount
	}
	return 0
}
