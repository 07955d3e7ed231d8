// Package vector provides an in-memory passage index for tests and for running
// tutord without pgvector.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloo-solutions/coursetutor/internal/domain"
)

// MemoryBackend keeps every course's passages in process memory and ranks
// them by brute-force cosine similarity.
type MemoryBackend struct {
	mu     sync.RWMutex
	stores map[string]map[string]domain.Passage
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{stores: make(map[string]map[string]domain.Passage)}
}

func (m *MemoryBackend) CreateStore(ctx context.Context, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[courseID]; !ok {
		m.stores[courseID] = make(map[string]domain.Passage)
	}
	return nil
}

func (m *MemoryBackend) StoreExists(ctx context.Context, courseID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.stores[courseID]
	return ok, nil
}

func (m *MemoryBackend) DropStore(ctx context.Context, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, courseID)
	return nil
}

func (m *MemoryBackend) InsertPassages(ctx context.Context, passages []domain.Passage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range passages {
		store, ok := m.stores[p.CourseID]
		if !ok {
			return fmt.Errorf("no store for course %s", p.CourseID)
		}
		if _, dup := store[p.ID]; dup {
			return fmt.Errorf("duplicate passage id %s", p.ID)
		}
	}
	for _, p := range passages {
		m.stores[p.CourseID][p.ID] = clonePassage(p)
	}
	return nil
}

func (m *MemoryBackend) ListByDocument(ctx context.Context, courseID, documentID string) ([]domain.Passage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(courseID, documentID), nil
}

func (m *MemoryBackend) listLocked(courseID, documentID string) []domain.Passage {
	var out []domain.Passage
	for _, p := range m.stores[courseID] {
		if p.DocumentID == documentID {
			out = append(out, clonePassage(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

// ReplaceDocumentPassages swaps the passage set under the write lock, so
// concurrent searches see either the old or the new set.
func (m *MemoryBackend) ReplaceDocumentPassages(ctx context.Context, courseID, documentID string, passages []domain.Passage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	store, ok := m.stores[courseID]
	if !ok {
		return fmt.Errorf("no store for course %s", courseID)
	}
	for id, p := range store {
		if p.DocumentID == documentID {
			delete(store, id)
		}
	}
	for _, p := range passages {
		store[p.ID] = clonePassage(p)
	}
	return nil
}

func (m *MemoryBackend) DeleteByDocument(ctx context.Context, courseID, documentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.stores[courseID] {
		if p.DocumentID == documentID {
			delete(m.stores[courseID], id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) CountByDocument(ctx context.Context, courseID, documentID string, filter domain.PassageFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.stores[courseID] {
		if p.DocumentID == documentID && filter.Matches(p) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) Search(ctx context.Context, courseID string, embedding []float32, k int, filter domain.PassageFilter) ([]domain.ScoredPassage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]domain.ScoredPassage, 0)
	if k <= 0 {
		return results, nil
	}
	for _, p := range m.stores[courseID] {
		if !filter.Matches(p) {
			continue
		}
		results = append(results, domain.ScoredPassage{
			Passage: clonePassage(p),
			Score:   CosineSimilarity(embedding, p.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// CosineSimilarity returns the cosine of a and b clamped to [0,1].
// Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb))))
}

func clonePassage(p domain.Passage) domain.Passage {
	if p.Embedding != nil {
		p.Embedding = append([]float32(nil), p.Embedding...)
	}
	return p
}
