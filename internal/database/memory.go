package database

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"prospect-portal/internal/models"
)

// MemoryRepository keeps aggregates in a map. Every read and write copies
// the aggregate so callers never share slices with the store.
type MemoryRepository struct {
	mu        sync.RWMutex
	prospects map[string]models.Prospect
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{prospects: make(map[string]models.Prospect)}
}

func (r *MemoryRepository) Load(_ context.Context, id string) (models.Prospect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prospects[id]
	if !ok {
		return models.Prospect{}, models.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) Save(_ context.Context, p models.Prospect) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prospects[p.ID] = p.Clone()
	return nil
}

// List returns all prospects, newest first
func (r *MemoryRepository) List(_ context.Context) ([]models.Prospect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Prospect, 0, len(r.prospects))
	for _, p := range r.prospects {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b models.Prospect) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.prospects[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.prospects, id)
	return nil
}

