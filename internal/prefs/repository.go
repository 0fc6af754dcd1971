package prefs

import (
	"context"
	"sync"
)

// Repository persists the user's preferences.
type Repository interface {
	// Get returns the persisted preferences, or ErrPreferencesNotFound.
	Get(ctx context.Context) (*Preferences, error)

	// Upsert stores the full preference record. Upserts are idempotent:
	// replaying the same record is harmless.
	Upsert(ctx context.Context, p Preferences) error
}

// MemoryRepository is an in-memory Repository for tests and local runs.
type MemoryRepository struct {
	mu    sync.RWMutex
	prefs *Preferences
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Get(_ context.Context) (*Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.prefs == nil {
		return nil, ErrPreferencesNotFound
	}
	p := *r.prefs
	return &p, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, p Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs = &p
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
