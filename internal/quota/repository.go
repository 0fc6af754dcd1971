package quota

import (
	"context"
	"errors"
	"sync"
)

// ErrQuotaNotFound is returned when no quota record has been persisted yet
// (first run).
var ErrQuotaNotFound = errors.New("quota record not found")

// Repository defines the interface for quota persistence. The durable copy
// trails the in-memory ledger; reads happen once at startup and writes are
// full-record upserts scheduled by the persistence syncer.
type Repository interface {
	// Get retrieves the persisted quota record.
	Get(ctx context.Context) (*Usage, error)

	// Upsert writes the full quota record, creating it if absent.
	Upsert(ctx context.Context, usage Usage) error
}

// MemoryRepository is an in-memory implementation of Repository, used in
// tests and when running without a database.
type MemoryRepository struct {
	mu    sync.RWMutex
	usage *Usage
}

// NewMemoryRepository creates an empty in-memory quota repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Get retrieves the stored quota record.
func (r *MemoryRepository) Get(_ context.Context) (*Usage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.usage == nil {
		return nil, ErrQuotaNotFound
	}
	u := *r.usage
	return &u, nil
}

// Upsert stores the quota record.
func (r *MemoryRepository) Upsert(_ context.Context, usage Usage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.usage = &usage
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
