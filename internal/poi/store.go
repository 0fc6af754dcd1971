package poi

import (
	"context"
	"sync"
	"time"

	"github.com/roadtripper/roadtripper/internal/geo"
)

// Store defines the interface for the persisted POI cache tier.
type Store interface {
	// CachePOIs upserts cached rows. Rows share the identity of the POI
	// they carry, so re-fetching the same place refreshes its row.
	CachePOIs(ctx context.Context, rows []CachedPOI) error

	// CachedPOIs returns rows whose originating search center lies within
	// radiusMeters of center and whose age does not exceed maxAge.
	CachedPOIs(ctx context.Context, center geo.Point, radiusMeters int, maxAge time.Duration) ([]CachedPOI, error)

	// ClearExpired deletes rows older than maxAge and returns how many
	// were removed.
	ClearExpired(ctx context.Context, maxAge time.Duration) (int64, error)
}

// MemoryStore is an in-memory implementation of Store, used in tests and
// when running without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]CachedPOI
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory POI store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[string]CachedPOI),
		now:  time.Now,
	}
}

// CachePOIs upserts rows keyed by POI ID.
func (s *MemoryStore) CachePOIs(_ context.Context, rows []CachedPOI) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		s.rows[row.ID] = row
	}
	return nil
}

// CachedPOIs returns unexpired rows within radius of center.
func (s *MemoryStore) CachedPOIs(_ context.Context, center geo.Point, radiusMeters int, maxAge time.Duration) ([]CachedPOI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-maxAge)

	var result []CachedPOI
	for _, row := range s.rows {
		if row.CachedAt.Before(cutoff) {
			continue
		}
		if geo.ApproxDistance(center, row.SearchCenter) > float64(radiusMeters) {
			continue
		}
		result = append(result, row)
	}
	return result, nil
}

// ClearExpired deletes rows older than maxAge.
func (s *MemoryStore) ClearExpired(_ context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)

	var removed int64
	for id, row := range s.rows {
		if row.CachedAt.Before(cutoff) {
			delete(s.rows, id)
			removed++
		}
	}
	return removed, nil
}

var _ Store = (*MemoryStore)(nil)
