package poi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/quota"
)

var testCenter = geo.Point{Lat: 52.3676, Lng: 4.9041}

// fakeLookup serves canned result sets keyed by radius and records every
// remote call.
type fakeLookup struct {
	mu       sync.Mutex
	byRadius map[int][]POI
	calls    []int
	err      error
}

func (f *fakeLookup) SearchNearby(_ context.Context, _ geo.Point, radiusMeters int, _ []Category) ([]POI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, radiusMeters)
	if f.err != nil {
		return nil, f.err
	}
	return f.byRadius[radiusMeters], nil
}

func (f *fakeLookup) GetPlace(_ context.Context, id string) (*POI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pois := range f.byRadius {
		for i := range pois {
			if pois[i].ID == id {
				p := pois[i]
				return &p, nil
			}
		}
	}
	return nil, ErrPlaceNotFound
}

func (f *fakeLookup) Name() string { return "fake" }

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func makePOIs(n int, category Category, spacing float64) []POI {
	pois := make([]POI, 0, n)
	for i := 0; i < n; i++ {
		pois = append(pois, POI{
			ID:       fmt.Sprintf("%s-%d", category, i),
			Name:     fmt.Sprintf("Place %d", i),
			Category: category,
			Location: geo.Point{
				Lat: testCenter.Lat + float64(i+1)*spacing,
				Lng: testCenter.Lng,
			},
			Rating: 4.5,
		})
	}
	return pois
}

func newTestLedger(t *testing.T) *quota.Ledger {
	t.Helper()
	return quota.NewLedger(quota.LedgerConfig{Logger: zerolog.Nop()})
}

func newTestEngine(t *testing.T, lookup Lookup, store Store, ledger *quota.Ledger) *Engine {
	t.Helper()
	if store == nil {
		store = NewMemoryStore()
	}
	return NewEngine(EngineConfig{
		Lookup: lookup,
		Store:  store,
		Ledger: ledger,
		Logger: zerolog.Nop(),
	})
}

func allCategoriesFilter() SearchFilter {
	return SearchFilter{Categories: FreeTierCategories(), MinRating: 0}
}

func TestEngineEmptyCategoriesShortCircuits(t *testing.T) {
	lookup := &fakeLookup{}
	ledger := newTestLedger(t)
	engine := newTestEngine(t, lookup, nil, ledger)

	result, err := engine.SearchNearby(context.Background(), testCenter, 0, SearchFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.POIs) != 0 {
		t.Errorf("expected empty result, got %d pois", len(result.POIs))
	}
	if lookup.callCount() != 0 {
		t.Errorf("expected no remote calls, got %d", lookup.callCount())
	}
	if got := ledger.Snapshot().SearchCount; got != 0 {
		t.Errorf("empty-category search must not consume budget, count=%d", got)
	}
}

func TestEngineProgressiveRadiusExpansion(t *testing.T) {
	lookup := &fakeLookup{byRadius: map[int][]POI{
		1000: makePOIs(1, CategoryRestaurant, 0.001),
		2000: makePOIs(1, CategoryRestaurant, 0.001),
		3000: makePOIs(5, CategoryRestaurant, 0.001),
	}}
	ledger := newTestLedger(t)
	engine := newTestEngine(t, lookup, nil, ledger)

	result, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lookup.callCount() != 3 {
		t.Fatalf("expected 3 remote calls (1000, 2000, 3000), got %v", lookup.calls)
	}
	if result.SearchRadiusMeters != 3000 {
		t.Errorf("expected final radius 3000, got %d", result.SearchRadiusMeters)
	}
	if len(result.POIs) != 5 {
		t.Errorf("expected 5 pois, got %d", len(result.POIs))
	}
	if got := ledger.Snapshot().SearchCount; got != 1 {
		t.Errorf("one completed search must consume one budget unit, count=%d", got)
	}
}

func TestEngineExpansionStopsAtMaxRadius(t *testing.T) {
	// No radius ever yields enough results; the loop must stop at the cap.
	lookup := &fakeLookup{byRadius: map[int][]POI{}}
	ledger := newTestLedger(t)
	engine := newTestEngine(t, lookup, nil, ledger)

	result, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SearchRadiusMeters != 10000 {
		t.Errorf("expected final radius 10000, got %d", result.SearchRadiusMeters)
	}
	if lookup.callCount() != 10 {
		t.Errorf("expected 10 remote calls, got %d", lookup.callCount())
	}
}

func TestEngineMemoryCacheHit(t *testing.T) {
	lookup := &fakeLookup{byRadius: map[int][]POI{
		1000: makePOIs(4, CategoryRestaurant, 0.001),
	}}
	ledger := newTestLedger(t)
	engine := newTestEngine(t, lookup, nil, ledger)

	if _, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter()); err != nil {
		t.Fatalf("first search: %v", err)
	}
	// Nearby center, same categories: must be served from memory.
	nearby := geo.Point{Lat: testCenter.Lat + 0.0005, Lng: testCenter.Lng}
	result, err := engine.SearchNearby(context.Background(), nearby, 0, allCategoriesFilter())
	if err != nil {
		t.Fatalf("second search: %v", err)
	}

	if lookup.callCount() != 1 {
		t.Errorf("expected 1 remote call across both searches, got %d", lookup.callCount())
	}
	if len(result.POIs) != 4 {
		t.Errorf("expected 4 pois from cache, got %d", len(result.POIs))
	}
	// Both searches count against the budget even when served from cache.
	if got := ledger.Snapshot().SearchCount; got != 2 {
		t.Errorf("expected search count 2, got %d", got)
	}
}

func TestEngineCacheMissOnMovedCenter(t *testing.T) {
	lookup := &fakeLookup{byRadius: map[int][]POI{
		1000: makePOIs(4, CategoryRestaurant, 0.001),
	}}
	engine := newTestEngine(t, lookup, nil, newTestLedger(t))

	if _, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter()); err != nil {
		t.Fatalf("first search: %v", err)
	}
	// ~1.1km north: well past the center compatibility threshold.
	far := geo.Point{Lat: testCenter.Lat + 0.01, Lng: testCenter.Lng}
	if _, err := engine.SearchNearby(context.Background(), far, 0, allCategoriesFilter()); err != nil {
		t.Fatalf("second search: %v", err)
	}

	if lookup.callCount() != 2 {
		t.Errorf("expected a fresh remote call for the moved center, got %d calls", lookup.callCount())
	}
}

func TestEnginePersistedCacheHit(t *testing.T) {
	store := NewMemoryStore()
	pois := makePOIs(5, CategoryRestaurant, 0.001)
	rows := make([]CachedPOI, 0, len(pois))
	for _, p := range pois {
		rows = append(rows, CachedPOI{
			POI:                p,
			CachedAt:           time.Now(),
			SearchCenter:       testCenter,
			SearchRadiusMeters: 1000,
		})
	}
	if err := store.CachePOIs(context.Background(), rows); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	lookup := &fakeLookup{}
	engine := newTestEngine(t, lookup, store, newTestLedger(t))

	result, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lookup.callCount() != 0 {
		t.Errorf("expected zero remote calls, got %d", lookup.callCount())
	}
	if len(result.POIs) != 5 {
		t.Errorf("expected 5 pois from persisted cache, got %d", len(result.POIs))
	}
}

func TestEnginePersistedCacheRejectedWhenCategoriesBarelyMatch(t *testing.T) {
	// 3 of 10 rows match the requested category: below the half-match
	// threshold, so the engine must go remote.
	store := NewMemoryStore()
	var rows []CachedPOI
	for _, p := range makePOIs(3, CategoryCafe, 0.001) {
		rows = append(rows, CachedPOI{POI: p, CachedAt: time.Now(), SearchCenter: testCenter, SearchRadiusMeters: 1000})
	}
	for _, p := range makePOIs(7, CategoryHotel, 0.001) {
		rows = append(rows, CachedPOI{POI: p, CachedAt: time.Now(), SearchCenter: testCenter, SearchRadiusMeters: 1000})
	}
	if err := store.CachePOIs(context.Background(), rows); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	lookup := &fakeLookup{byRadius: map[int][]POI{
		1000: makePOIs(4, CategoryCafe, 0.001),
	}}
	engine := newTestEngine(t, lookup, store, newTestLedger(t))

	result, err := engine.SearchNearby(context.Background(), testCenter, 0, SearchFilter{
		Categories: []Category{CategoryCafe},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lookup.callCount() == 0 {
		t.Fatal("expected the engine to fall through to remote")
	}
	for _, p := range result.POIs {
		if p.Category != CategoryCafe {
			t.Errorf("unexpected category %s in result", p.Category)
		}
	}
}

func TestEngineQuotaExceeded(t *testing.T) {
	usage := quota.DefaultUsage(time.Now())
	usage.SearchCount = usage.SearchLimit
	ledger := quota.NewLedger(quota.LedgerConfig{Initial: &usage, Logger: zerolog.Nop()})

	lookup := &fakeLookup{}
	engine := newTestEngine(t, lookup, nil, ledger)

	_, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter())
	if !errors.Is(err, ErrSearchQuotaExceeded) {
		t.Fatalf("expected ErrSearchQuotaExceeded, got %v", err)
	}
	if lookup.callCount() != 0 {
		t.Errorf("exceeded budget must not reach the network, calls=%d", lookup.callCount())
	}
}

func TestEngineRemoteFailureAborts(t *testing.T) {
	lookup := &fakeLookup{err: ErrLookupUnavailable}
	ledger := newTestLedger(t)
	engine := newTestEngine(t, lookup, nil, ledger)

	_, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter())
	if !errors.Is(err, ErrLookupUnavailable) {
		t.Fatalf("expected ErrLookupUnavailable, got %v", err)
	}
	if got := ledger.Snapshot().SearchCount; got != 0 {
		t.Errorf("failed search must not consume budget, count=%d", got)
	}
}

func TestEngineResultDistancesAndOrdering(t *testing.T) {
	// Remote returns the farthest POI first; the engine must recompute
	// distances against the query center and re-sort ascending.
	far := POI{ID: "far", Category: CategoryRestaurant, Rating: 4.5,
		Location: geo.Point{Lat: testCenter.Lat + 0.01, Lng: testCenter.Lng}}
	near := POI{ID: "near", Category: CategoryRestaurant, Rating: 4.5,
		Location: geo.Point{Lat: testCenter.Lat + 0.001, Lng: testCenter.Lng}}
	mid := POI{ID: "mid", Category: CategoryRestaurant, Rating: 4.5,
		Location: geo.Point{Lat: testCenter.Lat + 0.005, Lng: testCenter.Lng}}

	lookup := &fakeLookup{byRadius: map[int][]POI{
		1000: {far, near, mid},
	}}
	engine := newTestEngine(t, lookup, nil, newTestLedger(t))

	result, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := make([]string, 0, len(result.POIs))
	for _, p := range result.POIs {
		ids = append(ids, p.ID)
		if p.DistanceMeters <= 0 {
			t.Errorf("poi %s has no recomputed distance", p.ID)
		}
	}
	want := []string{"near", "mid", "far"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, ids)
		}
	}
}

func TestEngineRatingAndOpenNowFilters(t *testing.T) {
	open, closed := true, false
	pois := []POI{
		{ID: "good-open", Category: CategoryRestaurant, Rating: 4.5, IsOpen: &open,
			Location: geo.Point{Lat: testCenter.Lat + 0.001, Lng: testCenter.Lng}},
		{ID: "good-closed", Category: CategoryRestaurant, Rating: 4.8, IsOpen: &closed,
			Location: geo.Point{Lat: testCenter.Lat + 0.002, Lng: testCenter.Lng}},
		{ID: "low-rated", Category: CategoryRestaurant, Rating: 3.2, IsOpen: &open,
			Location: geo.Point{Lat: testCenter.Lat + 0.003, Lng: testCenter.Lng}},
	}
	lookup := &fakeLookup{byRadius: map[int][]POI{1000: pois}}
	engine := newTestEngine(t, lookup, nil, newTestLedger(t))

	result, err := engine.SearchNearby(context.Background(), testCenter, 0, SearchFilter{
		Categories:  []Category{CategoryRestaurant},
		MinRating:   4.0,
		OpenNowOnly: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.POIs) != 1 || result.POIs[0].ID != "good-open" {
		t.Fatalf("expected only good-open, got %+v", result.POIs)
	}
}

func TestEngineGetPlacePrefersCache(t *testing.T) {
	lookup := &fakeLookup{byRadius: map[int][]POI{
		1000: makePOIs(3, CategoryRestaurant, 0.001),
	}}
	engine := newTestEngine(t, lookup, nil, newTestLedger(t))

	if _, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter()); err != nil {
		t.Fatalf("search: %v", err)
	}
	calls := lookup.callCount()

	place, err := engine.GetPlace(context.Background(), "restaurant-0")
	if err != nil {
		t.Fatalf("get place: %v", err)
	}
	if place.ID != "restaurant-0" {
		t.Errorf("unexpected place %s", place.ID)
	}
	if lookup.callCount() != calls {
		t.Errorf("cached place must not trigger a remote call")
	}

	if _, err := engine.GetPlace(context.Background(), "missing"); !errors.Is(err, ErrPlaceNotFound) {
		t.Errorf("expected ErrPlaceNotFound, got %v", err)
	}
}

func TestEngineInvalidateCache(t *testing.T) {
	lookup := &fakeLookup{byRadius: map[int][]POI{
		1000: makePOIs(3, CategoryRestaurant, 0.001),
	}}
	engine := newTestEngine(t, lookup, nil, newTestLedger(t))

	if _, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter()); err != nil {
		t.Fatalf("search: %v", err)
	}
	if !engine.Stats().Present {
		t.Fatal("expected cache to be present after search")
	}

	engine.InvalidateCache()
	if engine.Stats().Present {
		t.Error("expected cache to be gone after invalidation")
	}
}

type fixedFlags struct {
	progressiveOff bool
	persistedOff   bool
}

func (f fixedFlags) IsProgressiveSearchDisabled(_ context.Context) bool { return f.progressiveOff }
func (f fixedFlags) IsPersistedCacheDisabled(_ context.Context) bool    { return f.persistedOff }

func TestEngineProgressiveSearchDisabled(t *testing.T) {
	// Only the 3000m tier has enough results, but expansion is switched
	// off so the engine must settle for the initial radius.
	lookup := &fakeLookup{byRadius: map[int][]POI{
		1000: makePOIs(1, CategoryRestaurant, 0.001),
		3000: makePOIs(5, CategoryRestaurant, 0.001),
	}}
	engine := NewEngine(EngineConfig{
		Lookup: lookup,
		Store:  NewMemoryStore(),
		Ledger: newTestLedger(t),
		Logger: zerolog.Nop(),
		Flags:  fixedFlags{progressiveOff: true},
	})

	result, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := lookup.callCount(); got != 1 {
		t.Errorf("expected 1 remote call, got %d", got)
	}
	if result.SearchRadiusMeters != 1000 {
		t.Errorf("SearchRadiusMeters = %d, want 1000", result.SearchRadiusMeters)
	}
	if len(result.POIs) != 1 {
		t.Errorf("expected 1 poi, got %d", len(result.POIs))
	}
}

func TestEnginePersistedCacheDisabled(t *testing.T) {
	store := NewMemoryStore()
	seeded := makePOIs(5, CategoryRestaurant, 0.001)
	rows := make([]CachedPOI, 0, len(seeded))
	for _, p := range seeded {
		rows = append(rows, CachedPOI{
			POI:                p,
			CachedAt:           time.Now(),
			SearchCenter:       testCenter,
			SearchRadiusMeters: 1000,
		})
	}
	if err := store.CachePOIs(context.Background(), rows); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	lookup := &fakeLookup{byRadius: map[int][]POI{
		1000: makePOIs(3, CategoryRestaurant, 0.001),
	}}
	engine := NewEngine(EngineConfig{
		Lookup: lookup,
		Store:  store,
		Ledger: newTestLedger(t),
		Logger: zerolog.Nop(),
		Flags:  fixedFlags{persistedOff: true},
	})

	if _, err := engine.SearchNearby(context.Background(), testCenter, 0, allCategoriesFilter()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := lookup.callCount(); got == 0 {
		t.Error("expected remote call despite warm persisted cache")
	}
}

// recordingMetrics counts what the engine reports per operation.
type recordingMetrics struct {
	mu       sync.Mutex
	requests int
	failed   int
	hits     map[string]int
	misses   map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{hits: map[string]int{}, misses: map[string]int{}}
}

func (m *recordingMetrics) RecordRequest(_, _ string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	if err != nil {
		m.failed++
	}
}

func (m *recordingMetrics) RecordCacheHit(_, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[operation]++
}

func (m *recordingMetrics) RecordCacheMiss(_, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses[operation]++
}

func (m *recordingMetrics) snapshot() (int, int, map[string]int, map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := map[string]int{}
	for k, v := range m.hits {
		hits[k] = v
	}
	misses := map[string]int{}
	for k, v := range m.misses {
		misses[k] = v
	}
	return m.requests, m.failed, hits, misses
}

func TestEngineRecordsProviderMetrics(t *testing.T) {
	lookup := &fakeLookup{byRadius: map[int][]POI{
		1000: makePOIs(3, CategoryRestaurant, 0.001),
	}}
	metrics := newRecordingMetrics()
	engine := NewEngine(EngineConfig{
		Lookup:  lookup,
		Store:   NewMemoryStore(),
		Ledger:  newTestLedger(t),
		Logger:  zerolog.Nop(),
		Metrics: metrics,
	})

	ctx := context.Background()

	// Cold search goes remote: one miss, one recorded request.
	if _, err := engine.SearchNearby(ctx, testCenter, 0, allCategoriesFilter()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Identical search inside the cache window: one hit, no new request.
	if _, err := engine.SearchNearby(ctx, testCenter, 0, allCategoriesFilter()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A cached place hits; an unknown ID misses and goes remote with an
	// error outcome.
	if _, err := engine.GetPlace(ctx, "restaurant-0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.GetPlace(ctx, "missing"); !errors.Is(err, ErrPlaceNotFound) {
		t.Fatalf("expected ErrPlaceNotFound, got %v", err)
	}

	requests, failed, hits, misses := metrics.snapshot()
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
	if failed != 1 {
		t.Errorf("failed requests = %d, want 1", failed)
	}
	if hits["search-nearby"] != 1 || misses["search-nearby"] != 1 {
		t.Errorf("search-nearby hit/miss = %d/%d, want 1/1",
			hits["search-nearby"], misses["search-nearby"])
	}
	if hits["get-place"] != 1 || misses["get-place"] != 1 {
		t.Errorf("get-place hit/miss = %d/%d, want 1/1",
			hits["get-place"], misses["get-place"])
	}
}
