package poi

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/quota"
)

// EngineConfig holds configuration for the search engine.
type EngineConfig struct {
	// Lookup is the remote places service (required).
	Lookup Lookup

	// Store is the persisted cache tier (required).
	Store Store

	// Ledger gates searches against the daily budget and records completed
	// resolutions (required).
	Ledger *quota.Ledger

	// Logger for engine operations.
	Logger zerolog.Logger

	// CacheTTL bounds the age of both cache tiers (default: 10 minutes).
	CacheTTL time.Duration

	// CacheCenterThresholdMeters is how far a query center may move from
	// the cached center before the in-memory entry is incompatible
	// (default: 200).
	CacheCenterThresholdMeters float64

	// InitialRadiusMeters is where progressive expansion starts when the
	// caller does not request a radius (default: 1000).
	InitialRadiusMeters int

	// MaxRadiusMeters caps progressive expansion (default: 10000).
	MaxRadiusMeters int

	// RadiusStepMeters is the expansion increment (default: 1000).
	RadiusStepMeters int

	// MinResults is the result count at which expansion stops (default: 3).
	MinResults int

	// PersistedMatchFraction is the minimum fraction of persisted rows
	// that must match the requested categories before the persisted tier
	// is trusted (default: 0.5).
	PersistedMatchFraction float64

	// Flags toggles degradation behavior at runtime (optional).
	Flags DegradationFlags

	// Metrics records remote calls and cache tier outcomes (optional).
	Metrics Metrics

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Metrics receives remote lookup timings and cache hit/miss counts.
// Satisfied by the API middleware's provider metrics.
type Metrics interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// DegradationFlags switches off engine tiers at runtime. Both switches
// degrade result quality in exchange for fewer moving parts; they exist
// for incident response.
type DegradationFlags interface {
	// IsProgressiveSearchDisabled pins searches to the requested radius.
	IsProgressiveSearchDisabled(ctx context.Context) bool

	// IsPersistedCacheDisabled skips the persisted tier entirely.
	IsPersistedCacheDisabled(ctx context.Context) bool
}

// Engine resolves nearby searches through an in-memory cache, then the
// persisted cache, then the remote lookup with progressive radius
// expansion. Concurrent equivalent searches collapse into one resolution.
type Engine struct {
	lookup Lookup
	store  Store
	ledger *quota.Ledger
	logger zerolog.Logger

	cacheTTL        time.Duration
	centerThreshold float64
	initialRadius   int
	maxRadius       int
	radiusStep      int
	minResults      int
	matchFraction   float64
	flags           DegradationFlags
	metrics         Metrics
	now             func() time.Time

	mu    sync.Mutex
	cache *cacheEntry

	group singleflight.Group
}

// cacheEntry is the in-memory cache tier: the result set of the most
// recent remote or persisted resolution, valid for compatible queries
// until the TTL elapses.
type cacheEntry struct {
	pois         []POI
	center       geo.Point
	radiusMeters int
	categories   []Category
	capturedAt   time.Time
}

// NewEngine creates a search engine.
func NewEngine(cfg EngineConfig) *Engine {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Minute
	}
	centerThreshold := cfg.CacheCenterThresholdMeters
	if centerThreshold == 0 {
		centerThreshold = 200
	}
	initialRadius := cfg.InitialRadiusMeters
	if initialRadius == 0 {
		initialRadius = 1000
	}
	maxRadius := cfg.MaxRadiusMeters
	if maxRadius == 0 {
		maxRadius = 10000
	}
	radiusStep := cfg.RadiusStepMeters
	if radiusStep == 0 {
		radiusStep = 1000
	}
	minResults := cfg.MinResults
	if minResults == 0 {
		minResults = 3
	}
	matchFraction := cfg.PersistedMatchFraction
	if matchFraction == 0 {
		matchFraction = 0.5
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		lookup:          cfg.Lookup,
		store:           cfg.Store,
		ledger:          cfg.Ledger,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		centerThreshold: centerThreshold,
		initialRadius:   initialRadius,
		maxRadius:       maxRadius,
		radiusStep:      radiusStep,
		minResults:      minResults,
		matchFraction:   matchFraction,
		flags:           cfg.Flags,
		metrics:         cfg.Metrics,
		now:             now,
	}
}

// SearchNearby returns points of interest around center matching filter,
// ranked by distance ascending. radiusMeters is the requested radius; zero
// means the engine's initial radius. The result reports the radius
// actually used after progressive expansion.
//
// An empty category set returns an empty result without touching any cache
// tier or the network. A spent search budget returns
// ErrSearchQuotaExceeded before any tier is consulted. Remote failures
// abort the search; the engine never silently degrades to stale cache.
func (e *Engine) SearchNearby(ctx context.Context, center geo.Point, radiusMeters int, filter SearchFilter) (*SearchResult, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}

	if len(filter.Categories) == 0 {
		return &SearchResult{
			POIs:          []POI{},
			Center:        center,
			SuggestedZoom: SuggestedZoom(e.initialRadius),
		}, nil
	}

	if e.ledger.IsSearchExceeded() {
		return nil, ErrSearchQuotaExceeded
	}

	if radiusMeters <= 0 {
		radiusMeters = e.initialRadius
	}

	key := searchKey(center, radiusMeters, filter)
	result, err, _ := e.group.Do(key, func() (interface{}, error) {
		return e.resolve(ctx, center, radiusMeters, filter)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SearchResult), nil
}

// GetPlace returns a single place by ID, preferring the in-memory cache.
func (e *Engine) GetPlace(ctx context.Context, id string) (*POI, error) {
	e.mu.Lock()
	if e.cache != nil && e.now().Sub(e.cache.capturedAt) < e.cacheTTL {
		for i := range e.cache.pois {
			if e.cache.pois[i].ID == id {
				p := e.cache.pois[i]
				e.mu.Unlock()
				e.recordCacheHit("get-place")
				return &p, nil
			}
		}
	}
	e.mu.Unlock()

	e.recordCacheMiss("get-place")
	start := time.Now()
	p, err := e.lookup.GetPlace(ctx, id)
	if e.metrics != nil {
		e.metrics.RecordRequest(e.lookup.Name(), "get-place", time.Since(start), err)
	}
	return p, err
}

// InvalidateCache drops the in-memory cache tier.
func (e *Engine) InvalidateCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = nil
}

// CacheStats describes the state of the in-memory cache tier.
type CacheStats struct {
	Present    bool
	Entries    int
	AgeSeconds float64
	Lookup     string
}

// Stats returns cache statistics for the ops surface.
func (e *Engine) Stats() CacheStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := CacheStats{Lookup: e.lookup.Name()}
	if e.cache != nil {
		stats.Present = true
		stats.Entries = len(e.cache.pois)
		stats.AgeSeconds = e.now().Sub(e.cache.capturedAt).Seconds()
	}
	return stats
}

// resolve walks the cache tiers and falls through to the remote lookup.
// Exactly one resolution runs per search key; singleflight collapses
// concurrent duplicates onto this call.
func (e *Engine) resolve(ctx context.Context, center geo.Point, radiusMeters int, filter SearchFilter) (*SearchResult, error) {
	if cached := e.checkMemoryCache(center, radiusMeters, filter); cached != nil {
		e.logger.Debug().
			Int("count", len(cached.pois)).
			Msg("serving search from memory cache")
		e.recordCacheHit("search-nearby")
		result := e.buildResult(cached.pois, center, cached.radiusMeters, filter)
		e.ledger.IncrementSearchCount()
		return result, nil
	}

	if !e.persistedCacheDisabled(ctx) {
		if pois, ok := e.checkPersistedCache(ctx, center, radiusMeters, filter); ok {
			e.logger.Debug().
				Int("count", len(pois)).
				Msg("serving search from persisted cache")
			e.recordCacheHit("search-nearby")
			e.replaceMemoryCache(pois, center, radiusMeters, filter.Categories)
			result := e.buildResult(pois, center, radiusMeters, filter)
			e.ledger.IncrementSearchCount()
			return result, nil
		}
	}

	e.recordCacheMiss("search-nearby")
	return e.searchRemote(ctx, center, radiusMeters, filter)
}

func (e *Engine) recordCacheHit(operation string) {
	if e.metrics != nil {
		e.metrics.RecordCacheHit(e.lookup.Name(), operation)
	}
}

func (e *Engine) recordCacheMiss(operation string) {
	if e.metrics != nil {
		e.metrics.RecordCacheMiss(e.lookup.Name(), operation)
	}
}

func (e *Engine) persistedCacheDisabled(ctx context.Context) bool {
	return e.flags != nil && e.flags.IsPersistedCacheDisabled(ctx)
}

// checkMemoryCache returns the in-memory entry when it is compatible with
// the query: unexpired, center within the movement threshold, requested
// radius within the cached radius, and requested categories a subset of
// the cached categories.
func (e *Engine) checkMemoryCache(center geo.Point, radiusMeters int, filter SearchFilter) *cacheEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.cache
	if entry == nil {
		return nil
	}

	if e.now().Sub(entry.capturedAt) >= e.cacheTTL {
		e.cache = nil
		return nil
	}

	if geo.ApproxDistance(center, entry.center) > e.centerThreshold {
		return nil
	}
	if radiusMeters > entry.radiusMeters {
		return nil
	}
	for _, c := range filter.Categories {
		if !containsCategory(entry.categories, c) {
			return nil
		}
	}

	return entry
}

// checkPersistedCache reads the persisted tier. It is trusted only when at
// least the configured fraction of fetched rows match the requested
// categories; a set dominated by now-irrelevant categories falls through
// to remote. Storage read errors are logged and treated as a miss.
func (e *Engine) checkPersistedCache(ctx context.Context, center geo.Point, radiusMeters int, filter SearchFilter) ([]POI, bool) {
	rows, err := e.store.CachedPOIs(ctx, center, radiusMeters, e.cacheTTL)
	if err != nil {
		e.logger.Warn().Err(err).Msg("persisted cache read failed, falling through to remote")
		return nil, false
	}
	if len(rows) == 0 {
		return nil, false
	}

	var kept []POI
	for _, row := range rows {
		if filter.HasCategory(row.Category) {
			kept = append(kept, row.POI)
		}
	}

	if float64(len(kept)) < float64(len(rows))*e.matchFraction {
		e.logger.Debug().
			Int("fetched", len(rows)).
			Int("matched", len(kept)).
			Msg("persisted cache stale for requested categories")
		return nil, false
	}

	return kept, true
}

// searchRemote runs the progressive radius-expansion loop against the
// remote lookup and writes the result through both cache tiers.
func (e *Engine) searchRemote(ctx context.Context, center geo.Point, startRadius int, filter SearchFilter) (*SearchResult, error) {
	radius := startRadius
	expand := e.flags == nil || !e.flags.IsProgressiveSearchDisabled(ctx)
	var pois []POI

	for {
		start := time.Now()
		found, err := e.lookup.SearchNearby(ctx, center, radius, filter.Categories)
		if e.metrics != nil {
			e.metrics.RecordRequest(e.lookup.Name(), "search-nearby", time.Since(start), err)
		}
		if err != nil {
			e.logger.Error().Err(err).
				Int("radius_m", radius).
				Msg("remote places lookup failed")
			return nil, err
		}

		pois = found
		if !expand || len(pois) >= e.minResults || radius >= e.maxRadius {
			break
		}

		radius += e.radiusStep
		if radius > e.maxRadius {
			radius = e.maxRadius
		}

		e.logger.Debug().
			Int("count", len(pois)).
			Int("next_radius_m", radius).
			Msg("expanding search radius")
	}

	e.replaceMemoryCache(pois, center, radius, filter.Categories)
	e.persist(ctx, pois, center, radius)

	result := e.buildResult(pois, center, radius, filter)
	e.ledger.IncrementSearchCount()

	e.logger.Info().
		Int("count", len(result.POIs)).
		Int("radius_m", radius).
		Str("lookup", e.lookup.Name()).
		Msg("search resolved remotely")

	return result, nil
}

// replaceMemoryCache installs a fresh in-memory entry.
func (e *Engine) replaceMemoryCache(pois []POI, center geo.Point, radiusMeters int, categories []Category) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache = &cacheEntry{
		pois:         append([]POI(nil), pois...),
		center:       center,
		radiusMeters: radiusMeters,
		categories:   append([]Category(nil), categories...),
		capturedAt:   e.now(),
	}
}

// persist writes rows through to the durable cache. Write-through is
// best-effort: a storage failure is logged, never surfaced to the caller.
func (e *Engine) persist(ctx context.Context, pois []POI, center geo.Point, radiusMeters int) {
	if len(pois) == 0 {
		return
	}

	rows := make([]CachedPOI, 0, len(pois))
	capturedAt := e.now()
	for _, p := range pois {
		rows = append(rows, CachedPOI{
			POI:                p,
			CachedAt:           capturedAt,
			SearchCenter:       center,
			SearchRadiusMeters: radiusMeters,
		})
	}

	if err := e.store.CachePOIs(ctx, rows); err != nil {
		e.logger.Warn().Err(err).Int("rows", len(rows)).Msg("persisted cache write failed")
	}
}

// buildResult recomputes distances against the querying center, applies
// the rating and open-now filters, and sorts ascending by distance.
func (e *Engine) buildResult(pois []POI, center geo.Point, radiusMeters int, filter SearchFilter) *SearchResult {
	result := make([]POI, 0, len(pois))
	for _, p := range pois {
		if p.Rating < filter.MinRating {
			continue
		}
		if filter.OpenNowOnly && (p.IsOpen == nil || !*p.IsOpen) {
			continue
		}
		p.DistanceMeters = geo.Distance(center, p.Location)
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DistanceMeters < result[j].DistanceMeters
	})

	return &SearchResult{
		POIs:               result,
		Center:             center,
		SearchRadiusMeters: radiusMeters,
		SuggestedZoom:      SuggestedZoom(radiusMeters),
	}
}

// searchKey builds the single-flight key for an equivalent-search class.
// Centers are quantized to ~11m so jittering duplicates still collapse.
func searchKey(center geo.Point, radiusMeters int, filter SearchFilter) string {
	cats := make([]string, len(filter.Categories))
	for i, c := range filter.Categories {
		cats[i] = string(c)
	}
	sort.Strings(cats)

	return fmt.Sprintf("%.4f,%.4f:%d:%s:%.1f:%t",
		center.Lat, center.Lng, radiusMeters,
		strings.Join(cats, ","), filter.MinRating, filter.OpenNowOnly,
	)
}

func containsCategory(set []Category, c Category) bool {
	for _, s := range set {
		if s == c {
			return true
		}
	}
	return false
}
