package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadtripper/roadtripper/internal/api"
	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/featureflags"
	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/poi"
	"github.com/roadtripper/roadtripper/internal/prefs"
	"github.com/roadtripper/roadtripper/internal/provider/resilience"
	"github.com/roadtripper/roadtripper/internal/quota"
	"github.com/roadtripper/roadtripper/internal/tracking"
)

type routerLookup struct{ pois []poi.POI }

func (l *routerLookup) SearchNearby(_ context.Context, _ geo.Point, _ int, _ []poi.Category) ([]poi.POI, error) {
	return l.pois, nil
}

func (l *routerLookup) GetPlace(_ context.Context, id string) (*poi.POI, error) {
	for i := range l.pois {
		if l.pois[i].ID == id {
			return &l.pois[i], nil
		}
	}
	return nil, poi.ErrPlaceNotFound
}

func (l *routerLookup) Name() string { return "test" }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := zerolog.New(io.Discard)

	flagSvc := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     logger,
	})
	ledger := quota.NewLedger(quota.LedgerConfig{Logger: logger})
	lookup := &routerLookup{pois: []poi.POI{
		{ID: "p1", Name: "Cafe One", Category: poi.CategoryCafe, Location: geo.Point{Lat: 52.001, Lng: 4.001}, Rating: 4.5},
		{ID: "p2", Name: "Cafe Two", Category: poi.CategoryCafe, Location: geo.Point{Lat: 52.002, Lng: 4.002}, Rating: 4.4},
		{ID: "p3", Name: "Cafe Three", Category: poi.CategoryCafe, Location: geo.Point{Lat: 52.003, Lng: 4.003}, Rating: 4.3},
	}}
	engine := poi.NewEngine(poi.EngineConfig{
		Lookup: lookup,
		Store:  poi.NewMemoryStore(),
		Ledger: ledger,
		Logger: logger,
	})
	prefsSvc := prefs.NewService(context.Background(), prefs.ServiceConfig{
		Repository: prefs.NewMemoryRepository(),
		Gate:       flagSvc,
		Logger:     logger,
	})

	source := tracking.NewPushSource()
	tracker := tracking.NewTracker(tracking.TrackerConfig{
		Source: source,
		Ledger: ledger,
		Logger: logger,
	})
	require.NoError(t, tracker.Start(context.Background()))
	t.Cleanup(tracker.Stop)

	return api.NewRouter(api.RouterConfig{
		Version:            "test",
		BuildTime:          "2026-01-01T00:00:00Z",
		Logger:             logger,
		Registry:           resilience.NewRegistry(),
		Engine:             engine,
		Ledger:             ledger,
		Tracker:            tracker,
		PositionSource:     source,
		PreferencesService: prefsSvc,
		FeatureFlagService: flagSvc,
	})
}

func TestRouter_HealthCheck(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_ReadinessCheck(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SystemStatus(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.NotEmpty(t, status.Subsystems)
}

func TestRouter_SearchNearby(t *testing.T) {
	router := newTestRouter(t)

	body, err := json.Marshal(models.SearchNearbyRequest{
		Center:     models.Point{Lat: 52.0, Lng: 4.0},
		Categories: []string{"cafe"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/search/nearby", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.SearchNearbyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Places, 3)
}

func TestRouter_SearchNearbyRequiresJSONContentType(t *testing.T) {
	router := newTestRouter(t)

	body := []byte(`{"center":{"lat":52,"lng":4}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/search/nearby", bytes.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_GetPlace(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/places/p2", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var place models.Place
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &place))
	assert.Equal(t, "Cafe Two", place.Name)
}

func TestRouter_ReportAndGetPosition(t *testing.T) {
	router := newTestRouter(t)

	body, err := json.Marshal(models.PositionUpdateRequest{
		Point: models.Point{Lat: 52.1, Lng: 4.1},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/positions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/v1/position", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)
}

func TestRouter_GetQuota(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/quota", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.QuotaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5000.0, resp.DistanceLimitMeters)
	assert.Equal(t, 100, resp.SearchLimit)
}

func TestRouter_PreferencesRoundTrip(t *testing.T) {
	router := newTestRouter(t)

	update, err := json.Marshal(models.Preferences{
		Categories: []string{"attraction"},
		MinRating:  2.5,
		Theme:      "dark",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/v1/preferences", bytes.NewReader(update))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/preferences", http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.Preferences
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"attraction"}, resp.Categories)
	assert.Equal(t, "dark", resp.Theme)
}

func TestRouter_FeatureFlags(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/feature-flags", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var list featureflags.FlagList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.NotEmpty(t, list.Items)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/nope", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
