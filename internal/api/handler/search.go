package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/api/response"
	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/poi"
	"github.com/roadtripper/roadtripper/internal/prefs"
	"github.com/roadtripper/roadtripper/internal/provider/resilience"
)

// SearchHandler handles nearby search and place lookup endpoints.
type SearchHandler struct {
	engine *poi.Engine
	prefs  *prefs.Service
	gate   prefs.PremiumGate
	logger zerolog.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(engine *poi.Engine, prefsSvc *prefs.Service, gate prefs.PremiumGate, logger zerolog.Logger) *SearchHandler {
	return &SearchHandler{
		engine: engine,
		prefs:  prefsSvc,
		gate:   gate,
		logger: logger,
	}
}

// SearchNearby handles POST /v1/search/nearby.
func (h *SearchHandler) SearchNearby(w http.ResponseWriter, r *http.Request) {
	var input models.SearchNearbyRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fieldErrs := h.validateSearchRequest(r, input); len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid search request", fieldErrs)
		return
	}

	filter := h.buildFilter(input)
	center := geo.Point{Lat: input.Center.Lat, Lng: input.Center.Lng}

	result, err := h.engine.SearchNearby(r.Context(), center, input.RadiusMeters, filter)
	if err != nil {
		h.writeSearchError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toSearchResponse(result))
}

// GetPlace handles GET /v1/places/{placeId}.
func (h *SearchHandler) GetPlace(w http.ResponseWriter, r *http.Request) {
	placeID := chi.URLParam(r, "placeId")
	if placeID == "" {
		response.BadRequest(w, r, "placeId is required", nil)
		return
	}

	place, err := h.engine.GetPlace(r.Context(), placeID)
	if err != nil {
		if errors.Is(err, poi.ErrPlaceNotFound) {
			response.NotFound(w, r, "place not found")
			return
		}
		h.writeSearchError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toPlace(*place))
}

// buildFilter merges the request with the saved preferences: omitted
// fields fall back to the stored filter.
func (h *SearchHandler) buildFilter(input models.SearchNearbyRequest) poi.SearchFilter {
	saved := h.prefs.Get().Filter

	filter := poi.SearchFilter{
		Categories:  saved.Categories,
		MinRating:   saved.MinRating,
		OpenNowOnly: input.OpenNow,
	}
	if len(input.Categories) > 0 {
		filter.Categories = make([]poi.Category, 0, len(input.Categories))
		for _, c := range input.Categories {
			filter.Categories = append(filter.Categories, poi.Category(c))
		}
	}
	if input.MinRating != nil {
		filter.MinRating = *input.MinRating
	}
	return filter
}

func (h *SearchHandler) validateSearchRequest(r *http.Request, input models.SearchNearbyRequest) []models.FieldError {
	var fieldErrs []models.FieldError

	if input.Center.Lat < -90 || input.Center.Lat > 90 {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "center.lat", Message: "must be between -90 and 90"})
	}
	if input.Center.Lng < -180 || input.Center.Lng > 180 {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "center.lng", Message: "must be between -180 and 180"})
	}
	if input.RadiusMeters < 0 || input.RadiusMeters > 10000 {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "radiusMeters", Message: "must be between 0 and 10000"})
	}
	if input.MinRating != nil && (*input.MinRating < 0 || *input.MinRating > 5) {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "minRating", Message: "must be between 0 and 5"})
	}

	premiumAllowed := h.gate != nil && h.gate.IsPremiumCategoriesEnabled(r.Context())
	for _, raw := range input.Categories {
		c := poi.Category(raw)
		if !knownCategory(c) {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "categories", Message: "unknown category: " + raw})
			continue
		}
		if c.IsPremium() && !premiumAllowed {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "categories", Message: "premium category not enabled: " + raw})
		}
	}

	return fieldErrs
}

func (h *SearchHandler) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, poi.ErrSearchQuotaExceeded):
		response.QuotaExceeded(w, r, "daily search quota exceeded")
	case errors.Is(err, poi.ErrLookupUnavailable), errors.Is(err, resilience.ErrCircuitOpen):
		response.ServiceUnavailable(w, r, "places lookup temporarily unavailable")
	default:
		h.logger.Error().Err(err).Msg("search failed")
		response.InternalError(w, r, "search failed")
	}
}

func knownCategory(c poi.Category) bool {
	for _, known := range poi.AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

func toSearchResponse(result *poi.SearchResult) models.SearchNearbyResponse {
	places := make([]models.Place, 0, len(result.POIs))
	for _, p := range result.POIs {
		places = append(places, toPlace(p))
	}
	return models.SearchNearbyResponse{
		Places:             places,
		Center:             models.Point{Lat: result.Center.Lat, Lng: result.Center.Lng},
		SearchRadiusMeters: result.SearchRadiusMeters,
		SuggestedZoom:      result.SuggestedZoom,
	}
}

func toPlace(p poi.POI) models.Place {
	return models.Place{
		ID:             p.ID,
		Name:           p.Name,
		Category:       string(p.Category),
		Location:       models.Point{Lat: p.Location.Lat, Lng: p.Location.Lng},
		DistanceMeters: p.DistanceMeters,
		Rating:         p.Rating,
		RatingCount:    p.RatingCount,
		PriceLevel:     p.PriceLevel,
		IsOpen:         p.IsOpen,
		Address:        p.Address,
		PhotoURL:       p.PhotoURL,
	}
}
