package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/api/response"
	"github.com/roadtripper/roadtripper/internal/poi"
	"github.com/roadtripper/roadtripper/internal/prefs"
)

// PreferencesHandler handles saved search preference endpoints.
type PreferencesHandler struct {
	service *prefs.Service
}

// NewPreferencesHandler creates a new PreferencesHandler.
func NewPreferencesHandler(service *prefs.Service) *PreferencesHandler {
	return &PreferencesHandler{service: service}
}

// GetPreferences handles GET /v1/preferences.
func (h *PreferencesHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toPreferencesModel(h.service.Get()))
}

// UpdatePreferences handles PUT /v1/preferences.
func (h *PreferencesHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var input models.Preferences
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	categories := make([]poi.Category, 0, len(input.Categories))
	for _, c := range input.Categories {
		categories = append(categories, poi.Category(c))
	}

	updated, err := h.service.Update(r.Context(), prefs.Preferences{
		Filter: poi.SearchFilter{
			Categories:  categories,
			MinRating:   input.MinRating,
			OpenNowOnly: input.OpenNow,
		},
		Theme: prefs.Theme(input.Theme),
	})
	if err != nil {
		if errors.Is(err, prefs.ErrPremiumCategory) {
			response.BadRequest(w, r, "premium categories are not enabled", nil)
			return
		}
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	response.JSON(w, r, http.StatusOK, toPreferencesModel(updated))
}

func toPreferencesModel(p prefs.Preferences) models.Preferences {
	categories := make([]string, 0, len(p.Filter.Categories))
	for _, c := range p.Filter.Categories {
		categories = append(categories, string(c))
	}

	out := models.Preferences{
		Categories: categories,
		MinRating:  p.Filter.MinRating,
		OpenNow:    p.Filter.OpenNowOnly,
		Theme:      string(p.Theme),
	}
	if !p.UpdatedAt.IsZero() {
		ts := models.Timestamp(p.UpdatedAt)
		out.UpdatedAt = &ts
	}
	return out
}
