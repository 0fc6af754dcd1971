package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/api/response"
	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/tracking"
)

// PositionHandler handles device position reporting and tracking state.
type PositionHandler struct {
	source  *tracking.PushSource
	tracker *tracking.Tracker
}

// NewPositionHandler creates a new PositionHandler.
func NewPositionHandler(source *tracking.PushSource, tracker *tracking.Tracker) *PositionHandler {
	return &PositionHandler{source: source, tracker: tracker}
}

// ReportPosition handles POST /v1/positions - ingest a device fix.
func (h *PositionHandler) ReportPosition(w http.ResponseWriter, r *http.Request) {
	var input models.PositionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fieldErrs := validatePositionRequest(input); len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid position update", fieldErrs)
		return
	}

	ts := time.Now()
	if input.Timestamp != nil {
		ts = input.Timestamp.Time()
	}

	h.source.Publish(tracking.Position{
		Point:          geo.Point{Lat: input.Point.Lat, Lng: input.Point.Lng},
		AccuracyMeters: input.AccuracyMeters,
		Heading:        input.Heading,
		SpeedMPS:       input.SpeedMPS,
		Timestamp:      ts,
	})

	response.Accepted(w, r, "/v1/position", nil)
}

// CurrentPosition handles GET /v1/position - last accepted fix.
func (h *PositionHandler) CurrentPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.tracker.Current()
	if err != nil {
		if errors.Is(err, tracking.ErrNoPosition) {
			response.NotFound(w, r, "no position observed yet")
			return
		}
		response.InternalError(w, r, "position unavailable")
		return
	}

	response.JSON(w, r, http.StatusOK, models.PositionResponse{
		Point:          models.Point{Lat: pos.Point.Lat, Lng: pos.Point.Lng},
		AccuracyMeters: pos.AccuracyMeters,
		Heading:        pos.Heading,
		SpeedMPS:       pos.SpeedMPS,
		Timestamp:      models.Timestamp(pos.Timestamp),
	})
}

// TrackingStats handles GET /v1/position/stats - session counters.
func (h *PositionHandler) TrackingStats(w http.ResponseWriter, r *http.Request) {
	stats := h.tracker.Stats()
	out := models.TrackingStats{
		Updates:      stats.Updates,
		DriftSkipped: stats.DriftSkipped,
		Errors:       stats.Errors,
		MetersAdded:  stats.MetersAdded,
		Running:      stats.Running,
	}
	if stats.LastError != nil {
		out.LastError = &models.TrackingError{
			Code:    string(stats.LastError.Code),
			Message: stats.LastError.Message,
		}
	}
	response.JSON(w, r, http.StatusOK, out)
}

func validatePositionRequest(input models.PositionUpdateRequest) []models.FieldError {
	var fieldErrs []models.FieldError

	if input.Point.Lat < -90 || input.Point.Lat > 90 {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "point.lat", Message: "must be between -90 and 90"})
	}
	if input.Point.Lng < -180 || input.Point.Lng > 180 {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "point.lng", Message: "must be between -180 and 180"})
	}
	if input.AccuracyMeters < 0 {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "accuracyMeters", Message: "must be non-negative"})
	}
	if input.Heading != nil && (*input.Heading < 0 || *input.Heading >= 360) {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "heading", Message: "must be in [0, 360)"})
	}
	if input.SpeedMPS != nil && *input.SpeedMPS < 0 {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "speedMps", Message: "must be non-negative"})
	}

	return fieldErrs
}
