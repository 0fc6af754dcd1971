package handler

import (
	"net/http"

	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/api/response"
	"github.com/roadtripper/roadtripper/internal/quota"
)

// QuotaHandler handles quota inspection endpoints.
type QuotaHandler struct {
	ledger *quota.Ledger
}

// NewQuotaHandler creates a new QuotaHandler.
func NewQuotaHandler(ledger *quota.Ledger) *QuotaHandler {
	return &QuotaHandler{ledger: ledger}
}

// GetQuota handles GET /v1/quota - the day's budget consumption.
func (h *QuotaHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	h.ledger.CheckAndResetIfNeeded()
	usage := h.ledger.Snapshot()

	response.JSON(w, r, http.StatusOK, models.QuotaResponse{
		DistanceTraveledMeters: usage.DistanceTraveledMeters,
		DistanceLimitMeters:    usage.DistanceLimitMeters,
		DistancePercentage:     h.ledger.DistancePercentage(),
		SearchCount:            usage.SearchCount,
		SearchLimit:            usage.SearchLimit,
		LastReset:              usage.LastReset,
		DistanceExceeded:       h.ledger.IsDistanceExceeded(),
		SearchExceeded:         h.ledger.IsSearchExceeded(),
	})
}
