// Package handler provides HTTP handlers for the RoadTripper API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/roadtripper/roadtripper/internal/api/models"
	"github.com/roadtripper/roadtripper/internal/api/response"
	"github.com/roadtripper/roadtripper/internal/poi"
	"github.com/roadtripper/roadtripper/internal/provider/resilience"
	"github.com/roadtripper/roadtripper/internal/tracking"
)

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DegradationFlags reports which degradation switches are active.
type DegradationFlags interface {
	IsProgressiveSearchDisabled(ctx context.Context) bool
	IsPersistedCacheDisabled(ctx context.Context) bool
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	db        Pinger
	registry  *resilience.Registry
	engine    *poi.Engine
	tracker   *tracking.Tracker
	flags     DegradationFlags
}

// NewOpsHandler creates a new OpsHandler. Any dependency may be nil; the
// corresponding subsystem is omitted from status reports.
func NewOpsHandler(version, buildTime string, db Pinger, registry *resilience.Registry, engine *poi.Engine, tracker *tracking.Tracker, flags DegradationFlags) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		db:        db,
		registry:  registry,
		engine:    engine,
		tracker:   tracker,
		flags:     flags,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			health.Status = models.HealthStatusFail
			health.Details = map[string]interface{}{
				"database": err.Error(),
			}
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())
	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   now,
	}

	status.Subsystems = append(status.Subsystems, h.databaseStatus(r.Context()))
	if h.engine != nil {
		status.Subsystems = append(status.Subsystems, h.cacheStatus())
	}
	if h.tracker != nil {
		status.Subsystems = append(status.Subsystems, h.trackingStatus())
	}

	if h.registry != nil {
		for _, ph := range h.registry.GetAllHealth() {
			status.Providers = append(status.Providers, providerStatus(ph))
		}
	}

	if h.flags != nil {
		if h.flags.IsProgressiveSearchDisabled(r.Context()) {
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, "disable_progressive_search")
		}
		if h.flags.IsPersistedCacheDisabled(r.Context()) {
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, "disable_persisted_cache")
		}
	}

	status.Status = rollup(status)
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) databaseStatus(ctx context.Context) models.SubsystemStatus {
	s := models.SubsystemStatus{Name: "database", Status: models.HealthStatusOK}
	if h.db == nil {
		detail := "not configured"
		s.Status = models.HealthStatusDegraded
		s.Detail = &detail
		return s
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.db.Ping(pingCtx); err != nil {
		detail := err.Error()
		s.Status = models.HealthStatusFail
		s.Detail = &detail
	}
	return s
}

func (h *OpsHandler) cacheStatus() models.SubsystemStatus {
	stats := h.engine.Stats()
	s := models.SubsystemStatus{Name: "poi-cache", Status: models.HealthStatusOK}
	detail := "empty"
	if stats.Present {
		detail = "warm"
	}
	s.Detail = &detail
	return s
}

func (h *OpsHandler) trackingStatus() models.SubsystemStatus {
	stats := h.tracker.Stats()
	s := models.SubsystemStatus{Name: "tracking", Status: models.HealthStatusOK}
	detail := "idle"
	if stats.Running {
		detail = "running"
	}
	if stats.LastError != nil {
		s.Status = models.HealthStatusDegraded
		detail = string(stats.LastError.Code) + ": " + stats.LastError.Message
	}
	s.Detail = &detail
	return s
}

func providerStatus(ph resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider: ph.Name,
		Status:   models.HealthStatusOK,
	}
	switch {
	case ph.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case ph.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}
	if !ph.LastSuccessAt.IsZero() {
		t := models.Timestamp(ph.LastSuccessAt)
		ps.LastSuccessAt = &t
	}
	if !ph.LastFailureAt.IsZero() {
		t := models.Timestamp(ph.LastFailureAt)
		ps.LastFailureAt = &t
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}

// rollup derives the overall status: FAIL if any subsystem failed,
// DEGRADED if anything is degraded or a provider circuit is open.
func rollup(status models.SystemStatus) models.HealthStatus {
	overall := models.HealthStatusOK
	for _, s := range status.Subsystems {
		switch s.Status {
		case models.HealthStatusFail:
			return models.HealthStatusFail
		case models.HealthStatusDegraded:
			overall = models.HealthStatusDegraded
		}
	}
	for _, p := range status.Providers {
		if p.Status != models.HealthStatusOK {
			overall = models.HealthStatusDegraded
		}
	}
	if len(status.ActiveDegradationFlags) > 0 {
		overall = models.HealthStatusDegraded
	}
	return overall
}
