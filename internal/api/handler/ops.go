// Package handler provides HTTP handlers for the Consentry API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/consentry/consentry/internal/api/models"
	"github.com/consentry/consentry/internal/api/response"
	"github.com/consentry/consentry/internal/gvl"
	"github.com/consentry/consentry/internal/gvl/consensu"
	"github.com/consentry/consentry/internal/provider/resilience"
)

// Pinger reports database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SnapshotProvider serves the current vendor list.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) *gvl.Snapshot
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	db        Pinger
	lists     SnapshotProvider
	providers *resilience.Registry
}

// OpsConfig holds the dependencies checked by the ops endpoints. DB,
// Lists and Providers are optional; a nil dependency is skipped.
type OpsConfig struct {
	Version   string
	BuildTime string
	DB        Pinger
	Lists     SnapshotProvider
	Providers *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		db:        cfg.DB,
		lists:     cfg.Lists,
		providers: cfg.Providers,
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

// ReadinessCheck handles GET /v1/ops/ready - readiness check. The
// service is ready when the durable store answers; a missing vendor
// list degrades but does not fail, the engine serves the pending state
// without it.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	details := map[string]interface{}{}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			health := models.Health{
				Status:  models.HealthStatusFail,
				Time:    models.Timestamp(time.Now()),
				Details: map[string]interface{}{"database": err.Error()},
			}
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
		details["database"] = "ok"
	}

	if h.lists != nil {
		snapshot := h.lists.Snapshot(r.Context())
		if snapshot.Empty() {
			status = models.HealthStatusDegraded
			details["vendorList"] = "unavailable"
		} else {
			details["vendorListVersion"] = snapshot.VendorListVersion
		}
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status - subsystem detail.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())

	dbStatus := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			detail := err.Error()
			dbStatus.Status = models.HealthStatusFail
			dbStatus.Detail = &detail
		}
	}

	gvlStatus := models.ProviderStatus{Provider: "global-vendor-list", Status: models.HealthStatusOK}
	if h.lists != nil {
		if snapshot := h.lists.Snapshot(r.Context()); snapshot.Empty() {
			gvlStatus.Status = models.HealthStatusDegraded
			message := "vendor list unavailable, serving pending state"
			gvlStatus.Message = &message
		} else {
			gvlStatus.LastSuccessAt = &now
		}
	}

	// Circuit breaker detail for the upstream fetcher, when registered.
	// An open circuit degrades the provider; cached snapshots keep serving.
	if h.providers != nil {
		if health := h.providers.GetHealth(consensu.ProviderName); health != nil {
			if health.LastSuccessAt != nil {
				ts := models.Timestamp(*health.LastSuccessAt)
				gvlStatus.LastSuccessAt = &ts
			}
			if health.LastFailureAt != nil {
				ts := models.Timestamp(*health.LastFailureAt)
				gvlStatus.LastFailureAt = &ts
			}
			if !health.IsHealthy() && gvlStatus.Status == models.HealthStatusOK {
				gvlStatus.Status = models.HealthStatusDegraded
			}
			if health.LastError != "" && gvlStatus.Message == nil {
				message := health.LastError
				gvlStatus.Message = &message
			}
		}
	}

	overall := models.HealthStatusOK
	if dbStatus.Status == models.HealthStatusFail {
		overall = models.HealthStatusFail
	} else if gvlStatus.Status == models.HealthStatusDegraded {
		overall = models.HealthStatusDegraded
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:     overall,
		Time:       now,
		Subsystems: []models.SubsystemStatus{dbStatus},
		Providers:  []models.ProviderStatus{gvlStatus},
	})
}
