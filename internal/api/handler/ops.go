// Package handler provides HTTP handlers for the pacekeeper API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/breatheroute/pacekeeper/internal/api/models"
	"github.com/breatheroute/pacekeeper/internal/api/response"
)

// DependencyCheck reports whether one dependency can serve traffic.
type DependencyCheck struct {
	Name string
	// Check returns nil when healthy. Errors marked Critical fail readiness;
	// others only degrade it.
	Check    func(ctx context.Context) error
	Critical bool
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	checks    []DependencyCheck
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string, checks ...DependencyCheck) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		checks:    checks,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - dependency readiness.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	ready := models.Readiness{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	for _, c := range h.checks {
		component := models.ComponentStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err := c.Check(ctx); err != nil {
			component.Detail = err.Error()
			component.Status = models.HealthStatusDegraded
			if c.Critical {
				component.Status = models.HealthStatusFail
			}
		}
		ready.Components = append(ready.Components, component)

		switch {
		case component.Status == models.HealthStatusFail:
			ready.Status = models.HealthStatusFail
		case component.Status == models.HealthStatusDegraded && ready.Status == models.HealthStatusOK:
			ready.Status = models.HealthStatusDegraded
		}
	}

	status := http.StatusOK
	if ready.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, ready)
}
