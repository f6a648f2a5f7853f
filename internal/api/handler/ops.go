package handler

import (
	"net/http"
	"time"

	"github.com/goldwatch/goldwatch/internal/api/models"
	"github.com/goldwatch/goldwatch/internal/api/response"
	"github.com/goldwatch/goldwatch/internal/push"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	service   *push.Service
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string, service *push.Service) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		service:   service,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.service.Status()
	health := models.Health{
		Status: "ok",
		Time:   time.Now().UTC(),
		Details: map[string]interface{}{
			"version":           h.version,
			"buildTime":         h.buildTime,
			"pushEnabled":       status.Enabled,
			"pushSubscriptions": status.Subscriptions,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}
