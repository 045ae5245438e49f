package handler

import (
	"net/http"
	"time"

	"github.com/greeneye/companion/internal/localapi/response"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string) *OpsHandler {
	return &OpsHandler{version: version, buildTime: buildTime}
}

// HealthResponse is the body for the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Time      string `json:"time"`
	Version   string `json:"version,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
}

// HealthCheck handles GET /healthz.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, HealthResponse{
		Status:    "ok",
		Time:      time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		BuildTime: h.buildTime,
	})
}
