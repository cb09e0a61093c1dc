package api

import (
	"net/http"
	"time"

	"github.com/snarg/whisperd/internal/modelprep"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	models    *modelprep.Manager
	provider  string
	version   string
	startTime time.Time
}

func NewHealthHandler(models *modelprep.Manager, provider, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		models:    models,
		provider:  provider,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	checks["engine"] = h.provider

	// Model discovery check. An empty models directory is fine for
	// remote engines, so it only degrades rather than fails.
	if h.models == nil {
		checks["models"] = "not_configured"
	} else if len(h.models.List()) == 0 {
		checks["models"] = "empty"
		status = "degraded"
	} else {
		checks["models"] = "ok"
	}

	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
