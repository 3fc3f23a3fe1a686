package handlers

import (
	"log/slog"
	"net/http"
)

// Pinger checks a backing dependency
type Pinger interface {
	HealthCheck() error
}

// HealthResponse is the body of the health endpoint
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version"`
}

// HealthHandler reports whether the service can reach its database
type HealthHandler struct {
	db      Pinger
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version}
}

// Health reports service health
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(); err != nil {
		slog.Error("Health check failed", "error", err)
		respondWithJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "error", Version: h.version})
		return
	}
	respondWithJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "ok", Version: h.version})
}
