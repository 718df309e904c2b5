package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	svc Launchpad
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(svc Launchpad) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// HealthCheck reports liveness and the command log position. A stale engine
// waiting for a rebuild answers 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.svc.Stale() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"last_seq":  h.svc.LastSeq(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
