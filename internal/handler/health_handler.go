package handler

import (
	"database/sql"
	"net/http"

	"sessionpulse/telemetry-service/internal/repository"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db          *sql.DB
	sessionRepo *repository.SessionRepository
}

func NewHealthHandler(db *sql.DB, sessionRepo *repository.SessionRepository) *HealthHandler {
	return &HealthHandler{
		db:          db,
		sessionRepo: sessionRepo,
	}
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET and HEAD /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	count, err := h.sessionRepo.CountAll(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ready",
		"sessions": count,
	})
}
