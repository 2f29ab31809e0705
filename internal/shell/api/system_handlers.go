package api

import (
	"net/http"

	"github.com/kamrulh4/auraops/internal/core/auth"
	"github.com/kamrulh4/auraops/internal/core/domain"
)

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}

	if err := h.docker.Ping(r.Context()); err != nil {
		checks["docker"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["docker"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Stats Handler
// =============================================================================

var statPhases = []domain.ProjectPhase{
	domain.PhaseCreated,
	domain.PhaseQueued,
	domain.PhaseBuilding,
	domain.PhaseStarting,
	domain.PhaseRunning,
	domain.PhaseStopped,
	domain.PhaseFailed,
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if !auth.CanViewStats(auth.FromContext(r.Context())) {
		h.writeForbidden(w)
		return
	}

	users, err := h.store.CountUsers(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to gather stats", "internal_error")
		return
	}
	deployments, err := h.store.CountDeployments(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to gather stats", "internal_error")
		return
	}

	byPhase := make(map[string]int, len(statPhases))
	total := 0
	for _, phase := range statPhases {
		count, err := h.store.CountProjectsByPhase(r.Context(), phase)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "failed to gather stats", "internal_error")
			return
		}
		if count > 0 {
			byPhase[string(phase)] = count
		}
		total += count
	}

	h.writeJSON(w, http.StatusOK, StatsResponse{
		Users:           users,
		Projects:        total,
		ProjectsByPhase: byPhase,
		Deployments:     deployments,
	})
}
