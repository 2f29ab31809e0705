package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kamrulh4/auraops/internal/core/auth"
	"github.com/kamrulh4/auraops/internal/core/domain"
)

// =============================================================================
// Webhook Handlers
// =============================================================================

// handleWebhookDeploy triggers a deployment from a CI system. The token in
// the path is the sole credential and is scoped to exactly one project.
func (h *Handler) handleWebhookDeploy(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	project, err := h.store.GetProjectByWebhookToken(r.Context(), token)
	if err != nil {
		// Unknown and malformed tokens get the same answer.
		h.writeError(w, http.StatusNotFound, "not found", "not_found")
		return
	}

	authCtx := auth.WebhookContext(project.ID)
	if !auth.CanDeployProject(authCtx, *project) {
		h.writeForbidden(w)
		return
	}

	deployment, err := h.deployer.RequestDeploy(r.Context(), project, domain.TriggerWebhook)
	if err != nil {
		h.logger.Error("webhook deploy failed", "project_id", project.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to deploy project", "internal_error")
		return
	}

	h.logger.Info("webhook deploy accepted", "project_id", project.ID, "deployment_id", deployment.ID)
	h.writeJSON(w, http.StatusAccepted, deploymentToResponse(deployment))
}
