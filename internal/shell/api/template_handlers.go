package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kamrulh4/auraops/internal/core/auth"
	"github.com/kamrulh4/auraops/internal/core/templates"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// =============================================================================
// Template Handlers
// =============================================================================

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, templates.List())
}

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if !auth.CanProvisionService(authCtx) {
		h.writeForbidden(w)
		return
	}

	var req ProvisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required", "validation_error")
		return
	}

	slug := chi.URLParam(r, "slug")
	project, deployment, err := h.provisioner.Provision(r.Context(), req.Name, authCtx.UserID, slug)
	if err != nil {
		switch {
		case errors.Is(err, templates.ErrUnknownTemplate):
			h.writeError(w, http.StatusNotFound, "unknown template", "template_not_found")
		case errors.Is(err, store.ErrDuplicateSlug):
			h.writeError(w, http.StatusConflict, "a project with this name already exists", "duplicate_slug")
		default:
			h.logger.Error("failed to provision service", "template", slug, "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to provision service", "internal_error")
		}
		return
	}

	h.logger.Info("service provisioned", "project_id", project.ID, "template", slug)
	h.writeJSON(w, http.StatusCreated, ProvisionResponse{
		Project:    projectToResponse(project, true),
		Deployment: deploymentToResponse(deployment),
	})
}
