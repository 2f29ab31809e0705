package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kamrulh4/auraops/internal/core/auth"
	"github.com/kamrulh4/auraops/internal/core/domain"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// issueTimeout bounds a background ACME order.
const issueTimeout = 10 * time.Minute

// =============================================================================
// Domain Handlers
// =============================================================================

func (h *Handler) handleListDomains(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !auth.CanViewProject(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	domains, err := h.store.ListDomainsByProject(r.Context(), project.ID)
	if err != nil {
		h.logger.Error("failed to list domains", "project_id", project.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list domains", "internal_error")
		return
	}

	resp := make([]DomainResponse, 0, len(domains))
	for i := range domains {
		resp = append(resp, domainToResponse(&domains[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreateDomain(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !auth.CanManageDomains(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	var req CreateDomainRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := domain.NewDomain(project.ID, req.Hostname)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}
	d.SSLEnabled = req.SSLEnabled

	if err := h.store.CreateDomain(r.Context(), d); err != nil {
		if errors.Is(err, store.ErrDuplicateHostname) {
			h.writeError(w, http.StatusConflict, "hostname already attached to a project", "duplicate_hostname")
			return
		}
		h.logger.Error("failed to create domain", "hostname", req.Hostname, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to attach domain", "internal_error")
		return
	}

	// Serve plain HTTP for the hostname right away; TLS follows issuance.
	if err := h.deployer.PublishRoutes(r.Context()); err != nil {
		h.logger.Error("failed to publish routes", "error", err)
	}

	if req.SSLEnabled && d.CanIssue() == nil {
		h.issueInBackground(d)
	}

	h.logger.Info("domain attached", "project_id", project.ID, "hostname", d.Hostname)
	h.writeJSON(w, http.StatusCreated, domainToResponse(d))
}

func (h *Handler) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !auth.CanManageDomains(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	d := h.loadProjectDomain(w, r, project)
	if d == nil {
		return
	}

	if err := h.store.DeleteDomain(r.Context(), d.ID); err != nil {
		h.logger.Error("failed to delete domain", "domain_id", d.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete domain", "internal_error")
		return
	}
	h.certs.RemoveCertificate(d.Hostname)

	if err := h.deployer.PublishRoutes(r.Context()); err != nil {
		h.logger.Error("failed to publish routes", "error", err)
	}

	h.logger.Info("domain detached", "project_id", project.ID, "hostname", d.Hostname)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Certificate Handlers
// =============================================================================

func (h *Handler) handleRequestCertificate(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !auth.CanManageDomains(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	d := h.loadProjectDomain(w, r, project)
	if d == nil {
		return
	}

	if err := d.CanIssue(); err != nil {
		if errors.Is(err, domain.ErrWildcardHostname) {
			h.writeError(w, http.StatusBadRequest, "wildcard hostnames cannot receive certificates", "wildcard_hostname")
			return
		}
		h.writeError(w, http.StatusConflict, err.Error(), "retry_pending")
		return
	}

	// The ACME order takes as long as the CA takes; run it off the request
	// and let the client poll the domain's cert_state for the outcome.
	h.issueInBackground(d)
	h.writeJSON(w, http.StatusAccepted, domainToResponse(d))
}

// issueInBackground runs the ACME order on its own goroutine and flips the
// hostname to HTTPS once the certificate files are on disk. The goroutine
// works on a copy so the request can keep serializing the original.
func (h *Handler) issueInBackground(d *domain.Domain) {
	order := *d
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), issueTimeout)
		defer cancel()

		if err := h.certs.Issue(ctx, &order); err != nil {
			h.logger.Error("certificate issuance failed", "hostname", order.Hostname, "error", err)
			return
		}
		if err := h.deployer.PublishRoutes(ctx); err != nil {
			h.logger.Error("failed to publish routes", "error", err)
		}
	}()
}

// loadProjectDomain fetches the domain in the URL and checks it belongs to
// the project, writing the error response itself on failure.
func (h *Handler) loadProjectDomain(w http.ResponseWriter, r *http.Request, project *domain.Project) *domain.Domain {
	id := chi.URLParam(r, "domainID")

	d, err := h.store.GetDomain(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "domain not found", "domain_not_found")
			return nil
		}
		h.writeError(w, http.StatusInternalServerError, "failed to get domain", "internal_error")
		return nil
	}
	if d.ProjectID != project.ID {
		h.writeError(w, http.StatusNotFound, "domain not found", "domain_not_found")
		return nil
	}
	return d
}
