package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kamrulh4/auraops/internal/core/auth"
	coredeployment "github.com/kamrulh4/auraops/internal/core/deployment"
	"github.com/kamrulh4/auraops/internal/core/domain"
	"github.com/kamrulh4/auraops/internal/shell/docker"
	"github.com/kamrulh4/auraops/internal/shell/orchestrator"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// =============================================================================
// Project Handlers
// =============================================================================

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if !auth.CanCreateProject(authCtx) {
		h.writeForbidden(w)
		return
	}

	var req CreateProjectRequest
	if !h.decode(w, r, &req) {
		return
	}

	project, err := domain.NewProject(req.Name, authCtx.UserID, req.Source, req.Port)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}
	project.Env = req.Env

	if err := h.store.CreateProject(r.Context(), project); err != nil {
		if errors.Is(err, store.ErrDuplicateSlug) {
			h.writeError(w, http.StatusConflict, "a project with this name already exists", "duplicate_slug")
			return
		}
		h.logger.Error("failed to create project", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create project", "internal_error")
		return
	}

	h.logger.Info("project created", "project_id", project.ID, "slug", project.Slug)
	h.writeJSON(w, http.StatusCreated, projectToResponse(project, true))
}

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	opts := listOptionsFromQuery(r)

	var projects []domain.Project
	var err error
	if r.URL.Query().Get("mine") == "true" {
		projects, err = h.store.ListProjectsByOwner(r.Context(), authCtx.UserID, opts)
	} else {
		projects, err = h.store.ListProjects(r.Context(), opts)
	}
	if err != nil {
		h.logger.Error("failed to list projects", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list projects", "internal_error")
		return
	}

	resp := ListProjectsResponse{
		Projects: make([]ProjectResponse, 0, len(projects)),
		Total:    len(projects),
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}
	for i := range projects {
		p := &projects[i]
		resp.Projects = append(resp.Projects, projectToResponse(p, auth.CanManageProject(authCtx, *p)))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}

	authCtx := auth.FromContext(r.Context())
	if !auth.CanViewProject(authCtx, *project) {
		h.writeForbidden(w)
		return
	}
	h.writeJSON(w, http.StatusOK, projectToResponse(project, auth.CanManageProject(authCtx, *project)))
}

func (h *Handler) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !auth.CanManageProject(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	var req UpdateProjectRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Source != nil {
		if err := req.Source.Validate(); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
			return
		}
		project.Source = *req.Source
	}
	if req.Port != nil {
		if *req.Port < 1 || *req.Port > 65535 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPort.Error(), "validation_error")
			return
		}
		project.Port = *req.Port
	}
	if req.Env != nil {
		project.Env = *req.Env
	}

	if err := h.store.UpdateProject(r.Context(), project); err != nil {
		h.logger.Error("failed to update project", "project_id", project.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update project", "internal_error")
		return
	}

	// Changes take effect on the next deploy; the running containers are
	// untouched here.
	h.writeJSON(w, http.StatusOK, projectToResponse(project, true))
}

func (h *Handler) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !auth.CanManageProject(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	if err := h.deployer.Remove(r.Context(), project); err != nil {
		h.logger.Error("failed to remove project resources", "project_id", project.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete project", "internal_error")
		return
	}

	domains, err := h.store.ListDomainsByProject(r.Context(), project.ID)
	if err == nil {
		for _, d := range domains {
			h.certs.RemoveCertificate(d.Hostname)
		}
	}

	if err := h.store.DeleteProject(r.Context(), project.ID); err != nil {
		h.logger.Error("failed to delete project", "project_id", project.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete project", "internal_error")
		return
	}

	h.logger.Info("project deleted", "project_id", project.ID, "slug", project.Slug)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Lifecycle Handlers
// =============================================================================

func (h *Handler) handleDeployProject(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !auth.CanDeployProject(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	deployment, err := h.deployer.RequestDeploy(r.Context(), project, domain.TriggerAPI)
	if err != nil {
		if errors.Is(err, orchestrator.ErrShuttingDown) {
			h.writeError(w, http.StatusServiceUnavailable, "server is shutting down", "shutting_down")
			return
		}
		h.logger.Error("failed to request deploy", "project_id", project.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to deploy project", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusAccepted, deploymentToResponse(deployment))
}

func (h *Handler) handleStopProject(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !auth.CanManageProject(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	if project.Phase != domain.PhaseRunning {
		h.writeError(w, http.StatusConflict, "project is not running", "invalid_phase")
		return
	}

	if err := h.deployer.Stop(r.Context(), project); err != nil {
		h.logger.Error("failed to stop project", "project_id", project.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to stop project", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, projectToResponse(project, true))
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !auth.CanViewProject(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	opts := listOptionsFromQuery(r)
	deployments, err := h.store.ListDeploymentsByProject(r.Context(), project.ID, opts)
	if err != nil {
		h.logger.Error("failed to list deployments", "project_id", project.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list deployments", "internal_error")
		return
	}

	resp := ListDeploymentsResponse{
		Deployments: make([]DeploymentResponse, 0, len(deployments)),
		Total:       len(deployments),
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	}
	for i := range deployments {
		resp.Deployments = append(resp.Deployments, deploymentToResponse(&deployments[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deployment, err := h.store.GetDeployment(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "deployment not found", "deployment_not_found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to get deployment", "internal_error")
		return
	}

	project, err := h.store.GetProject(r.Context(), deployment.ProjectID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to get deployment", "internal_error")
		return
	}
	if !auth.CanViewProject(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}
	h.writeJSON(w, http.StatusOK, deploymentToResponse(deployment))
}

func (h *Handler) handleCancelDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deployment, err := h.store.GetDeployment(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "deployment not found", "deployment_not_found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to get deployment", "internal_error")
		return
	}

	project, err := h.store.GetProject(r.Context(), deployment.ProjectID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to cancel deployment", "internal_error")
		return
	}
	if !auth.CanDeployProject(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	cancelled, err := h.deployer.Cancel(r.Context(), deployment.ID)
	if err != nil {
		h.logger.Error("failed to cancel deployment", "deployment_id", deployment.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to cancel deployment", "internal_error")
		return
	}
	if !cancelled {
		h.writeError(w, http.StatusConflict, "deployment is no longer cancellable", "not_cancellable")
		return
	}

	h.logger.Info("deployment cancelled", "deployment_id", deployment.ID, "project_id", project.ID)
	h.writeJSON(w, http.StatusOK, CancelResponse{Cancelled: true})
}

// =============================================================================
// Log Handler
// =============================================================================

func (h *Handler) handleProjectLogs(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !auth.CanViewProject(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	containerName := coredeployment.AppContainerName(project.ID)
	if service := r.URL.Query().Get("service"); service != "" {
		containerName = coredeployment.ServiceContainerName(project.ID, service)
	}

	tail := r.URL.Query().Get("tail")
	if tail == "" {
		tail = "100"
	}

	logs, err := h.docker.ContainerLogs(r.Context(), containerName, docker.LogOptions{Tail: tail})
	if err != nil {
		if errors.Is(err, docker.ErrContainerNotFound) {
			h.writeError(w, http.StatusNotFound, "no containers for project", "container_not_found")
			return
		}
		h.logger.Error("failed to fetch logs", "project_id", project.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch logs", "internal_error")
		return
	}
	defer logs.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, logs)
}

// =============================================================================
// Credential Handlers
// =============================================================================

func (h *Handler) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	project := h.loadProject(w, r)
	if project == nil {
		return
	}
	if !auth.CanViewCredentials(auth.FromContext(r.Context()), *project) {
		h.writeForbidden(w)
		return
	}

	creds, err := h.provisioner.Credentials(r.Context(), project.ID)
	if err != nil {
		h.logger.Error("failed to load credentials", "project_id", project.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load credentials", "internal_error")
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, CredentialResponse{Key: c.Key, Value: c.Value})
	}
	h.writeJSON(w, http.StatusOK, resp)
}
