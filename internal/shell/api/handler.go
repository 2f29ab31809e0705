// Package api provides HTTP handlers for the AuraOps API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kamrulh4/auraops/internal/core/domain"
	"github.com/kamrulh4/auraops/internal/shell/api/middleware"
	"github.com/kamrulh4/auraops/internal/shell/docker"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Deployer drives project lifecycle operations.
type Deployer interface {
	RequestDeploy(ctx context.Context, project *domain.Project, trigger domain.Trigger) (*domain.Deployment, error)
	Cancel(ctx context.Context, deploymentID string) (bool, error)
	Stop(ctx context.Context, project *domain.Project) error
	Remove(ctx context.Context, project *domain.Project) error
	PublishRoutes(ctx context.Context) error
}

// CertService issues certificates and cleans up their files.
type CertService interface {
	Issue(ctx context.Context, d *domain.Domain) error
	RemoveCertificate(hostname string)
}

// ServiceProvisioner creates managed service projects from the catalog.
type ServiceProvisioner interface {
	Provision(ctx context.Context, name, ownerID, templateSlug string) (*domain.Project, *domain.Deployment, error)
	Credentials(ctx context.Context, projectID string) ([]domain.Credential, error)
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	store       store.Store
	docker      docker.Client
	deployer    Deployer
	certs       CertService
	provisioner ServiceProvisioner
	sessions    *Sessions
	logger      *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, d docker.Client, deployer Deployer, certs CertService, provisioner ServiceProvisioner, sessions *Sessions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:       s,
		docker:      d,
		deployer:    deployer,
		certs:       certs,
		provisioner: provisioner,
		sessions:    sessions,
		logger:      logger.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	authn := middleware.NewAuthenticator(h.sessions, h.store, h.logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)

		// Webhook deploys authenticate by the token in the path.
		r.Post("/hooks/deploy/{token}", h.handleWebhookDeploy)

		r.Group(func(r chi.Router) {
			r.Use(authn.Handler)
			r.Use(middleware.RequireAuth(h.logger))

			r.Get("/auth/me", h.handleMe)

			r.Route("/projects", func(r chi.Router) {
				r.Post("/", h.handleCreateProject)
				r.Get("/", h.handleListProjects)
				r.Get("/{id}", h.handleGetProject)
				r.Put("/{id}", h.handleUpdateProject)
				r.Delete("/{id}", h.handleDeleteProject)

				r.Post("/{id}/deploy", h.handleDeployProject)
				r.Post("/{id}/stop", h.handleStopProject)
				r.Get("/{id}/deployments", h.handleListDeployments)
				r.Get("/{id}/logs", h.handleProjectLogs)
				r.Get("/{id}/credentials", h.handleListCredentials)

				r.Get("/{id}/domains", h.handleListDomains)
				r.Post("/{id}/domains", h.handleCreateDomain)
				r.Delete("/{id}/domains/{domainID}", h.handleDeleteDomain)
				r.Post("/{id}/domains/{domainID}/certificate", h.handleRequestCertificate)
			})

			r.Get("/deployments/{id}", h.handleGetDeployment)
			r.Post("/deployments/{id}/cancel", h.handleCancelDeployment)

			r.Get("/templates", h.handleListTemplates)
			r.Post("/templates/{slug}/provision", h.handleProvision)

			r.Get("/users", h.handleListUsers)
			r.Put("/users/{id}/role", h.handleUpdateRole)

			r.Get("/system/stats", h.handleStats)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeForbidden renders every authorization denial identically so callers
// cannot probe which rule rejected them.
func (h *Handler) writeForbidden(w http.ResponseWriter) {
	h.writeError(w, http.StatusForbidden, "forbidden", "forbidden")
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return false
	}
	return true
}

// loadProject fetches the project in the URL, writing the error response
// itself when the project cannot be served.
func (h *Handler) loadProject(w http.ResponseWriter, r *http.Request) *domain.Project {
	id := chi.URLParam(r, "id")

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "project not found", "project_not_found")
			return nil
		}
		h.logger.Error("failed to get project", "project_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get project", "internal_error")
		return nil
	}
	return project
}

func listOptionsFromQuery(r *http.Request) store.ListOptions {
	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	return opts.Normalize()
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
