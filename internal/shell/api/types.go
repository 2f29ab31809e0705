package api

import (
	"time"

	"github.com/kamrulh4/auraops/internal/core/domain"
)

// =============================================================================
// Error Response
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// =============================================================================
// Auth Types
// =============================================================================

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int          `json:"expires_in"` // seconds
	User      UserResponse `json:"user"`
}

type UserResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// =============================================================================
// Project Types
// =============================================================================

type CreateProjectRequest struct {
	Name   string            `json:"name"`
	Source domain.Source     `json:"source"`
	Port   int               `json:"port"`
	Env    map[string]string `json:"env,omitempty"`
}

type UpdateProjectRequest struct {
	Source *domain.Source     `json:"source,omitempty"`
	Port   *int               `json:"port,omitempty"`
	Env    *map[string]string `json:"env,omitempty"`
}

type ProjectResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Slug           string            `json:"slug"`
	OwnerID        string            `json:"owner_id"`
	Source         domain.Source     `json:"source"`
	Port           int               `json:"port"`
	Env            map[string]string `json:"env,omitempty"`
	Phase          string            `json:"phase"`
	WebhookToken   string            `json:"webhook_token,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	LastDeployedAt *time.Time        `json:"last_deployed_at,omitempty"`
}

type ListProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// =============================================================================
// Deployment Types
// =============================================================================

type DeploymentResponse struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Status      string     `json:"status"`
	Trigger     string     `json:"trigger"`
	ImageRef    string     `json:"image_ref,omitempty"`
	ImageDigest string     `json:"image_digest,omitempty"`
	Error       string     `json:"error,omitempty"`
	BuildLog    string     `json:"build_log,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// CancelResponse reports the outcome of a best-effort cancel.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

type ListDeploymentsResponse struct {
	Deployments []DeploymentResponse `json:"deployments"`
	Total       int                  `json:"total"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

// =============================================================================
// Domain Types
// =============================================================================

type CreateDomainRequest struct {
	Hostname   string `json:"hostname"`
	SSLEnabled bool   `json:"ssl_enabled"`
}

type DomainResponse struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	Hostname      string     `json:"hostname"`
	Wildcard      bool       `json:"wildcard"`
	SSLEnabled    bool       `json:"ssl_enabled"`
	CertState     string     `json:"cert_state"`
	CertExpiresAt *time.Time `json:"cert_expires_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// =============================================================================
// Template and Credential Types
// =============================================================================

type ProvisionRequest struct {
	Name string `json:"name"`
}

type ProvisionResponse struct {
	Project    ProjectResponse    `json:"project"`
	Deployment DeploymentResponse `json:"deployment"`
}

type CredentialResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// =============================================================================
// System Types
// =============================================================================

type HealthResponse struct {
	Status string `json:"status"`
}

type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type StatsResponse struct {
	Users           int            `json:"users"`
	Projects        int            `json:"projects"`
	ProjectsByPhase map[string]int `json:"projects_by_phase"`
	Deployments     int            `json:"deployments"`
}

// =============================================================================
// Converters
// =============================================================================

func userToResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

// projectToResponse renders a project. The webhook token is included only
// when the caller may manage the project.
func projectToResponse(p *domain.Project, includeToken bool) ProjectResponse {
	resp := ProjectResponse{
		ID:             p.ID,
		Name:           p.Name,
		Slug:           p.Slug,
		OwnerID:        p.OwnerID,
		Source:         p.Source,
		Port:           p.Port,
		Env:            p.Env,
		Phase:          string(p.Phase),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		LastDeployedAt: p.LastDeployedAt,
	}
	if includeToken {
		resp.WebhookToken = p.WebhookToken
	}
	return resp
}

func deploymentToResponse(d *domain.Deployment) DeploymentResponse {
	return DeploymentResponse{
		ID:          d.ID,
		ProjectID:   d.ProjectID,
		Status:      string(d.Status),
		Trigger:     string(d.Trigger),
		ImageRef:    d.ImageRef,
		ImageDigest: d.ImageDigest,
		Error:       d.Error,
		BuildLog:    d.BuildLog,
		CreatedAt:   d.CreatedAt,
		StartedAt:   d.StartedAt,
		FinishedAt:  d.FinishedAt,
	}
}

func domainToResponse(d *domain.Domain) DomainResponse {
	return DomainResponse{
		ID:            d.ID,
		ProjectID:     d.ProjectID,
		Hostname:      d.Hostname,
		Wildcard:      d.Wildcard,
		SSLEnabled:    d.SSLEnabled,
		CertState:     string(d.CertState),
		CertExpiresAt: d.CertExpiresAt,
		LastError:     d.LastError,
		CreatedAt:     d.CreatedAt,
	}
}
