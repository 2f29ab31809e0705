package store

import (
	"context"
	"time"

	"github.com/kamrulh4/auraops/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for AuraOps entities.
type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	ListUsers(ctx context.Context, opts ListOptions) ([]domain.User, error)
	CountUsers(ctx context.Context) (int, error)

	// Project operations
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*domain.Project, error)
	GetProjectByWebhookToken(ctx context.Context, token string) (*domain.Project, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context, opts ListOptions) ([]domain.Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]domain.Project, error)
	ListProjectsByPhase(ctx context.Context, phase domain.ProjectPhase) ([]domain.Project, error)
	CountProjectsByPhase(ctx context.Context, phase domain.ProjectPhase) (int, error)

	// Deployment operations
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	GetDeployment(ctx context.Context, id string) (*domain.Deployment, error)
	UpdateDeployment(ctx context.Context, deployment *domain.Deployment) error
	ListDeploymentsByProject(ctx context.Context, projectID string, opts ListOptions) ([]domain.Deployment, error)
	GetLatestDeployment(ctx context.Context, projectID string) (*domain.Deployment, error)
	ListUnfinishedDeployments(ctx context.Context) ([]domain.Deployment, error)
	CountDeployments(ctx context.Context) (int, error)

	// Domain operations
	CreateDomain(ctx context.Context, d *domain.Domain) error
	GetDomain(ctx context.Context, id string) (*domain.Domain, error)
	GetDomainByHostname(ctx context.Context, hostname string) (*domain.Domain, error)
	UpdateDomain(ctx context.Context, d *domain.Domain) error
	DeleteDomain(ctx context.Context, id string) error
	ListDomainsByProject(ctx context.Context, projectID string) ([]domain.Domain, error)
	ListDomains(ctx context.Context, opts ListOptions) ([]domain.Domain, error)
	ListExpiringDomains(ctx context.Context, within time.Duration) ([]domain.Domain, error)

	// Credential operations
	CreateCredential(ctx context.Context, cred *domain.Credential) error
	ListCredentialsByProject(ctx context.Context, projectID string) ([]domain.Credential, error)
	DeleteCredentialsByProject(ctx context.Context, projectID string) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
