// Package provision creates managed service projects from the template
// catalog: it expands a template, persists the project with its generated
// credentials encrypted, and hands the project to the orchestrator.
package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kamrulh4/auraops/internal/core/crypto"
	coredeployment "github.com/kamrulh4/auraops/internal/core/deployment"
	"github.com/kamrulh4/auraops/internal/core/domain"
	"github.com/kamrulh4/auraops/internal/core/templates"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// =============================================================================
// Provisioner
// =============================================================================

// Deployer schedules a deployment for a project.
type Deployer interface {
	RequestDeploy(ctx context.Context, project *domain.Project, trigger domain.Trigger) (*domain.Deployment, error)
}

// Provisioner expands service templates into deployable projects.
type Provisioner struct {
	store    store.Store
	deployer Deployer
	key      []byte
	logger   *slog.Logger
}

// NewProvisioner creates a provisioner. The master secret encrypts credential
// values at rest.
func NewProvisioner(s store.Store, deployer Deployer, masterSecret string, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		store:    s,
		deployer: deployer,
		key:      crypto.DeriveKey(masterSecret),
		logger:   logger.With("component", "provisioner"),
	}
}

// Provision creates a project from a template and schedules its first
// deployment. Credentials are generated exactly once, here; redeploys reuse
// the environment persisted on the project.
func (p *Provisioner) Provision(ctx context.Context, name, ownerID, templateSlug string) (*domain.Project, *domain.Deployment, error) {
	tmpl, err := templates.Get(templateSlug)
	if err != nil {
		return nil, nil, err
	}

	project, err := domain.NewProject(name, ownerID, domain.Source{
		Kind:         domain.SourceTemplate,
		Image:        tmpl.Image,
		TemplateSlug: tmpl.Slug,
	}, tmpl.Port)
	if err != nil {
		return nil, nil, err
	}

	expanded, err := templates.Expand(tmpl.Slug, project.ID, coredeployment.AppContainerName(project.ID))
	if err != nil {
		return nil, nil, err
	}
	project.Env = expanded.Env

	// Project and credentials land together or not at all.
	err = p.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateProject(ctx, project); err != nil {
			return err
		}
		for _, cred := range expanded.Credentials {
			sealed, err := crypto.EncryptToBase64([]byte(cred.Value), p.key)
			if err != nil {
				return fmt.Errorf("failed to encrypt credential %s: %w", cred.Key, err)
			}
			cred.Value = sealed
			if err := tx.CreateCredential(ctx, cred); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	deployment, err := p.deployer.RequestDeploy(ctx, project, domain.TriggerProvision)
	if err != nil {
		return project, nil, err
	}

	p.logger.Info("service provisioned",
		"project_id", project.ID,
		"template", tmpl.Slug,
		"deployment_id", deployment.ID,
	)
	return project, deployment, nil
}

// Credentials returns a project's credentials with plaintext values.
func (p *Provisioner) Credentials(ctx context.Context, projectID string) ([]domain.Credential, error) {
	creds, err := p.store.ListCredentialsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range creds {
		plaintext, err := crypto.DecryptFromBase64(creds[i].Value, p.key)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential %s: %w", creds[i].Key, err)
		}
		creds[i].Value = string(plaintext)
	}
	return creds, nil
}
