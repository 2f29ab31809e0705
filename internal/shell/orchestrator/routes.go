package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/kamrulh4/auraops/internal/core/compose"
	coredeployment "github.com/kamrulh4/auraops/internal/core/deployment"
	"github.com/kamrulh4/auraops/internal/core/domain"
	corenginx "github.com/kamrulh4/auraops/internal/core/nginx"
)

// =============================================================================
// Route Publishing
// =============================================================================

// BuildRoutes assembles the routing snapshot for every running project.
func (o *Orchestrator) BuildRoutes(ctx context.Context) ([]corenginx.Route, error) {
	projects, err := o.store.ListProjectsByPhase(ctx, domain.PhaseRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to list running projects: %w", err)
	}

	routes := make([]corenginx.Route, 0, len(projects))
	for i := range projects {
		project := &projects[i]

		upstream, err := routeUpstream(project)
		if err != nil {
			o.logger.Error("skipping project with unroutable source",
				"project_id", project.ID, "error", err)
			continue
		}

		domains, err := o.store.ListDomainsByProject(ctx, project.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list domains for %s: %w", project.Slug, err)
		}

		route := corenginx.Route{
			ProjectID: project.ID,
			Slug:      project.Slug,
			Upstream:  upstream,
			Port:      project.Port,
		}
		now := time.Now().UTC()
		for _, d := range domains {
			route.Domains = append(route.Domains, corenginx.DomainRoute{
				Hostname: d.Hostname,
				Wildcard: d.Wildcard,
				TLS:      d.SSLEnabled && d.HasValidCert(now),
			})
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// PublishRoutes rebuilds the snapshot and applies it to the reverse proxy.
func (o *Orchestrator) PublishRoutes(ctx context.Context) error {
	routes, err := o.BuildRoutes(ctx)
	if err != nil {
		return err
	}
	return o.proxy.Apply(ctx, routes)
}

// routeUpstream resolves the container name traffic for the project should
// be proxied to.
func routeUpstream(project *domain.Project) (string, error) {
	if project.Source.Kind != domain.SourceCompose {
		return coredeployment.AppContainerName(project.ID), nil
	}

	spec, err := compose.ParseComposeSpec(project.Source.ComposeYAML)
	if err != nil {
		return "", err
	}
	primary := PrimaryService(spec, project.Port)
	if primary == "" {
		return "", fmt.Errorf("compose project %s has no services", project.Slug)
	}
	return coredeployment.ServiceContainerName(project.ID, primary), nil
}
