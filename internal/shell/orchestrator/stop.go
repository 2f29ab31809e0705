package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/kamrulh4/auraops/internal/core/compose"
	coredeployment "github.com/kamrulh4/auraops/internal/core/deployment"
	"github.com/kamrulh4/auraops/internal/core/domain"
	"github.com/kamrulh4/auraops/internal/core/templates"
	"github.com/kamrulh4/auraops/internal/shell/docker"
)

// =============================================================================
// Stop and Remove
// =============================================================================

// Stop stops a running project's containers without removing them and pulls
// the project out of the routing snapshot.
func (o *Orchestrator) Stop(ctx context.Context, project *domain.Project) error {
	logger := o.logger.With("project_id", project.ID, "slug", project.Slug)

	containers, err := o.docker.ListContainers(ctx, docker.ListOptions{
		All: true,
		Filters: map[string]string{
			"label": fmt.Sprintf("%s=%s", coredeployment.LabelProject, project.ID),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to list project containers: %w", err)
	}

	timeout := o.config.StopTimeout
	for _, c := range containers {
		if err := o.docker.StopContainer(ctx, c.ID, &timeout); err != nil &&
			!errors.Is(err, docker.ErrContainerNotFound) &&
			!errors.Is(err, docker.ErrContainerNotRunning) {
			return fmt.Errorf("failed to stop container %s: %w", c.Name, err)
		}
	}

	if err := o.setPhase(ctx, project, domain.PhaseStopped); err != nil {
		return err
	}

	latest, err := o.store.GetLatestDeployment(ctx, project.ID)
	if err == nil && latest.Status == domain.StatusRunning {
		if transErr := latest.Transition(domain.StatusStopped); transErr == nil {
			if updateErr := o.store.UpdateDeployment(ctx, latest); updateErr != nil {
				logger.Error("failed to stop deployment", "error", updateErr)
			}
		}
	}

	if err := o.PublishRoutes(ctx); err != nil {
		logger.Error("failed to publish routes", "error", err)
	}

	logger.Info("project stopped", "containers", len(containers))
	return nil
}

// Remove tears down every runtime resource of a project: containers, the
// private network, and data volumes. Store rows are the caller's concern.
func (o *Orchestrator) Remove(ctx context.Context, project *domain.Project) error {
	logger := o.logger.With("project_id", project.ID, "slug", project.Slug)

	if err := o.removeProjectContainers(ctx, project.ID, docker.RemoveOptions{Force: true, RemoveVolumes: false}); err != nil {
		return err
	}

	if err := o.docker.RemoveNetwork(ctx, coredeployment.NetworkName(project.ID)); err != nil &&
		!errors.Is(err, docker.ErrNetworkNotFound) {
		logger.Error("failed to remove project network", "error", err)
	}

	for _, volume := range projectVolumes(project) {
		if err := o.docker.RemoveVolume(ctx, volume, true); err != nil &&
			!errors.Is(err, docker.ErrVolumeNotFound) {
			logger.Error("failed to remove volume", "volume", volume, "error", err)
		}
	}

	if err := o.PublishRoutes(ctx); err != nil {
		logger.Error("failed to publish routes", "error", err)
	}

	logger.Info("project resources removed")
	return nil
}

// projectVolumes lists the named volumes a project's source can create.
func projectVolumes(project *domain.Project) []string {
	switch project.Source.Kind {
	case domain.SourceTemplate:
		rt, err := templates.Runtime(project.Source.TemplateSlug, project.Env)
		if err != nil || rt.VolumeName == "" {
			return nil
		}
		return []string{coredeployment.VolumeName(project.ID, rt.VolumeName)}

	case domain.SourceCompose:
		spec, err := compose.ParseComposeSpec(project.Source.ComposeYAML)
		if err != nil {
			return nil
		}
		var volumes []string
		for _, v := range spec.Volumes {
			if v.External {
				continue
			}
			volumes = append(volumes, coredeployment.VolumeName(project.ID, v.Name))
		}
		return volumes
	}
	return nil
}

// =============================================================================
// Recovery
// =============================================================================

// RecoverySweep closes out work interrupted by a process restart: unfinished
// deployments are failed, and projects stuck in a transitional phase are
// marked failed so they can be redeployed.
func (o *Orchestrator) RecoverySweep(ctx context.Context) error {
	deployments, err := o.store.ListUnfinishedDeployments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unfinished deployments: %w", err)
	}

	for i := range deployments {
		d := &deployments[i]
		if err := d.TransitionToFailed("interrupted by restart"); err != nil {
			continue
		}
		if err := o.store.UpdateDeployment(ctx, d); err != nil {
			o.logger.Error("failed to fail interrupted deployment",
				"deployment_id", d.ID, "error", err)
		}
	}

	transitional := []domain.ProjectPhase{domain.PhaseQueued, domain.PhaseBuilding, domain.PhaseStarting}
	recovered := 0
	for _, phase := range transitional {
		projects, err := o.store.ListProjectsByPhase(ctx, phase)
		if err != nil {
			return fmt.Errorf("failed to list projects in phase %s: %w", phase, err)
		}
		for i := range projects {
			project := &projects[i]
			if err := o.setPhase(ctx, project, domain.PhaseFailed); err != nil {
				o.logger.Error("failed to recover project",
					"project_id", project.ID, "error", err)
				continue
			}
			recovered++
		}
	}

	if len(deployments) > 0 || recovered > 0 {
		o.logger.Info("recovery sweep finished",
			"failed_deployments", len(deployments),
			"recovered_projects", recovered,
		)
	}
	return nil
}
