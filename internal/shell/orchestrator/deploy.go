package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kamrulh4/auraops/internal/core/compose"
	coredeployment "github.com/kamrulh4/auraops/internal/core/deployment"
	"github.com/kamrulh4/auraops/internal/core/domain"
	"github.com/kamrulh4/auraops/internal/core/templates"
	"github.com/kamrulh4/auraops/internal/shell/docker"
	"github.com/kamrulh4/auraops/internal/shell/image"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// =============================================================================
// Deployment Execution
// =============================================================================

// execute runs one deployment end to end: acquire the image, replace the
// project's containers, wait for health, publish routes. Errors are recorded
// on the deployment and the project, never returned.
func (o *Orchestrator) execute(ctx context.Context, deployment *domain.Deployment) {
	logger := o.logger.With("deployment_id", deployment.ID, "project_id", deployment.ProjectID)

	project, err := o.store.GetProject(ctx, deployment.ProjectID)
	if err != nil {
		logger.Error("failed to load project", "error", err)
		o.failDeployment(ctx, nil, deployment, "project no longer exists", "", domain.PhaseFailed)
		return
	}
	logger = logger.With("slug", project.Slug)

	// Until the previous containers are torn down, a failure rolls the phase
	// back to the one the deploy started from.
	priorPhase := project.Phase

	if project.Phase != domain.PhaseQueued {
		if err := o.setPhase(ctx, project, domain.PhaseQueued); err != nil {
			o.failDeployment(ctx, project, deployment, fmt.Sprintf("project not deployable: %v", err), "", failurePhase(priorPhase, false))
			return
		}
	}

	if err := deployment.Transition(domain.StatusBuilding); err != nil {
		logger.Error("deployment not in a deployable state", "status", deployment.Status, "error", err)
		return
	}
	if err := o.store.UpdateDeployment(ctx, deployment); err != nil {
		logger.Error("failed to update deployment", "error", err)
	}
	if err := o.setPhase(ctx, project, domain.PhaseBuilding); err != nil {
		o.failDeployment(ctx, project, deployment, err.Error(), "", failurePhase(priorPhase, false))
		return
	}

	logger.Info("deployment started", "trigger", deployment.Trigger, "source", project.Source.Kind)

	result, err := o.acquireWithRetry(ctx, project)
	if err != nil {
		var acquireErr *image.AcquireError
		buildLog := ""
		if errors.As(err, &acquireErr) {
			buildLog = acquireErr.BuildLog
		}
		o.failDeployment(ctx, project, deployment, err.Error(), buildLog, failurePhase(priorPhase, false))
		return
	}

	deployment.ImageRef = result.ImageRef
	deployment.ImageDigest = result.Digest
	deployment.BuildLog = result.BuildLog

	if err := deployment.Transition(domain.StatusStarting); err == nil {
		if updateErr := o.store.UpdateDeployment(ctx, deployment); updateErr != nil {
			logger.Error("failed to update deployment", "error", updateErr)
		}
	}
	if err := o.setPhase(ctx, project, domain.PhaseStarting); err != nil {
		o.failDeployment(ctx, project, deployment, err.Error(), "", failurePhase(priorPhase, false))
		return
	}

	containerIDs, tornDown, err := o.startContainers(ctx, project, deployment, result)
	if err != nil {
		o.failDeployment(ctx, project, deployment, err.Error(), "", failurePhase(priorPhase, tornDown))
		return
	}

	if err := o.waitHealthy(ctx, containerIDs); err != nil {
		// Containers stay up for debugging; the deployment is still a failure.
		o.failDeployment(ctx, project, deployment, err.Error(), "", failurePhase(priorPhase, true))
		return
	}

	o.stopReplacedDeployment(ctx, project, deployment)

	if err := deployment.Transition(domain.StatusRunning); err == nil {
		if updateErr := o.store.UpdateDeployment(ctx, deployment); updateErr != nil {
			logger.Error("failed to update deployment", "error", updateErr)
		}
	}
	if err := o.setPhase(ctx, project, domain.PhaseRunning); err != nil {
		logger.Error("failed to transition project to running", "error", err)
	}

	if err := o.PublishRoutes(ctx); err != nil {
		logger.Error("failed to publish routes", "error", err)
	}

	logger.Info("deployment succeeded", "image", deployment.ImageRef)
}

// setPhase transitions the project and persists it.
func (o *Orchestrator) setPhase(ctx context.Context, project *domain.Project, phase domain.ProjectPhase) error {
	if err := project.SetPhase(phase); err != nil {
		return err
	}
	return o.store.UpdateProject(ctx, project)
}

// failurePhase picks the phase a failed deploy leaves the project in. Before
// any teardown the previous containers still serve, so the last good phase
// is restored; once teardown began only failed is truthful.
func failurePhase(prior domain.ProjectPhase, tornDown bool) domain.ProjectPhase {
	if !tornDown && (prior == domain.PhaseRunning || prior == domain.PhaseStopped) {
		return prior
	}
	return domain.PhaseFailed
}

// failDeployment records a failure on the deployment and moves the project to
// the given phase when it is known.
func (o *Orchestrator) failDeployment(ctx context.Context, project *domain.Project, deployment *domain.Deployment, message, buildLog string, phase domain.ProjectPhase) {
	// The failure must be recorded even when the run context was cancelled.
	ctx = context.WithoutCancel(ctx)

	o.logger.Error("deployment failed",
		"deployment_id", deployment.ID,
		"project_id", deployment.ProjectID,
		"error", message,
	)

	if buildLog != "" {
		deployment.BuildLog = buildLog
	}
	if err := deployment.TransitionToFailed(message); err == nil {
		if updateErr := o.store.UpdateDeployment(ctx, deployment); updateErr != nil {
			o.logger.Error("failed to record deployment failure",
				"deployment_id", deployment.ID, "error", updateErr)
		}
	}

	if project == nil || project.Phase == phase {
		return
	}
	var phaseErr error
	if phase == domain.PhaseFailed {
		phaseErr = project.SetPhase(domain.PhaseFailed)
	} else {
		phaseErr = project.RestorePhase(phase)
	}
	if phaseErr == nil {
		if updateErr := o.store.UpdateProject(ctx, project); updateErr != nil {
			o.logger.Error("failed to record project failure",
				"project_id", project.ID, "error", updateErr)
		}
	}
}

// stopReplacedDeployment closes out the previously running deployment once
// its successor has healthy containers.
func (o *Orchestrator) stopReplacedDeployment(ctx context.Context, project *domain.Project, current *domain.Deployment) {
	previous, err := o.store.ListDeploymentsByProject(ctx, project.ID, store.ListOptions{Limit: 50})
	if err != nil {
		return
	}
	for i := range previous {
		d := &previous[i]
		if d.ID == current.ID || d.Status != domain.StatusRunning {
			continue
		}
		if err := d.Transition(domain.StatusStopped); err == nil {
			if updateErr := o.store.UpdateDeployment(ctx, d); updateErr != nil {
				o.logger.Error("failed to stop replaced deployment",
					"deployment_id", d.ID, "error", updateErr)
			}
		}
	}
}

// =============================================================================
// Image Acquisition
// =============================================================================

// acquireWithRetry retries transient acquisition failures with exponential
// backoff. Build failures and invalid sources fail immediately.
func (o *Orchestrator) acquireWithRetry(ctx context.Context, project *domain.Project) (*image.Result, error) {
	var lastErr error

	for attempt := 1; attempt <= coredeployment.MaxAttempts; attempt++ {
		if delay := coredeployment.Backoff(attempt, o.config.RetryBase); delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := o.images.Acquire(ctx, project)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !image.Retryable(err) {
			return nil, err
		}
		o.logger.Warn("image acquisition failed, retrying",
			"project_id", project.ID,
			"attempt", attempt,
			"error", err,
		)
	}

	return nil, fmt.Errorf("image acquisition failed after %d attempts: %w", coredeployment.MaxAttempts, lastErr)
}

// =============================================================================
// Container Startup
// =============================================================================

// startContainers replaces the project's containers with ones running the
// acquired image. Returns the IDs of every started container and whether the
// previous containers were already torn down when an error occurred.
func (o *Orchestrator) startContainers(ctx context.Context, project *domain.Project, deployment *domain.Deployment, result *image.Result) ([]string, bool, error) {
	if project.Source.Kind == domain.SourceCompose {
		return o.startComposeContainers(ctx, project, deployment)
	}
	id, err := o.startAppContainer(ctx, project, deployment, result)
	if err != nil {
		return nil, true, err
	}
	return []string{id}, true, nil
}

// startAppContainer runs the single container of an image, repository,
// static, or template project.
func (o *Orchestrator) startAppContainer(ctx context.Context, project *domain.Project, deployment *domain.Deployment, result *image.Result) (string, error) {
	name := coredeployment.AppContainerName(project.ID)

	if err := o.removeContainer(ctx, name); err != nil {
		return "", fmt.Errorf("failed to remove previous container: %w", err)
	}
	if err := o.ensureNetwork(ctx, coredeployment.SharedNetwork); err != nil {
		return "", err
	}

	env := make(map[string]string, len(project.Env))
	for k, v := range project.Env {
		env[k] = v
	}

	spec := docker.ContainerSpec{
		Name:  name,
		Image: result.ImageRef,
		Env:   env,
		Labels: map[string]string{
			coredeployment.LabelManaged:    "true",
			coredeployment.LabelProject:    project.ID,
			coredeployment.LabelDeployment: deployment.ID,
		},
		Networks:      []string{coredeployment.SharedNetwork},
		RestartPolicy: docker.RestartPolicy{Name: "unless-stopped"},
	}

	if project.Source.Kind == domain.SourceTemplate {
		if err := o.applyTemplateRuntime(ctx, project, &spec); err != nil {
			return "", err
		}
	}

	containerID, err := o.docker.CreateContainer(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	if err := o.docker.StartContainer(ctx, containerID); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return containerID, nil
}

// applyTemplateRuntime rebuilds the template's command, data volume, and
// health probe from the environment persisted at provision time.
func (o *Orchestrator) applyTemplateRuntime(ctx context.Context, project *domain.Project, spec *docker.ContainerSpec) error {
	rt, err := templates.Runtime(project.Source.TemplateSlug, project.Env)
	if err != nil {
		return err
	}

	spec.Command = rt.Command

	if rt.VolumeName != "" {
		volume := coredeployment.VolumeName(project.ID, rt.VolumeName)
		if _, err := o.docker.CreateVolume(ctx, docker.VolumeSpec{
			Name: volume,
			Labels: map[string]string{
				coredeployment.LabelManaged: "true",
				coredeployment.LabelProject: project.ID,
			},
		}); err != nil {
			return fmt.Errorf("failed to create data volume: %w", err)
		}
		spec.Volumes = append(spec.Volumes, docker.VolumeMount{
			Source: volume,
			Target: rt.VolumePath,
		})
	}

	if rt.HealthCheck != nil {
		spec.HealthCheck = templateHealthCheck(rt.HealthCheck)
	}
	return nil
}

// templateHealthCheck converts a catalog health probe to a Docker one.
func templateHealthCheck(hc *templates.HealthCheck) *docker.HealthCheck {
	out := &docker.HealthCheck{
		Test:    hc.Test,
		Retries: hc.Retries,
	}
	if d, err := time.ParseDuration(hc.Interval); err == nil {
		out.Interval = d
	}
	if d, err := time.ParseDuration(hc.Timeout); err == nil {
		out.Timeout = d
	}
	return out
}

// startComposeContainers runs every service of a compose project on a private
// network, in dependency order, then attaches the routed service to the
// shared network so the proxy can reach it.
func (o *Orchestrator) startComposeContainers(ctx context.Context, project *domain.Project, deployment *domain.Deployment) ([]string, bool, error) {
	spec, err := compose.ParseComposeSpec(project.Source.ComposeYAML)
	if err != nil {
		return nil, false, fmt.Errorf("invalid compose specification: %w", err)
	}

	if err := o.removeProjectContainers(ctx, project.ID, docker.RemoveOptions{Force: true}); err != nil {
		return nil, true, err
	}

	networkName := coredeployment.NetworkName(project.ID)
	if err := o.ensureNetwork(ctx, networkName); err != nil {
		return nil, true, err
	}
	if err := o.ensureNetwork(ctx, coredeployment.SharedNetwork); err != nil {
		return nil, true, err
	}

	for _, v := range spec.Volumes {
		if v.External {
			continue
		}
		if _, err := o.docker.CreateVolume(ctx, docker.VolumeSpec{
			Name: coredeployment.VolumeName(project.ID, v.Name),
			Labels: map[string]string{
				coredeployment.LabelManaged: "true",
				coredeployment.LabelProject: project.ID,
			},
		}); err != nil {
			return nil, true, fmt.Errorf("failed to create volume %s: %w", v.Name, err)
		}
	}

	primary := PrimaryService(spec, project.Port)
	sorted := coredeployment.TopologicalSort(spec.Services)
	containerIDs := make([]string, 0, len(sorted))

	for _, svc := range sorted {
		plan := coredeployment.BuildContainerPlan(coredeployment.BuildContainerPlanParams{
			ProjectID:    project.ID,
			DeploymentID: deployment.ID,
			ServiceName:  svc.Name,
			Service:      svc,
			Variables:    project.Env,
			NetworkName:  networkName,
		})

		containerSpec := containerSpecFromPlan(plan)
		// Services resolve each other by bare service name.
		containerSpec.NetworkAliases = map[string][]string{
			networkName: {svc.Name},
		}
		if svc.Name == primary {
			containerSpec.Networks = append(containerSpec.Networks, coredeployment.SharedNetwork)
		}

		containerID, err := o.docker.CreateContainer(ctx, containerSpec)
		if err != nil {
			return nil, true, fmt.Errorf("failed to create service %s: %w", svc.Name, err)
		}
		if err := o.docker.StartContainer(ctx, containerID); err != nil {
			return nil, true, fmt.Errorf("failed to start service %s: %w", svc.Name, err)
		}
		containerIDs = append(containerIDs, containerID)
	}

	return containerIDs, true, nil
}

// PrimaryService picks the compose service that receives proxied traffic:
// the first service exposing the project port, falling back to the first
// service in dependency order.
func PrimaryService(spec *compose.ParsedSpec, port int) string {
	sorted := coredeployment.TopologicalSort(spec.Services)
	if len(sorted) == 0 {
		return ""
	}
	for _, svc := range sorted {
		for _, p := range svc.Ports {
			if int(p.Target) == port {
				return svc.Name
			}
		}
	}
	return sorted[0].Name
}

// containerSpecFromPlan converts a planned container to a Docker spec.
func containerSpecFromPlan(plan coredeployment.ContainerPlan) docker.ContainerSpec {
	spec := docker.ContainerSpec{
		Name:       plan.Name,
		Image:      plan.Image,
		Command:    plan.Command,
		Entrypoint: plan.Entrypoint,
		Env:        plan.Env,
		Labels:     plan.Labels,
		Networks:   plan.Networks,
		RestartPolicy: docker.RestartPolicy{
			Name:              plan.RestartPolicy.Name,
			MaximumRetryCount: plan.RestartPolicy.MaximumRetryCount,
		},
		Resources: docker.ResourceLimits{
			CPULimit:    plan.Resources.CPULimit,
			MemoryLimit: plan.Resources.MemoryLimit,
		},
	}

	for _, p := range plan.Ports {
		spec.Ports = append(spec.Ports, docker.PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}
	for _, v := range plan.Volumes {
		spec.Volumes = append(spec.Volumes, docker.VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}
	if plan.HealthCheck != nil {
		spec.HealthCheck = &docker.HealthCheck{
			Test:        plan.HealthCheck.Test,
			Interval:    plan.HealthCheck.Interval,
			Timeout:     plan.HealthCheck.Timeout,
			Retries:     plan.HealthCheck.Retries,
			StartPeriod: plan.HealthCheck.StartPeriod,
		}
	}
	return spec
}

// =============================================================================
// Docker Helpers
// =============================================================================

// removeContainer stops and removes a container by name, tolerating absence.
func (o *Orchestrator) removeContainer(ctx context.Context, name string) error {
	timeout := o.config.StopTimeout
	if err := o.docker.StopContainer(ctx, name, &timeout); err != nil &&
		!errors.Is(err, docker.ErrContainerNotFound) &&
		!errors.Is(err, docker.ErrContainerNotRunning) {
		return err
	}
	if err := o.docker.RemoveContainer(ctx, name, docker.RemoveOptions{Force: true}); err != nil &&
		!errors.Is(err, docker.ErrContainerNotFound) {
		return err
	}
	return nil
}

// removeProjectContainers removes every container labeled with the project.
func (o *Orchestrator) removeProjectContainers(ctx context.Context, projectID string, opts docker.RemoveOptions) error {
	containers, err := o.docker.ListContainers(ctx, docker.ListOptions{
		All: true,
		Filters: map[string]string{
			"label": fmt.Sprintf("%s=%s", coredeployment.LabelProject, projectID),
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
			return err
		}
		if err := o.docker.RemoveContainer(ctx, c.ID, opts); err != nil &&
			!errors.Is(err, docker.ErrContainerNotFound) {
			return err
		}
	}
	return nil
}

// ensureNetwork creates a bridge network, tolerating one that already exists.
func (o *Orchestrator) ensureNetwork(ctx context.Context, name string) error {
	_, err := o.docker.CreateNetwork(ctx, docker.NetworkSpec{
		Name:   name,
		Driver: "bridge",
		Labels: map[string]string{coredeployment.LabelManaged: "true"},
	})
	if err != nil && !errors.Is(err, docker.ErrNetworkAlreadyExists) {
		return fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return nil
}

// =============================================================================
// Health Waiting
// =============================================================================

const healthPollInterval = 2 * time.Second

// waitHealthy blocks until every container is healthy, or running with no
// health check configured. A container that exits or reports unhealthy fails
// the wait immediately.
func (o *Orchestrator) waitHealthy(ctx context.Context, containerIDs []string) error {
	deadline := time.Now().Add(o.config.HealthTimeout)
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		allHealthy := true
		for _, id := range containerIDs {
			info, err := o.docker.InspectContainer(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to inspect container: %w", err)
			}

			switch info.Status {
			case docker.ContainerStatusExited, docker.ContainerStatusDead:
				return fmt.Errorf("container %s exited with code %d", info.Name, info.ExitCode)
			}
			if info.Health == "unhealthy" {
				return fmt.Errorf("container %s is unhealthy", info.Name)
			}

			ready := info.Status == docker.ContainerStatusRunning &&
				(info.Health == "" || info.Health == "healthy")
			if !ready {
				allHealthy = false
			}
		}
		if allHealthy {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("containers not healthy after %s", o.config.HealthTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
