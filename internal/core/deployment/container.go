package deployment

import (
	"time"

	"github.com/kamrulh4/auraops/internal/core/compose"
)

// =============================================================================
// Container Plan Building Functions
// =============================================================================

// BuildContainerPlanParams contains all inputs for building a container plan.
type BuildContainerPlanParams struct {
	ProjectID    string
	DeploymentID string
	ServiceName  string
	Service      compose.Service
	Variables    map[string]string
	NetworkName  string
}

// BuildContainerPlan builds a ContainerPlan from a compose service.
//
// The function:
//   - Generates the container name using ServiceContainerName()
//   - Copies image, command, and entrypoint from the service
//   - Substitutes deployment variables into environment values
//   - Prefixes named volumes with the project ID
//   - Parses health check durations
//   - Maps the restart policy to Docker format
//   - Applies the managed labels and merges service labels
func BuildContainerPlan(params BuildContainerPlanParams) ContainerPlan {
	svc := params.Service

	plan := ContainerPlan{
		Name:       ServiceContainerName(params.ProjectID, params.ServiceName),
		Image:      svc.Image,
		Command:    svc.Command,
		Entrypoint: svc.Entrypoint,
		Env:        make(map[string]string),
		Labels: map[string]string{
			LabelManaged:    "true",
			LabelProject:    params.ProjectID,
			LabelDeployment: params.DeploymentID,
			LabelService:    params.ServiceName,
		},
		Networks: []string{params.NetworkName},
	}

	for k, v := range svc.Environment {
		plan.Env[k] = SubstituteVariables(v, params.Variables)
	}

	for _, p := range svc.Ports {
		plan.Ports = append(plan.Ports, PortPlan{
			ContainerPort: int(p.Target),
			HostPort:      int(p.Published),
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	for _, v := range svc.Volumes {
		source := v.Source
		// Replace named volume with project-prefixed name
		if v.Type == compose.VolumeMountTypeVolume {
			source = VolumeName(params.ProjectID, v.Source)
		}
		plan.Volumes = append(plan.Volumes, VolumePlan{
			Source:   source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if svc.HealthCheck != nil {
		plan.HealthCheck = &HealthCheckPlan{
			Test:    svc.HealthCheck.Test,
			Retries: svc.HealthCheck.Retries,
		}
		if svc.HealthCheck.Interval != "" {
			if d, err := time.ParseDuration(svc.HealthCheck.Interval); err == nil {
				plan.HealthCheck.Interval = d
			}
		}
		if svc.HealthCheck.Timeout != "" {
			if d, err := time.ParseDuration(svc.HealthCheck.Timeout); err == nil {
				plan.HealthCheck.Timeout = d
			}
		}
		if svc.HealthCheck.StartPeriod != "" {
			if d, err := time.ParseDuration(svc.HealthCheck.StartPeriod); err == nil {
				plan.HealthCheck.StartPeriod = d
			}
		}
	}

	if svc.Resources.CPULimit > 0 {
		plan.Resources.CPULimit = svc.Resources.CPULimit
	}
	if svc.Resources.MemoryLimit > 0 {
		plan.Resources.MemoryLimit = svc.Resources.MemoryLimit
	}

	plan.RestartPolicy = mapRestartPolicy(svc.Restart)

	for k, v := range svc.Labels {
		plan.Labels[k] = v
	}

	return plan
}

// mapRestartPolicy maps compose restart policy to Docker restart policy name.
func mapRestartPolicy(policy compose.RestartPolicy) RestartPolicyPlan {
	switch policy {
	case compose.RestartAlways:
		return RestartPolicyPlan{Name: "always"}
	case compose.RestartOnFailure:
		return RestartPolicyPlan{Name: "on-failure"}
	case compose.RestartUnlessStopped:
		return RestartPolicyPlan{Name: "unless-stopped"}
	default:
		return RestartPolicyPlan{Name: "no"}
	}
}
