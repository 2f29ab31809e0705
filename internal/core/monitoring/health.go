// Package monitoring classifies project health from observed container
// state. All functions are pure; callers gather the state.
package monitoring

// =============================================================================
// Health Classification
// =============================================================================

// Status is the rolled-up health of a project's containers.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
	StatusUnknown  Status = "unknown"
)

// ContainerState is the observed state of a single container.
type ContainerState struct {
	Running bool
	// Health is the Docker health check result: "healthy", "unhealthy",
	// "starting", or "" when the image defines no health check.
	Health string
}

// ContainerHealth classifies a single container.
func ContainerHealth(c ContainerState) Status {
	if !c.Running {
		return StatusDown
	}
	switch c.Health {
	case "unhealthy":
		return StatusDown
	case "starting":
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// AggregateHealth rolls per-container health up to a project status.
// No containers is unknown, every container down is down, any container
// down or still starting is degraded, otherwise healthy.
func AggregateHealth(containers []ContainerState) Status {
	if len(containers) == 0 {
		return StatusUnknown
	}

	down := 0
	degraded := 0
	for _, c := range containers {
		switch ContainerHealth(c) {
		case StatusDown:
			down++
		case StatusDegraded:
			degraded++
		}
	}

	if down == len(containers) {
		return StatusDown
	}
	if down > 0 || degraded > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}
