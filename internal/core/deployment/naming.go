package deployment

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// SharedNetwork is the bridge network every single-service project joins so
// the reverse proxy can reach containers by name.
const SharedNetwork = "auraops-network"

// AppContainerName generates the container name for a single-service project.
// Pattern: auraops_app_{projectID}
func AppContainerName(projectID string) string {
	return fmt.Sprintf("auraops_app_%s", projectID)
}

// ServiceContainerName generates a container name for one service of a
// compose project.
// Pattern: auraops_{projectID}_{serviceName}
func ServiceContainerName(projectID, serviceName string) string {
	return fmt.Sprintf("auraops_%s_%s", projectID, serviceName)
}

// NetworkName generates the private network name for a compose project.
// Pattern: auraops_{projectID}
func NetworkName(projectID string) string {
	return fmt.Sprintf("auraops_%s", projectID)
}

// VolumeName generates a volume name scoped to a project.
// Pattern: auraops_{projectID}_{volumeName}
func VolumeName(projectID, volumeName string) string {
	return fmt.Sprintf("auraops_%s_%s", projectID, volumeName)
}

// ImageTag generates the local image tag for a built project.
// Pattern: auraops-{slug}:latest
func ImageTag(slug string) string {
	return fmt.Sprintf("auraops-%s:latest", slug)
}
