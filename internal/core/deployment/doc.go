// Package deployment provides pure functions for deployment planning.
//
// This package contains the functional core logic for turning a project's
// source into Docker execution plans. All functions are pure (no I/O,
// no side effects).
//
// # Functions
//
//   - Naming: generate consistent resource names (AppContainerName, NetworkName, VolumeName)
//   - Ordering: sort compose services by dependencies (TopologicalSort)
//   - Variables: substitute environment variable placeholders (SubstituteVariables)
//   - Container: build container plans from compose services (BuildContainerPlan)
//   - Backoff: compute the retry schedule for transient deploy failures
//
// The imperative shell (internal/shell/orchestrator) uses these functions
// to plan deployments, then executes the plans via the Docker API.
package deployment
