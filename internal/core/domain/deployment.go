package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Deployment Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// Deployment Status
// =============================================================================

type DeploymentStatus string

const (
	StatusQueued     DeploymentStatus = "queued"
	StatusBuilding   DeploymentStatus = "building"
	StatusStarting   DeploymentStatus = "starting"
	StatusRunning    DeploymentStatus = "running"
	StatusStopped    DeploymentStatus = "stopped"
	StatusFailed     DeploymentStatus = "failed"
	StatusSuperseded DeploymentStatus = "superseded"
)

// Terminal reports whether the status can never change again.
func (s DeploymentStatus) Terminal() bool {
	switch s {
	case StatusStopped, StatusFailed, StatusSuperseded:
		return true
	}
	return false
}

// validTransitions defines the allowed state transitions. Running is not
// terminal: a running deployment becomes stopped when a newer one replaces
// it or the project is stopped, and failed if its container dies.
var validTransitions = map[DeploymentStatus][]DeploymentStatus{
	StatusQueued:     {StatusBuilding, StatusSuperseded, StatusFailed},
	StatusBuilding:   {StatusStarting, StatusFailed},
	StatusStarting:   {StatusRunning, StatusFailed},
	StatusRunning:    {StatusStopped, StatusFailed},
	StatusStopped:    {},
	StatusFailed:     {},
	StatusSuperseded: {},
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to DeploymentStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// =============================================================================
// Trigger
// =============================================================================

// Trigger records what caused a deployment.
type Trigger string

const (
	TriggerAPI       Trigger = "api"
	TriggerWebhook   Trigger = "webhook"
	TriggerProvision Trigger = "provision"
	TriggerRecovery  Trigger = "recovery"
)

// =============================================================================
// Deployment
// =============================================================================

// Deployment is one attempt to bring a project to its desired running state.
type Deployment struct {
	ID          string           `json:"id"`
	ProjectID   string           `json:"project_id"`
	Status      DeploymentStatus `json:"status"`
	Trigger     Trigger          `json:"trigger"`
	ImageRef    string           `json:"image_ref,omitempty"`
	ImageDigest string           `json:"image_digest,omitempty"`
	Error       string           `json:"error,omitempty"`
	BuildLog    string           `json:"build_log,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
}

// NewDeployment creates a queued deployment for a project.
func NewDeployment(projectID string, trigger Trigger) *Deployment {
	return &Deployment{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Status:    StatusQueued,
		Trigger:   trigger,
		CreatedAt: time.Now().UTC(),
	}
}

// Transition attempts to move the deployment to a new status.
func (d *Deployment) Transition(to DeploymentStatus) error {
	if err := ValidateTransition(d.Status, to); err != nil {
		return err
	}
	d.Status = to

	now := time.Now().UTC()
	switch to {
	case StatusBuilding:
		d.StartedAt = &now
	case StatusRunning, StatusStopped, StatusFailed, StatusSuperseded:
		if to != StatusRunning {
			d.FinishedAt = &now
		}
	}
	return nil
}

// TransitionToFailed marks the deployment failed with an error message.
// Allowed from any non-terminal status; used by the recovery sweep as well
// as by the deploy loop itself.
func (d *Deployment) TransitionToFailed(errorMessage string) error {
	if d.Status.Terminal() {
		return ErrInvalidTransition
	}
	d.Status = StatusFailed
	d.Error = errorMessage
	now := time.Now().UTC()
	d.FinishedAt = &now
	return nil
}

// Supersede marks a still-queued deployment as replaced by a newer request.
func (d *Deployment) Supersede() error {
	return d.Transition(StatusSuperseded)
}
