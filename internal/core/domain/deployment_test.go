package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeployment(t *testing.T) {
	d := NewDeployment("proj-1", TriggerAPI)

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "proj-1", d.ProjectID)
	assert.Equal(t, StatusQueued, d.Status)
	assert.Equal(t, TriggerAPI, d.Trigger)
	assert.Nil(t, d.StartedAt)
	assert.Nil(t, d.FinishedAt)
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    DeploymentStatus
		to      DeploymentStatus
		wantErr bool
	}{
		{"queued to building", StatusQueued, StatusBuilding, false},
		{"queued to superseded", StatusQueued, StatusSuperseded, false},
		{"building to starting", StatusBuilding, StatusStarting, false},
		{"starting to running", StatusStarting, StatusRunning, false},
		{"running to stopped", StatusRunning, StatusStopped, false},
		{"running to failed", StatusRunning, StatusFailed, false},
		{"queued to running skips build", StatusQueued, StatusRunning, true},
		{"stopped is terminal", StatusStopped, StatusQueued, true},
		{"failed is terminal", StatusFailed, StatusBuilding, true},
		{"superseded is terminal", StatusSuperseded, StatusBuilding, true},
		{"running cannot be superseded", StatusRunning, StatusSuperseded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeploymentTransitionTimestamps(t *testing.T) {
	d := NewDeployment("proj-1", TriggerWebhook)

	require.NoError(t, d.Transition(StatusBuilding))
	require.NotNil(t, d.StartedAt)
	require.Nil(t, d.FinishedAt)

	require.NoError(t, d.Transition(StatusStarting))
	require.NoError(t, d.Transition(StatusRunning))
	assert.Nil(t, d.FinishedAt)

	require.NoError(t, d.Transition(StatusStopped))
	assert.NotNil(t, d.FinishedAt)
}

func TestTransitionToFailed(t *testing.T) {
	d := NewDeployment("proj-1", TriggerAPI)
	require.NoError(t, d.Transition(StatusBuilding))

	require.NoError(t, d.TransitionToFailed("image pull timed out"))
	assert.Equal(t, StatusFailed, d.Status)
	assert.Equal(t, "image pull timed out", d.Error)
	assert.NotNil(t, d.FinishedAt)

	assert.ErrorIs(t, d.TransitionToFailed("again"), ErrInvalidTransition)
}

func TestSupersede(t *testing.T) {
	d := NewDeployment("proj-1", TriggerAPI)
	require.NoError(t, d.Supersede())
	assert.Equal(t, StatusSuperseded, d.Status)
	assert.True(t, d.Status.Terminal())

	running := NewDeployment("proj-1", TriggerAPI)
	require.NoError(t, running.Transition(StatusBuilding))
	assert.Error(t, running.Supersede())
}
