package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProject(t *testing.T) {
	src := Source{Kind: SourceImage, Image: "nginx:1.27"}
	p, err := NewProject("My Blog", "user-1", src, 80)
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "my-blog", p.Slug)
	assert.Equal(t, PhaseCreated, p.Phase)
	assert.NotEmpty(t, p.WebhookToken)
	assert.Equal(t, 80, p.Port)
}

func TestNewProjectValidation(t *testing.T) {
	valid := Source{Kind: SourceImage, Image: "nginx:1.27"}

	_, err := NewProject("", "user-1", valid, 80)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = NewProject("ok", "user-1", valid, 0)
	assert.ErrorIs(t, err, ErrInvalidPort)

	_, err = NewProject("ok", "user-1", valid, 70000)
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestSourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		source  Source
		wantErr bool
	}{
		{"image ok", Source{Kind: SourceImage, Image: "redis:7"}, false},
		{"image missing ref", Source{Kind: SourceImage}, true},
		{"repository ok", Source{Kind: SourceRepository, RepoURL: "https://example.com/app.git"}, false},
		{"repository missing url", Source{Kind: SourceRepository}, true},
		{"static ok", Source{Kind: SourceStatic, RepoURL: "https://example.com/site.git", OutputDir: "dist"}, false},
		{"static missing output dir", Source{Kind: SourceStatic, RepoURL: "https://example.com/site.git"}, true},
		{"compose ok", Source{Kind: SourceCompose, ComposeYAML: "services: {}"}, false},
		{"compose missing yaml", Source{Kind: SourceCompose}, true},
		{"template ok", Source{Kind: SourceTemplate, TemplateSlug: "postgres"}, false},
		{"unknown kind", Source{Kind: "zip"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.source.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSource)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    ProjectPhase
		to      ProjectPhase
		wantErr bool
	}{
		{"created to queued", PhaseCreated, PhaseQueued, false},
		{"queued to building", PhaseQueued, PhaseBuilding, false},
		{"building to starting", PhaseBuilding, PhaseStarting, false},
		{"starting to running", PhaseStarting, PhaseRunning, false},
		{"running to queued redeploys", PhaseRunning, PhaseQueued, false},
		{"running to stopped", PhaseRunning, PhaseStopped, false},
		{"failed to queued retries", PhaseFailed, PhaseQueued, false},
		{"stopped to queued restarts", PhaseStopped, PhaseQueued, false},
		{"queued falls back to running", PhaseQueued, PhaseRunning, false},
		{"building falls back to running", PhaseBuilding, PhaseRunning, false},
		{"starting falls back to stopped", PhaseStarting, PhaseStopped, false},
		{"created straight to running", PhaseCreated, PhaseRunning, true},
		{"stopped to running", PhaseStopped, PhaseRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePhaseTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPhase)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWebhookTokenStableAcrossPhases(t *testing.T) {
	src := Source{Kind: SourceImage, Image: "nginx:1.27"}
	p, err := NewProject("app", "user-1", src, 8080)
	require.NoError(t, err)

	token := p.WebhookToken
	require.NoError(t, p.SetPhase(PhaseQueued))
	require.NoError(t, p.SetPhase(PhaseBuilding))
	require.NoError(t, p.SetPhase(PhaseFailed))
	assert.Equal(t, token, p.WebhookToken)
}

func TestGenerateWebhookToken(t *testing.T) {
	a := GenerateWebhookToken()
	b := GenerateWebhookToken()
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 32)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
}

func TestSetPhaseRecordsDeployTime(t *testing.T) {
	src := Source{Kind: SourceImage, Image: "nginx:1.27"}
	p, err := NewProject("app", "user-1", src, 8080)
	require.NoError(t, err)

	require.NoError(t, p.SetPhase(PhaseQueued))
	require.NoError(t, p.SetPhase(PhaseBuilding))
	require.NoError(t, p.SetPhase(PhaseStarting))
	require.Nil(t, p.LastDeployedAt)

	require.NoError(t, p.SetPhase(PhaseRunning))
	assert.NotNil(t, p.LastDeployedAt)
}

func TestRestorePhaseKeepsDeployTime(t *testing.T) {
	src := Source{Kind: SourceImage, Image: "nginx:1.27"}
	p, err := NewProject("app", "user-1", src, 8080)
	require.NoError(t, err)

	require.NoError(t, p.SetPhase(PhaseQueued))
	require.NoError(t, p.SetPhase(PhaseBuilding))
	require.NoError(t, p.SetPhase(PhaseStarting))
	require.NoError(t, p.SetPhase(PhaseRunning))
	deployed := p.LastDeployedAt

	// A redeploy that dies in the build rolls the phase back without
	// pretending a new deploy landed.
	require.NoError(t, p.SetPhase(PhaseQueued))
	require.NoError(t, p.SetPhase(PhaseBuilding))
	require.NoError(t, p.RestorePhase(PhaseRunning))

	assert.Equal(t, PhaseRunning, p.Phase)
	assert.Equal(t, deployed, p.LastDeployedAt)
}
