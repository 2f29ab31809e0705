package image

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamrulh4/auraops/internal/core/domain"
	"github.com/kamrulh4/auraops/internal/shell/docker"
)

// fakeDocker implements docker.Client for tests. Only the image operations
// carry behavior; everything else is a no-op.
type fakeDocker struct {
	pulled    []string
	existing  map[string]bool
	pullErr   error
	buildLog  string
	buildErr  error
	builtTags []string
}

func (f *fakeDocker) CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error) {
	return "", nil
}
func (f *fakeDocker) StartContainer(ctx context.Context, id string) error { return nil }
func (f *fakeDocker) StopContainer(ctx context.Context, id string, timeout *time.Duration) error {
	return nil
}
func (f *fakeDocker) RemoveContainer(ctx context.Context, id string, opts docker.RemoveOptions) error {
	return nil
}
func (f *fakeDocker) InspectContainer(ctx context.Context, id string) (*docker.ContainerInfo, error) {
	return nil, nil
}
func (f *fakeDocker) ListContainers(ctx context.Context, opts docker.ListOptions) ([]docker.ContainerInfo, error) {
	return nil, nil
}
func (f *fakeDocker) ContainerLogs(ctx context.Context, id string, opts docker.LogOptions) (io.ReadCloser, error) {
	return nil, nil
}
func (f *fakeDocker) CreateNetwork(ctx context.Context, spec docker.NetworkSpec) (string, error) {
	return "", nil
}
func (f *fakeDocker) RemoveNetwork(ctx context.Context, id string) error            { return nil }
func (f *fakeDocker) ConnectNetwork(ctx context.Context, n, c string) error         { return nil }
func (f *fakeDocker) DisconnectNetwork(ctx context.Context, n, c string, force bool) error {
	return nil
}
func (f *fakeDocker) CreateVolume(ctx context.Context, spec docker.VolumeSpec) (string, error) {
	return "", nil
}
func (f *fakeDocker) RemoveVolume(ctx context.Context, name string, force bool) error { return nil }

func (f *fakeDocker) PullImage(ctx context.Context, image string, opts docker.PullOptions) error {
	if f.pullErr != nil {
		return f.pullErr
	}
	f.pulled = append(f.pulled, image)
	return nil
}

func (f *fakeDocker) BuildImage(ctx context.Context, spec docker.BuildSpec) (string, error) {
	f.builtTags = append(f.builtTags, spec.Tag)
	return f.buildLog, f.buildErr
}

func (f *fakeDocker) ImageExists(ctx context.Context, image string) (bool, error) {
	return f.existing[image], nil
}

func (f *fakeDocker) RemoveImage(ctx context.Context, image string, force bool) error { return nil }
func (f *fakeDocker) Ping(ctx context.Context) error                                  { return nil }
func (f *fakeDocker) Close() error                                                    { return nil }

// =============================================================================
// Acquire
// =============================================================================

func TestAcquirePullsRegistryImage(t *testing.T) {
	fake := &fakeDocker{}
	p := NewProvider(fake, nil, t.TempDir())

	project := &domain.Project{
		ID:   "p1",
		Slug: "my-app",
		Source: domain.Source{
			Kind:  domain.SourceImage,
			Image: "nginx:alpine",
		},
	}

	result, err := p.Acquire(context.Background(), project)
	require.NoError(t, err)
	assert.Equal(t, "nginx:alpine", result.ImageRef)
	assert.Equal(t, []string{"nginx:alpine"}, fake.pulled)
}

func TestAcquireMissingImageIsNotRetryable(t *testing.T) {
	fake := &fakeDocker{
		pullErr: docker.NewDockerError("PullImage", "image", "ghost:latest", "image not found", docker.ErrImageNotFound),
	}
	p := NewProvider(fake, nil, t.TempDir())

	project := &domain.Project{
		ID:   "p1",
		Slug: "ghost",
		Source: domain.Source{
			Kind:  domain.SourceImage,
			Image: "ghost:latest",
		},
	}

	_, err := p.Acquire(context.Background(), project)
	assert.ErrorIs(t, err, ErrSourceInvalid)
	assert.False(t, Retryable(err))
}

func TestAcquireTransientPullIsRetryable(t *testing.T) {
	fake := &fakeDocker{
		pullErr: docker.NewDockerError("PullImage", "image", "nginx:alpine", "connection reset", docker.ErrImagePullFailed),
	}
	p := NewProvider(fake, nil, t.TempDir())

	project := &domain.Project{
		ID:   "p1",
		Slug: "my-app",
		Source: domain.Source{
			Kind:  domain.SourceImage,
			Image: "nginx:alpine",
		},
	}

	_, err := p.Acquire(context.Background(), project)
	assert.ErrorIs(t, err, ErrPullFailed)
	assert.True(t, Retryable(err))
}

func TestAcquireComposePullsAllServiceImages(t *testing.T) {
	fake := &fakeDocker{existing: map[string]bool{"redis:7-alpine": true}}
	p := NewProvider(fake, nil, t.TempDir())

	yaml := `
services:
  web:
    image: nginx:alpine
  cache:
    image: redis:7-alpine
`
	project := &domain.Project{
		ID:   "p1",
		Slug: "stack",
		Source: domain.Source{
			Kind:        domain.SourceCompose,
			ComposeYAML: yaml,
		},
	}

	result, err := p.Acquire(context.Background(), project)
	require.NoError(t, err)
	assert.Empty(t, result.ImageRef)
	// redis already exists locally, only nginx needs a pull
	assert.Equal(t, []string{"nginx:alpine"}, fake.pulled)
}

func TestAcquireComposeRejectsBuildOnlyServices(t *testing.T) {
	fake := &fakeDocker{}
	p := NewProvider(fake, nil, t.TempDir())

	yaml := `
services:
  web:
    build: .
`
	project := &domain.Project{
		ID:   "p1",
		Slug: "stack",
		Source: domain.Source{
			Kind:        domain.SourceCompose,
			ComposeYAML: yaml,
		},
	}

	_, err := p.Acquire(context.Background(), project)
	assert.ErrorIs(t, err, ErrSourceInvalid)
}

func TestAcquireInvalidSource(t *testing.T) {
	p := NewProvider(&fakeDocker{}, nil, t.TempDir())

	project := &domain.Project{
		ID:     "p1",
		Slug:   "broken",
		Source: domain.Source{Kind: domain.SourceImage},
	}

	_, err := p.Acquire(context.Background(), project)
	assert.ErrorIs(t, err, ErrSourceInvalid)
}

// =============================================================================
// Static Dockerfile Synthesis
// =============================================================================

func TestStaticDockerfileWithBuild(t *testing.T) {
	content := staticDockerfile(domain.Source{
		Kind:           domain.SourceStatic,
		RepoURL:        "https://example.com/site.git",
		InstallCommand: "npm ci",
		BuildCommand:   "npm run build",
		OutputDir:      "dist",
	})

	assert.Contains(t, content, "FROM node:20-alpine AS build")
	assert.Contains(t, content, "RUN npm ci")
	assert.Contains(t, content, "RUN npm run build")
	assert.Contains(t, content, "COPY --from=build /app/dist /usr/share/nginx/html")
}

func TestStaticDockerfilePrebuilt(t *testing.T) {
	content := staticDockerfile(domain.Source{
		Kind:      domain.SourceStatic,
		RepoURL:   "https://example.com/site.git",
		OutputDir: "public",
	})

	assert.NotContains(t, content, "AS build")
	assert.Contains(t, content, "COPY public /usr/share/nginx/html")
}
