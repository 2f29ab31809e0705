package image

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docker/docker/pkg/archive"

	"github.com/kamrulh4/auraops/internal/core/compose"
	coredeployment "github.com/kamrulh4/auraops/internal/core/deployment"
	"github.com/kamrulh4/auraops/internal/core/domain"
	"github.com/kamrulh4/auraops/internal/shell/docker"
)

// =============================================================================
// Image Provider
// =============================================================================

// Result describes an acquired image.
type Result struct {
	ImageRef string // empty for compose projects, which pull per service
	Digest   string // commit hash for built images, empty for pulls
	BuildLog string
}

// Provider acquires images for every source kind.
type Provider struct {
	docker  docker.Client
	logger  *slog.Logger
	workDir string // scratch space for clones and build contexts
}

// NewProvider creates an image provider. workDir holds temporary build
// directories and must be writable.
func NewProvider(dockerClient docker.Client, logger *slog.Logger, workDir string) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Provider{
		docker:  dockerClient,
		logger:  logger,
		workDir: workDir,
	}
}

// Acquire makes the project's image available to the local daemon.
// Registry sources are pulled; repository and static sources are cloned and
// built; compose sources have each service image pulled up front.
func (p *Provider) Acquire(ctx context.Context, project *domain.Project) (*Result, error) {
	if err := project.Source.Validate(); err != nil {
		return nil, NewAcquireError("Acquire", "", err.Error(), "", ErrSourceInvalid)
	}

	switch project.Source.Kind {
	case domain.SourceImage, domain.SourceTemplate:
		return p.pull(ctx, project.Source.Image)
	case domain.SourceRepository:
		return p.buildRepository(ctx, project)
	case domain.SourceStatic:
		return p.buildStatic(ctx, project)
	case domain.SourceCompose:
		return p.pullComposeImages(ctx, project)
	default:
		return nil, NewAcquireError("Acquire", "", "unknown source kind", "", ErrSourceInvalid)
	}
}

// =============================================================================
// Registry Pull
// =============================================================================

func (p *Provider) pull(ctx context.Context, imageRef string) (*Result, error) {
	p.logger.Info("pulling image", "image", imageRef)

	if err := p.docker.PullImage(ctx, imageRef, docker.PullOptions{}); err != nil {
		if errors.Is(err, docker.ErrImageNotFound) {
			return nil, NewAcquireError("pull", imageRef, "image not found in registry", "", ErrSourceInvalid)
		}
		return nil, NewAcquireError("pull", imageRef, err.Error(), "", ErrPullFailed)
	}

	return &Result{ImageRef: imageRef}, nil
}

// pullComposeImages pulls every service image named in a compose source.
// Missing images fail the whole acquisition so the deploy fails before any
// container is created.
func (p *Provider) pullComposeImages(ctx context.Context, project *domain.Project) (*Result, error) {
	spec, err := compose.ParseComposeSpec(project.Source.ComposeYAML)
	if err != nil {
		return nil, NewAcquireError("pullComposeImages", "", err.Error(), "", ErrSourceInvalid)
	}

	for _, svc := range spec.Services {
		if svc.Image == "" {
			return nil, NewAcquireError("pullComposeImages", svc.Name, "compose services must name an image", "", ErrSourceInvalid)
		}
		exists, _ := p.docker.ImageExists(ctx, svc.Image)
		if exists {
			continue
		}
		if _, err := p.pull(ctx, svc.Image); err != nil {
			return nil, err
		}
	}

	return &Result{}, nil
}

// =============================================================================
// Repository Builds
// =============================================================================

func (p *Provider) buildRepository(ctx context.Context, project *domain.Project) (*Result, error) {
	src := project.Source

	dir, commit, err := p.cloneRepo(ctx, src.RepoURL, src.Branch)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	dockerfile := src.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	if _, statErr := os.Stat(filepath.Join(dir, dockerfile)); statErr != nil {
		return nil, NewAcquireError("buildRepository", src.RepoURL, "dockerfile not found: "+dockerfile, "", ErrSourceInvalid)
	}

	tag := coredeployment.ImageTag(project.Slug)
	buildLog, err := p.buildContext(ctx, dir, dockerfile, tag)
	if err != nil {
		return nil, NewAcquireError("buildRepository", src.RepoURL, err.Error(), buildLog, ErrBuildFailed)
	}

	p.logger.Info("built image from repository",
		"project_id", project.ID,
		"image", tag,
		"commit", commit,
	)

	return &Result{ImageRef: tag, Digest: commit, BuildLog: buildLog}, nil
}

func (p *Provider) buildStatic(ctx context.Context, project *domain.Project) (*Result, error) {
	src := project.Source

	dir, commit, err := p.cloneRepo(ctx, src.RepoURL, src.Branch)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	// The synthesized Dockerfile gets a distinct name so it never clobbers
	// a Dockerfile committed in the repository.
	dockerfile := "Dockerfile.static"
	content := staticDockerfile(src)
	if err := os.WriteFile(filepath.Join(dir, dockerfile), []byte(content), 0644); err != nil {
		return nil, NewAcquireError("buildStatic", src.RepoURL, err.Error(), "", ErrBuildFailed)
	}

	tag := coredeployment.ImageTag(project.Slug)
	buildLog, err := p.buildContext(ctx, dir, dockerfile, tag)
	if err != nil {
		return nil, NewAcquireError("buildStatic", src.RepoURL, err.Error(), buildLog, ErrBuildFailed)
	}

	p.logger.Info("built static site image",
		"project_id", project.ID,
		"image", tag,
		"commit", commit,
	)

	return &Result{ImageRef: tag, Digest: commit, BuildLog: buildLog}, nil
}

// buildContext tars a build directory and runs the Docker build.
func (p *Provider) buildContext(ctx context.Context, dir, dockerfile, tag string) (string, error) {
	contextTar, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return "", err
	}
	defer contextTar.Close()

	return p.docker.BuildImage(ctx, docker.BuildSpec{
		Tag:        tag,
		ContextTar: contextTar,
		Dockerfile: dockerfile,
	})
}
