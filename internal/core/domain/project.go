package domain

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Project Errors
// =============================================================================

var (
	ErrInvalidName       = errors.New("project name must be 1-63 characters")
	ErrInvalidSource     = errors.New("project source is invalid")
	ErrInvalidPort       = errors.New("container port must be between 1 and 65535")
	ErrInvalidPhase      = errors.New("invalid phase transition")
	ErrWildcardHostname  = errors.New("wildcard hostnames cannot receive certificates")
	ErrInvalidHostname   = errors.New("invalid hostname")
)

// =============================================================================
// Source Kinds
// =============================================================================

// SourceKind describes where a project's runnable image comes from.
type SourceKind string

const (
	// SourceImage runs a prebuilt image from a registry.
	SourceImage SourceKind = "image"
	// SourceRepository builds an image from a git repository's Dockerfile.
	SourceRepository SourceKind = "repository"
	// SourceStatic builds a git repository into a static-file image.
	SourceStatic SourceKind = "static"
	// SourceCompose runs a multi-service compose specification.
	SourceCompose SourceKind = "compose"
	// SourceTemplate runs a managed service expanded from the catalog.
	SourceTemplate SourceKind = "template"
)

// Source is the tagged union of the ways a project can be built or pulled.
// Only the fields for the active Kind are meaningful.
type Source struct {
	Kind SourceKind `json:"kind"`

	// SourceImage / SourceTemplate
	Image string `json:"image,omitempty"`

	// SourceRepository / SourceStatic
	RepoURL    string `json:"repo_url,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Dockerfile string `json:"dockerfile,omitempty"`

	// SourceStatic
	InstallCommand string `json:"install_command,omitempty"`
	BuildCommand   string `json:"build_command,omitempty"`
	OutputDir      string `json:"output_dir,omitempty"`

	// SourceCompose
	ComposeYAML string `json:"compose_yaml,omitempty"`

	// SourceTemplate
	TemplateSlug string `json:"template_slug,omitempty"`
}

// Validate checks that the source carries the fields its kind requires.
func (s Source) Validate() error {
	switch s.Kind {
	case SourceImage:
		if s.Image == "" {
			return fmt.Errorf("%w: image reference required", ErrInvalidSource)
		}
	case SourceRepository, SourceStatic:
		if s.RepoURL == "" {
			return fmt.Errorf("%w: repository url required", ErrInvalidSource)
		}
		if s.Kind == SourceStatic && s.OutputDir == "" {
			return fmt.Errorf("%w: output directory required for static builds", ErrInvalidSource)
		}
	case SourceCompose:
		if s.ComposeYAML == "" {
			return fmt.Errorf("%w: compose yaml required", ErrInvalidSource)
		}
	case SourceTemplate:
		if s.TemplateSlug == "" {
			return fmt.Errorf("%w: template slug required", ErrInvalidSource)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSource, s.Kind)
	}
	return nil
}

// =============================================================================
// Project Phase
// =============================================================================

// ProjectPhase is the coarse lifecycle state of a project.
type ProjectPhase string

const (
	PhaseCreated  ProjectPhase = "created"
	PhaseQueued   ProjectPhase = "queued"
	PhaseBuilding ProjectPhase = "building"
	PhaseStarting ProjectPhase = "starting"
	PhaseRunning  ProjectPhase = "running"
	PhaseStopped  ProjectPhase = "stopped"
	PhaseFailed   ProjectPhase = "failed"
)

// validPhaseTransitions defines the allowed phase transitions. The deploy
// phases can fall back to running or stopped: a deploy that fails before
// touching the previous containers restores the phase it started from.
var validPhaseTransitions = map[ProjectPhase][]ProjectPhase{
	PhaseCreated:  {PhaseQueued},
	PhaseQueued:   {PhaseBuilding, PhaseRunning, PhaseStopped, PhaseFailed},
	PhaseBuilding: {PhaseStarting, PhaseRunning, PhaseStopped, PhaseFailed},
	PhaseStarting: {PhaseRunning, PhaseStopped, PhaseFailed},
	PhaseRunning:  {PhaseQueued, PhaseStopped, PhaseFailed},
	PhaseStopped:  {PhaseQueued},
	PhaseFailed:   {PhaseQueued, PhaseStopped},
}

// ValidatePhaseTransition checks whether a phase change is allowed.
func ValidatePhaseTransition(from, to ProjectPhase) error {
	allowed, exists := validPhaseTransitions[from]
	if !exists {
		return ErrInvalidPhase
	}
	for _, p := range allowed {
		if p == to {
			return nil
		}
	}
	return ErrInvalidPhase
}

// =============================================================================
// Project
// =============================================================================

// Project is a deployable application owned by a user.
type Project struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Slug           string            `json:"slug"`
	OwnerID        string            `json:"owner_id"`
	Source         Source            `json:"source"`
	Port           int               `json:"port"`
	Env            map[string]string `json:"env,omitempty"`
	WebhookToken   string            `json:"-"`
	Phase          ProjectPhase      `json:"phase"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	LastDeployedAt *time.Time        `json:"last_deployed_at,omitempty"`
}

// NewProject creates a project in the created phase with a fresh webhook
// token. The token never changes for the life of the project.
func NewProject(name, ownerID string, source Source, port int) (*Project, error) {
	if len(name) == 0 || len(name) > 63 {
		return nil, ErrInvalidName
	}
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if port < 1 || port > 65535 {
		return nil, ErrInvalidPort
	}

	now := time.Now().UTC()
	return &Project{
		ID:           uuid.New().String(),
		Name:         name,
		Slug:         Slugify(name),
		OwnerID:      ownerID,
		Source:       source,
		Port:         port,
		WebhookToken: GenerateWebhookToken(),
		Phase:        PhaseCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// SetPhase transitions the project, validating the edge.
func (p *Project) SetPhase(to ProjectPhase) error {
	if err := ValidatePhaseTransition(p.Phase, to); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, p.Phase, to)
	}
	p.Phase = to
	p.UpdatedAt = time.Now().UTC()
	if to == PhaseRunning {
		now := time.Now().UTC()
		p.LastDeployedAt = &now
	}
	return nil
}

// RestorePhase puts the project back in the phase a failed deploy started
// from. Unlike SetPhase it never stamps LastDeployedAt: the containers of the
// previous successful deploy are still the ones running.
func (p *Project) RestorePhase(to ProjectPhase) error {
	if err := ValidatePhaseTransition(p.Phase, to); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, p.Phase, to)
	}
	p.Phase = to
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// =============================================================================
// Webhook Tokens
// =============================================================================

// GenerateWebhookToken returns a URL-safe random token for webhook deploys.
func GenerateWebhookToken() string {
	buf := make([]byte, 24)
	rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
