// Package orchestrator serializes and executes deployments. Each project has
// at most one deployment in flight and at most one pending; newer requests
// supersede the waiting one.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kamrulh4/auraops/internal/core/domain"
	corenginx "github.com/kamrulh4/auraops/internal/core/nginx"
	"github.com/kamrulh4/auraops/internal/shell/docker"
	"github.com/kamrulh4/auraops/internal/shell/image"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// =============================================================================
// Orchestrator
// =============================================================================

var (
	// ErrShuttingDown is returned for deploy requests during shutdown.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// RoutePublisher applies a routing snapshot to the reverse proxy.
type RoutePublisher interface {
	Apply(ctx context.Context, routes []corenginx.Route) error
}

// ImageProvider acquires a project's image.
type ImageProvider interface {
	Acquire(ctx context.Context, project *domain.Project) (*image.Result, error)
}

// Config configures the orchestrator.
type Config struct {
	// MaxConcurrent caps deployments running at once across projects.
	// Default: 3.
	MaxConcurrent int

	// HealthTimeout bounds the wait for containers to become healthy.
	// Default: 2 minutes.
	HealthTimeout time.Duration

	// StopTimeout is the grace period for container stops.
	// Default: 10 seconds.
	StopTimeout time.Duration

	// RetryBase is the base delay between image acquisition retries.
	// Default: 5 seconds.
	RetryBase time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 3,
		HealthTimeout: 2 * time.Minute,
		StopTimeout:   10 * time.Second,
		RetryBase:     5 * time.Second,
	}
}

// projectQueue tracks the in-flight and pending deployment for one project.
type projectQueue struct {
	inflight   bool
	inflightID string
	cancelRun  context.CancelFunc
	pending    *domain.Deployment
}

// Orchestrator executes deployments against the local Docker daemon.
type Orchestrator struct {
	store  store.Store
	docker docker.Client
	images ImageProvider
	proxy  RoutePublisher
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	queues map[string]*projectQueue
	closed bool

	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator.
func New(s store.Store, dockerClient docker.Client, images ImageProvider, proxy RoutePublisher, config Config, logger *slog.Logger) *Orchestrator {
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 3
	}
	if config.HealthTimeout == 0 {
		config.HealthTimeout = 2 * time.Minute
	}
	if config.StopTimeout == 0 {
		config.StopTimeout = 10 * time.Second
	}
	if config.RetryBase == 0 {
		config.RetryBase = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		store:  s,
		docker: dockerClient,
		images: images,
		proxy:  proxy,
		config: config,
		logger: logger.With("component", "orchestrator"),
		queues: make(map[string]*projectQueue),
		sem:    make(chan struct{}, config.MaxConcurrent),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Shutdown stops accepting deploys and waits for in-flight work.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// =============================================================================
// Deploy Requests
// =============================================================================

// RequestDeploy records a queued deployment and schedules it. When the
// project already has work in flight the new deployment waits as the single
// pending slot, superseding whatever waited there before.
func (o *Orchestrator) RequestDeploy(ctx context.Context, project *domain.Project, trigger domain.Trigger) (*domain.Deployment, error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return nil, ErrShuttingDown
	}

	deployment := domain.NewDeployment(project.ID, trigger)
	if err := o.store.CreateDeployment(ctx, deployment); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		// Shutdown raced the insert; close out the row so it does not sit
		// queued forever.
		o.failInterrupted(deployment)
		return nil, ErrShuttingDown
	}

	q, ok := o.queues[project.ID]
	if !ok {
		q = &projectQueue{}
		o.queues[project.ID] = q
	}

	if q.inflight {
		// The pending deployment keeps its queued row in the store while the
		// in-flight one runs: queued means accepted, not yet started. It
		// leaves queued when its turn comes, or via supersede or cancel.
		superseded := q.pending
		q.pending = deployment
		o.mu.Unlock()

		if superseded != nil {
			if err := superseded.Supersede(); err == nil {
				if updateErr := o.store.UpdateDeployment(ctx, superseded); updateErr != nil {
					o.logger.Error("failed to mark deployment superseded",
						"deployment_id", superseded.ID, "error", updateErr)
				}
			}
			o.logger.Info("pending deployment superseded",
				"project_id", project.ID,
				"superseded_id", superseded.ID,
				"deployment_id", deployment.ID,
			)
		}
		return deployment, nil
	}

	q.inflight = true
	o.mu.Unlock()

	o.wg.Add(1)
	go o.runProject(project.ID, deployment)

	return deployment, nil
}

// Cancel stops a deployment best-effort. A deployment waiting in the pending
// slot is failed before it ever starts; an in-flight one is signalled and
// stops at its next checkpoint. Returns false when the deployment is not
// queued or in flight anymore.
func (o *Orchestrator) Cancel(ctx context.Context, deploymentID string) (bool, error) {
	o.mu.Lock()
	for _, q := range o.queues {
		if q.pending != nil && q.pending.ID == deploymentID {
			pending := q.pending
			q.pending = nil
			o.mu.Unlock()

			if err := pending.TransitionToFailed("cancelled before start"); err != nil {
				return false, nil
			}
			if err := o.store.UpdateDeployment(ctx, pending); err != nil {
				return true, err
			}
			o.logger.Info("pending deployment cancelled", "deployment_id", deploymentID)
			return true, nil
		}
		if q.inflightID == deploymentID {
			cancelRun := q.cancelRun
			o.mu.Unlock()

			if cancelRun != nil {
				cancelRun()
			}
			o.logger.Info("in-flight deployment cancelled", "deployment_id", deploymentID)
			return true, nil
		}
	}
	o.mu.Unlock()
	return false, nil
}

// runProject executes deployments for one project until its queue drains.
func (o *Orchestrator) runProject(projectID string, deployment *domain.Deployment) {
	defer o.wg.Done()

	for deployment != nil {
		select {
		case <-o.ctx.Done():
			o.failInterrupted(deployment)
			o.drainQueue(projectID)
			return
		case o.sem <- struct{}{}:
		}

		runCtx, cancelRun := context.WithCancel(o.ctx)
		o.mu.Lock()
		q := o.queues[projectID]
		q.inflightID = deployment.ID
		q.cancelRun = cancelRun
		o.mu.Unlock()

		o.execute(runCtx, deployment)
		cancelRun()
		<-o.sem

		o.mu.Lock()
		q.inflightID = ""
		q.cancelRun = nil
		deployment = q.pending
		q.pending = nil
		if deployment == nil {
			q.inflight = false
			delete(o.queues, projectID)
		}
		o.mu.Unlock()
	}
}

// drainQueue marks any pending deployment superseded during shutdown.
func (o *Orchestrator) drainQueue(projectID string) {
	o.mu.Lock()
	q := o.queues[projectID]
	pending := q.pending
	q.pending = nil
	q.inflight = false
	delete(o.queues, projectID)
	o.mu.Unlock()

	if pending != nil {
		o.failInterrupted(pending)
	}
}

// failInterrupted closes out a deployment cut short by shutdown.
func (o *Orchestrator) failInterrupted(deployment *domain.Deployment) {
	if deployment.Status.Terminal() {
		return
	}
	if err := deployment.TransitionToFailed("interrupted by shutdown"); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.UpdateDeployment(ctx, deployment); err != nil {
		o.logger.Error("failed to record interrupted deployment",
			"deployment_id", deployment.ID, "error", err)
	}
}
