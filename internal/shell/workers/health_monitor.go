package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	coredeployment "github.com/kamrulh4/auraops/internal/core/deployment"
	"github.com/kamrulh4/auraops/internal/core/domain"
	"github.com/kamrulh4/auraops/internal/core/monitoring"
	"github.com/kamrulh4/auraops/internal/shell/docker"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// =============================================================================
// Container Health Monitor
// =============================================================================

// HealthMonitorConfig configures the health monitor worker.
type HealthMonitorConfig struct {
	// Interval is the time between health check cycles.
	// Default: 60 seconds.
	Interval time.Duration

	// MaxConcurrent is the maximum number of projects checked concurrently.
	// Default: 5.
	MaxConcurrent int
}

// DefaultHealthMonitorConfig returns the default configuration.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		Interval:      60 * time.Second,
		MaxConcurrent: 5,
	}
}

// HealthMonitor watches running projects and marks a project failed when
// none of its containers are still running, so the API reflects reality
// after a container crash loop gives up.
type HealthMonitor struct {
	store  store.Store
	docker docker.Client
	config HealthMonitorConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthMonitor creates a health monitor worker.
func NewHealthMonitor(s store.Store, dockerClient docker.Client, config HealthMonitorConfig, logger *slog.Logger) *HealthMonitor {
	if config.Interval == 0 {
		config.Interval = 60 * time.Second
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthMonitor{
		store:  s,
		docker: dockerClient,
		config: config,
		logger: logger.With("component", "health_monitor"),
	}
}

// Start begins the health monitor background goroutine.
func (h *HealthMonitor) Start() {
	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go h.run()

	h.logger.Info("health monitor started",
		"interval", h.config.Interval,
		"max_concurrent", h.config.MaxConcurrent,
	)
}

// Stop gracefully stops the worker.
func (h *HealthMonitor) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	h.logger.Info("health monitor stopped")
}

func (h *HealthMonitor) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.RunCycle()
		}
	}
}

// RunCycle executes one health check sweep across running projects.
func (h *HealthMonitor) RunCycle() {
	base := h.ctx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, h.config.Interval)
	defer cancel()

	projects, err := h.store.ListProjectsByPhase(ctx, domain.PhaseRunning)
	if err != nil {
		h.logger.Error("failed to list running projects", "error", err)
		return
	}

	if len(projects) == 0 {
		return
	}

	sem := make(chan struct{}, h.config.MaxConcurrent)
	var wg sync.WaitGroup

	for i := range projects {
		project := &projects[i]

		wg.Add(1)
		go func(p *domain.Project) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			h.checkProject(ctx, p)
		}(project)
	}

	wg.Wait()
}

// checkProject marks the project failed when every container of the project
// has stopped running. Partial outages are logged but left to the restart
// policy to recover.
func (h *HealthMonitor) checkProject(ctx context.Context, project *domain.Project) {
	logger := h.logger.With("project_id", project.ID, "slug", project.Slug)

	containers, err := h.docker.ListContainers(ctx, docker.ListOptions{
		All: true,
		Filters: map[string]string{
			"label": fmt.Sprintf("%s=%s", coredeployment.LabelProject, project.ID),
		},
	})
	if err != nil {
		logger.Error("failed to list project containers", "error", err)
		return
	}

	states := make([]monitoring.ContainerState, 0, len(containers))
	for _, c := range containers {
		states = append(states, monitoring.ContainerState{
			Running: c.Status == docker.ContainerStatusRunning,
			Health:  c.Health,
		})
	}

	switch monitoring.AggregateHealth(states) {
	case monitoring.StatusHealthy:
		return
	case monitoring.StatusDegraded:
		logger.Warn("project degraded, some containers not healthy")
		return
	}

	// Down, or no containers at all for a project that should be running.
	logger.Warn("no healthy containers for running project, marking failed")

	if err := project.SetPhase(domain.PhaseFailed); err != nil {
		logger.Error("failed to transition project", "error", err)
		return
	}
	if err := h.store.UpdateProject(ctx, project); err != nil {
		logger.Error("failed to update project", "error", err)
		return
	}

	// Close out the latest deployment if it is still marked running.
	latest, err := h.store.GetLatestDeployment(ctx, project.ID)
	if err != nil {
		return
	}
	if latest.Status == domain.StatusRunning {
		if err := latest.TransitionToFailed("containers stopped unexpectedly"); err == nil {
			if err := h.store.UpdateDeployment(ctx, latest); err != nil {
				logger.Error("failed to update deployment", "error", err)
			}
		}
	}
}
