package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamrulh4/auraops/internal/core/domain"
	corenginx "github.com/kamrulh4/auraops/internal/core/nginx"
	"github.com/kamrulh4/auraops/internal/shell/docker"
	"github.com/kamrulh4/auraops/internal/shell/image"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeDocker struct {
	mu         sync.Mutex
	nextID     int
	containers map[string]*docker.ContainerInfo
	started    []string
	removed    []string
	networks   map[string]bool
	volumes    map[string]bool
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{
		containers: make(map[string]*docker.ContainerInfo),
		networks:   make(map[string]bool),
		volumes:    make(map[string]bool),
	}
}

func (f *fakeDocker) CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("ctr-%d", f.nextID)
	f.containers[id] = &docker.ContainerInfo{
		ID:     id,
		Name:   spec.Name,
		Image:  spec.Image,
		Status: docker.ContainerStatusCreated,
		Labels: spec.Labels,
	}
	return id, nil
}

func (f *fakeDocker) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		c.Status = docker.ContainerStatusRunning
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeDocker) StopContainer(ctx context.Context, id string, timeout *time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		c.Status = docker.ContainerStatusExited
		return nil
	}
	return docker.ErrContainerNotFound
}

func (f *fakeDocker) RemoveContainer(ctx context.Context, id string, opts docker.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeDocker) InspectContainer(ctx context.Context, id string) (*docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		info := *c
		return &info, nil
	}
	return nil, docker.ErrContainerNotFound
}

func (f *fakeDocker) ListContainers(ctx context.Context, opts docker.ListOptions) ([]docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []docker.ContainerInfo
	for _, c := range f.containers {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeDocker) ContainerLogs(ctx context.Context, id string, opts docker.LogOptions) (io.ReadCloser, error) {
	return nil, docker.ErrContainerNotFound
}

func (f *fakeDocker) CreateNetwork(ctx context.Context, spec docker.NetworkSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.networks[spec.Name] {
		return "", docker.ErrNetworkAlreadyExists
	}
	f.networks[spec.Name] = true
	return spec.Name, nil
}

func (f *fakeDocker) RemoveNetwork(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.networks[id] {
		return docker.ErrNetworkNotFound
	}
	delete(f.networks, id)
	return nil
}

func (f *fakeDocker) ConnectNetwork(ctx context.Context, n, c string) error         { return nil }
func (f *fakeDocker) DisconnectNetwork(ctx context.Context, n, c string, force bool) error {
	return nil
}

func (f *fakeDocker) CreateVolume(ctx context.Context, spec docker.VolumeSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[spec.Name] = true
	return spec.Name, nil
}

func (f *fakeDocker) RemoveVolume(ctx context.Context, name string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.volumes[name] {
		return docker.ErrVolumeNotFound
	}
	delete(f.volumes, name)
	return nil
}

func (f *fakeDocker) startedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeDocker) containerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers)
}

func (f *fakeDocker) PullImage(ctx context.Context, img string, opts docker.PullOptions) error {
	return nil
}
func (f *fakeDocker) BuildImage(ctx context.Context, spec docker.BuildSpec) (string, error) {
	return "", nil
}
func (f *fakeDocker) ImageExists(ctx context.Context, img string) (bool, error) { return true, nil }
func (f *fakeDocker) RemoveImage(ctx context.Context, img string, force bool) error {
	return nil
}
func (f *fakeDocker) Ping(ctx context.Context) error { return nil }
func (f *fakeDocker) Close() error                   { return nil }

// fakeImages resolves images instantly, optionally blocking on a gate so
// tests can hold a deployment in flight.
type fakeImages struct {
	mu    sync.Mutex
	calls int
	err   error
	gate  chan struct{}
}

func (f *fakeImages) Acquire(ctx context.Context, project *domain.Project) (*image.Result, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &image.Result{ImageRef: project.Source.Image}, nil
}

func (f *fakeImages) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeImages) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeProxy struct {
	mu      sync.Mutex
	applied [][]corenginx.Route
}

func (f *fakeProxy) Apply(ctx context.Context, routes []corenginx.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, routes)
	return nil
}

func (f *fakeProxy) last() []corenginx.Route {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.applied) == 0 {
		return nil
	}
	return f.applied[len(f.applied)-1]
}

// =============================================================================
// Helpers
// =============================================================================

func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createProject(t *testing.T, s store.Store, source domain.Source, port int) *domain.Project {
	t.Helper()
	ctx := context.Background()

	user, err := domain.NewUser("dev@example.com", "correct-horse", domain.RoleDeveloper)
	require.NoError(t, err)
	if createErr := s.CreateUser(ctx, user); createErr != nil {
		existing, getErr := s.GetUserByEmail(ctx, "dev@example.com")
		require.NoError(t, getErr)
		user = existing
	}

	project, err := domain.NewProject(fmt.Sprintf("App %d", time.Now().UnixNano()), user.ID, source, port)
	require.NoError(t, err)
	require.NoError(t, s.CreateProject(ctx, project))
	return project
}

func imageSource() domain.Source {
	return domain.Source{Kind: domain.SourceImage, Image: "nginx:alpine"}
}

func newTestOrchestrator(s store.Store) (*Orchestrator, *fakeDocker, *fakeImages, *fakeProxy) {
	dockerFake := newFakeDocker()
	images := &fakeImages{}
	proxy := &fakeProxy{}
	o := New(s, dockerFake, images, proxy, Config{
		MaxConcurrent: 2,
		HealthTimeout: 5 * time.Second,
		StopTimeout:   time.Second,
		RetryBase:     time.Millisecond,
	}, nil)
	return o, dockerFake, images, proxy
}

func waitForStatus(t *testing.T, s store.Store, deploymentID string, want domain.DeploymentStatus) *domain.Deployment {
	t.Helper()
	var got *domain.Deployment
	require.Eventually(t, func() bool {
		d, err := s.GetDeployment(context.Background(), deploymentID)
		if err != nil {
			return false
		}
		got = d
		return d.Status == want
	}, 5*time.Second, 10*time.Millisecond, "deployment never reached %s", want)
	return got
}

// =============================================================================
// Deploy Tests
// =============================================================================

func TestDeployImageProject(t *testing.T) {
	s := setupTestStore(t)
	o, dockerFake, _, proxy := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	project := createProject(t, s, imageSource(), 80)

	deployment, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, deployment.Status)

	got := waitForStatus(t, s, deployment.ID, domain.StatusRunning)
	assert.Equal(t, "nginx:alpine", got.ImageRef)
	assert.NotNil(t, got.StartedAt)

	updated, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseRunning, updated.Phase)
	assert.NotNil(t, updated.LastDeployedAt)

	assert.Equal(t, 1, dockerFake.startedCount())

	// Route publishing happens just after the status flip.
	require.Eventually(t, func() bool {
		return len(proxy.last()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	routes := proxy.last()
	assert.Equal(t, project.ID, routes[0].ProjectID)
	assert.Equal(t, 80, routes[0].Port)
}

func TestDeployFailsOnInvalidSource(t *testing.T) {
	s := setupTestStore(t)
	o, _, images, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	images.err = image.NewAcquireError("Acquire", "ghcr.io/missing", "image not found", "", image.ErrSourceInvalid)

	project := createProject(t, s, imageSource(), 80)
	deployment, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)

	got := waitForStatus(t, s, deployment.ID, domain.StatusFailed)
	assert.Contains(t, got.Error, "image not found")
	assert.Equal(t, 1, images.callCount(), "deterministic failures must not retry")

	updated, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFailed, updated.Phase)
}

func TestFailedBuildKeepsPreviousDeploymentRunning(t *testing.T) {
	s := setupTestStore(t)
	o, dockerFake, images, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	project := createProject(t, s, imageSource(), 80)
	first, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	waitForStatus(t, s, first.ID, domain.StatusRunning)

	// The second deploy dies in the build, before the running container is
	// touched.
	images.setErr(image.NewAcquireError("buildRepository", "git.example.com/app", "compile error", "step 3 failed", image.ErrBuildFailed))

	running, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	second, err := o.RequestDeploy(ctx, running, domain.TriggerAPI)
	require.NoError(t, err)
	waitForStatus(t, s, second.ID, domain.StatusFailed)

	updated, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseRunning, updated.Phase, "failed build must not take down a serving project")
	assert.Equal(t, 1, dockerFake.containerCount(), "previous container keeps running")
	assert.Equal(t, 1, dockerFake.startedCount())
}

func TestFailedBuildRestoresStoppedPhase(t *testing.T) {
	s := setupTestStore(t)
	o, _, images, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	project := createProject(t, s, imageSource(), 80)
	first, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	waitForStatus(t, s, first.ID, domain.StatusRunning)

	stopped, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.NoError(t, o.Stop(ctx, stopped))

	images.setErr(image.NewAcquireError("Acquire", "ghcr.io/missing", "image not found", "", image.ErrSourceInvalid))

	second, err := o.RequestDeploy(ctx, stopped, domain.TriggerAPI)
	require.NoError(t, err)
	waitForStatus(t, s, second.ID, domain.StatusFailed)

	updated, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseStopped, updated.Phase)
}

func TestDeployRetriesTransientFailures(t *testing.T) {
	s := setupTestStore(t)
	o, _, images, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	images.err = image.NewAcquireError("Acquire", "nginx:alpine", "registry timeout", "", image.ErrPullFailed)

	project := createProject(t, s, imageSource(), 80)
	deployment, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)

	waitForStatus(t, s, deployment.ID, domain.StatusFailed)
	assert.Equal(t, 3, images.callCount())
}

func TestDeploySupersedesPending(t *testing.T) {
	s := setupTestStore(t)
	o, _, images, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	gate := make(chan struct{})
	images.gate = gate

	project := createProject(t, s, imageSource(), 80)

	first, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	// Wait until the first deployment is actually in flight.
	require.Eventually(t, func() bool {
		return images.callCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	second, err := o.RequestDeploy(ctx, project, domain.TriggerWebhook)
	require.NoError(t, err)
	third, err := o.RequestDeploy(ctx, project, domain.TriggerWebhook)
	require.NoError(t, err)

	close(gate)

	waitForStatus(t, s, third.ID, domain.StatusRunning)

	gotSecond, err := s.GetDeployment(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuperseded, gotSecond.Status)

	gotFirst, err := s.GetDeployment(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, gotFirst.Status, "replaced deployment is closed out")
}

func TestCancelPendingDeployment(t *testing.T) {
	s := setupTestStore(t)
	o, _, images, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	gate := make(chan struct{})
	images.gate = gate

	project := createProject(t, s, imageSource(), 80)

	first, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return images.callCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	second, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)

	cancelled, err := o.Cancel(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	close(gate)
	waitForStatus(t, s, first.ID, domain.StatusRunning)

	gotSecond, err := s.GetDeployment(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, gotSecond.Status)
	assert.Contains(t, gotSecond.Error, "cancelled")
}

func TestCancelInflightDeployment(t *testing.T) {
	s := setupTestStore(t)
	o, _, images, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	gate := make(chan struct{})
	images.gate = gate

	project := createProject(t, s, imageSource(), 80)

	deployment, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return images.callCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancelled, err := o.Cancel(ctx, deployment.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	got := waitForStatus(t, s, deployment.ID, domain.StatusFailed)
	assert.NotEmpty(t, got.Error)
}

func TestCancelFinishedDeploymentReturnsFalse(t *testing.T) {
	s := setupTestStore(t)
	o, _, _, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	project := createProject(t, s, imageSource(), 80)

	deployment, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	waitForStatus(t, s, deployment.ID, domain.StatusRunning)

	// Let the queue drain before cancelling so the deployment is gone
	// from the orchestrator's bookkeeping.
	require.Eventually(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return len(o.queues) == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancelled, err := o.Cancel(ctx, deployment.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestRequestDeployAfterShutdown(t *testing.T) {
	s := setupTestStore(t)
	o, _, _, _ := newTestOrchestrator(s)
	ctx := context.Background()

	project := createProject(t, s, imageSource(), 80)
	o.Shutdown()

	_, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	assert.ErrorIs(t, err, ErrShuttingDown)

	// The rejected request must not leave a queued row behind.
	unfinished, err := s.ListUnfinishedDeployments(ctx)
	require.NoError(t, err)
	assert.Empty(t, unfinished)
}

func TestDeployComposeProject(t *testing.T) {
	s := setupTestStore(t)
	o, dockerFake, _, proxy := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	yaml := `
services:
  web:
    image: nginx:alpine
    ports:
      - "8080:80"
    depends_on:
      - db
  db:
    image: postgres:16-alpine
volumes:
  pgdata:
`
	project := createProject(t, s, domain.Source{Kind: domain.SourceCompose, ComposeYAML: yaml}, 80)

	deployment, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	waitForStatus(t, s, deployment.ID, domain.StatusRunning)

	assert.Equal(t, 2, dockerFake.startedCount())

	require.Eventually(t, func() bool {
		return len(proxy.last()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, proxy.last()[0].Upstream, "_web", "routed service exposes the project port")
}

// =============================================================================
// Stop and Recovery Tests
// =============================================================================

func TestStopProject(t *testing.T) {
	s := setupTestStore(t)
	o, dockerFake, _, proxy := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	project := createProject(t, s, imageSource(), 80)
	deployment, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	waitForStatus(t, s, deployment.ID, domain.StatusRunning)

	running, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.NoError(t, o.Stop(ctx, running))

	assert.Equal(t, domain.PhaseStopped, running.Phase)

	got, err := s.GetDeployment(ctx, deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, got.Status)

	dockerFake.mu.Lock()
	for _, c := range dockerFake.containers {
		assert.Equal(t, docker.ContainerStatusExited, c.Status)
	}
	dockerFake.mu.Unlock()
	assert.Empty(t, proxy.last(), "stopped project leaves the routing snapshot")
}

func TestRemoveProjectResources(t *testing.T) {
	s := setupTestStore(t)
	o, dockerFake, _, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	project := createProject(t, s, imageSource(), 80)
	deployment, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	waitForStatus(t, s, deployment.ID, domain.StatusRunning)

	removed, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.NoError(t, o.Remove(ctx, removed))

	assert.Zero(t, dockerFake.containerCount())
}

func TestRecoverySweep(t *testing.T) {
	s := setupTestStore(t)
	o, _, _, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	project := createProject(t, s, imageSource(), 80)
	require.NoError(t, project.SetPhase(domain.PhaseQueued))
	require.NoError(t, project.SetPhase(domain.PhaseBuilding))
	require.NoError(t, s.UpdateProject(ctx, project))

	deployment := domain.NewDeployment(project.ID, domain.TriggerAPI)
	require.NoError(t, deployment.Transition(domain.StatusBuilding))
	require.NoError(t, s.CreateDeployment(ctx, deployment))

	require.NoError(t, o.RecoverySweep(ctx))

	got, err := s.GetDeployment(ctx, deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "interrupted by restart")

	recovered, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFailed, recovered.Phase)
}

// =============================================================================
// Route Tests
// =============================================================================

func TestBuildRoutesIncludesIssuedCertificates(t *testing.T) {
	s := setupTestStore(t)
	o, _, _, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	project := createProject(t, s, imageSource(), 80)
	deployment, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	waitForStatus(t, s, deployment.ID, domain.StatusRunning)

	d, err := domain.NewDomain(project.ID, "app.example.com")
	require.NoError(t, err)
	require.NoError(t, d.SetCertState(domain.CertPending))
	require.NoError(t, d.SetCertState(domain.CertChallenge))
	require.NoError(t, d.SetCertState(domain.CertIssued))
	require.NoError(t, s.CreateDomain(ctx, d))

	routes, err := o.BuildRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	require.Len(t, routes[0].Domains, 1)
	assert.Equal(t, "app.example.com", routes[0].Domains[0].Hostname)
	assert.True(t, routes[0].Domains[0].TLS)
}

func TestBuildRoutesKeepsTLSAfterFailedRenewal(t *testing.T) {
	s := setupTestStore(t)
	o, _, _, _ := newTestOrchestrator(s)
	defer o.Shutdown()
	ctx := context.Background()

	project := createProject(t, s, imageSource(), 80)
	deployment, err := o.RequestDeploy(ctx, project, domain.TriggerAPI)
	require.NoError(t, err)
	waitForStatus(t, s, deployment.ID, domain.StatusRunning)

	d, err := domain.NewDomain(project.ID, "app.example.com")
	require.NoError(t, err)
	require.NoError(t, d.SetCertState(domain.CertPending))
	require.NoError(t, d.SetCertState(domain.CertChallenge))
	require.NoError(t, d.SetCertState(domain.CertIssued))
	expiry := time.Now().UTC().Add(20 * 24 * time.Hour)
	d.CertExpiresAt = &expiry

	// A failed renewal leaves the installed certificate serving.
	require.NoError(t, d.SetCertState(domain.CertRenewing))
	require.NoError(t, d.FailCert("acme: rate limited", time.Hour))
	require.NoError(t, s.CreateDomain(ctx, d))

	routes, err := o.BuildRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	require.Len(t, routes[0].Domains, 1)
	assert.True(t, routes[0].Domains[0].TLS, "hostname must not fall back to plain HTTP while the certificate is still valid")
}
