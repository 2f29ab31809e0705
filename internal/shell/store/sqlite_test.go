package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamrulh4/auraops/internal/core/domain"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func testUser(t *testing.T, s *SQLiteStore, email string) *domain.User {
	t.Helper()

	user, err := domain.NewUser(email, "correct-horse", domain.RoleDeveloper)
	require.NoError(t, err)
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

func testProject(t *testing.T, s *SQLiteStore, name, ownerID string) *domain.Project {
	t.Helper()

	project, err := domain.NewProject(name, ownerID, domain.Source{
		Kind:  domain.SourceImage,
		Image: "nginx:alpine",
	}, 80)
	require.NoError(t, err)
	require.NoError(t, s.CreateProject(context.Background(), project))
	return project
}

// =============================================================================
// Users
// =============================================================================

func TestCreateAndGetUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := testUser(t, s, "dev@example.com")

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "dev@example.com", got.Email)
	assert.Equal(t, domain.RoleDeveloper, got.Role)
	assert.True(t, got.CheckPassword("correct-horse"))
	assert.Nil(t, got.LastLogin)
}

func TestGetUserByEmail(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := testUser(t, s, "dev@example.com")

	got, err := s.GetUserByEmail(ctx, "dev@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = s.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	testUser(t, s, "dev@example.com")

	dup, err := domain.NewUser("dev@example.com", "another-pass", domain.RoleViewer)
	require.NoError(t, err)
	err = s.CreateUser(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUpdateUserRecordsLogin(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := testUser(t, s, "dev@example.com")
	user.TouchLogin()
	require.NoError(t, s.UpdateUser(ctx, user))

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.WithinDuration(t, time.Now().UTC(), *got.LastLogin, 5*time.Second)
}

func TestCountUsers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	testUser(t, s, "a@example.com")
	testUser(t, s, "b@example.com")

	count, err = s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// =============================================================================
// Projects
// =============================================================================

func TestCreateAndGetProject(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "My App", got.Name)
	assert.Equal(t, "my-app", got.Slug)
	assert.Equal(t, owner.ID, got.OwnerID)
	assert.Equal(t, domain.SourceImage, got.Source.Kind)
	assert.Equal(t, "nginx:alpine", got.Source.Image)
	assert.Equal(t, domain.PhaseCreated, got.Phase)
	assert.Equal(t, project.WebhookToken, got.WebhookToken)
}

func TestGetProjectBySlug(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	got, err := s.GetProjectBySlug(ctx, "my-app")
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)
}

func TestGetProjectByWebhookToken(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	got, err := s.GetProjectByWebhookToken(ctx, project.WebhookToken)
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)

	_, err = s.GetProjectByWebhookToken(ctx, "bogus-token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateProjectDuplicateSlug(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	testProject(t, s, "My App", owner.ID)

	dup, err := domain.NewProject("My App", owner.ID, domain.Source{
		Kind:  domain.SourceImage,
		Image: "redis:7",
	}, 6379)
	require.NoError(t, err)
	err = s.CreateProject(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateSlug)
}

func TestCreateProjectUnknownOwner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	project, err := domain.NewProject("Orphan", "no-such-user", domain.Source{
		Kind:  domain.SourceImage,
		Image: "nginx:alpine",
	}, 80)
	require.NoError(t, err)
	err = s.CreateProject(ctx, project)
	assert.ErrorIs(t, err, ErrForeignKey)
}

func TestUpdateProjectPreservesWebhookToken(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)
	originalToken := project.WebhookToken

	require.NoError(t, project.SetPhase(domain.PhaseQueued))
	project.Env = map[string]string{"LOG_LEVEL": "debug"}
	require.NoError(t, s.UpdateProject(ctx, project))

	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseQueued, got.Phase)
	assert.Equal(t, "debug", got.Env["LOG_LEVEL"])
	assert.Equal(t, originalToken, got.WebhookToken)
}

func TestDeleteProjectCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	deployment := domain.NewDeployment(project.ID, domain.TriggerAPI)
	require.NoError(t, s.CreateDeployment(ctx, deployment))

	d, err := domain.NewDomain(project.ID, "app.example.com")
	require.NoError(t, err)
	require.NoError(t, s.CreateDomain(ctx, d))

	require.NoError(t, s.CreateCredential(ctx, domain.NewCredential(project.ID, "password", "s3cret")))

	require.NoError(t, s.DeleteProject(ctx, project.ID))

	_, err = s.GetDeployment(ctx, deployment.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetDomain(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	creds, err := s.ListCredentialsByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestListProjectsByOwner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	alice := testUser(t, s, "alice@example.com")
	bob := testUser(t, s, "bob@example.com")
	testProject(t, s, "Alice App", alice.ID)
	testProject(t, s, "Bob App", bob.ID)

	projects, err := s.ListProjectsByOwner(ctx, alice.ID, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Alice App", projects[0].Name)

	all, err := s.ListProjects(ctx, DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListProjectsByPhase(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	p1 := testProject(t, s, "App One", owner.ID)
	testProject(t, s, "App Two", owner.ID)

	require.NoError(t, p1.SetPhase(domain.PhaseQueued))
	require.NoError(t, s.UpdateProject(ctx, p1))

	queued, err := s.ListProjectsByPhase(ctx, domain.PhaseQueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, p1.ID, queued[0].ID)

	count, err := s.CountProjectsByPhase(ctx, domain.PhaseCreated)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// =============================================================================
// Deployments
// =============================================================================

func TestCreateAndUpdateDeployment(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	deployment := domain.NewDeployment(project.ID, domain.TriggerWebhook)
	require.NoError(t, s.CreateDeployment(ctx, deployment))

	require.NoError(t, deployment.Transition(domain.StatusBuilding))
	deployment.ImageRef = "auraops-my-app:latest"
	deployment.BuildLog = "step 1/3 ..."
	require.NoError(t, s.UpdateDeployment(ctx, deployment))

	got, err := s.GetDeployment(ctx, deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBuilding, got.Status)
	assert.Equal(t, domain.TriggerWebhook, got.Trigger)
	assert.Equal(t, "auraops-my-app:latest", got.ImageRef)
	assert.NotNil(t, got.StartedAt)
	assert.Nil(t, got.FinishedAt)
}

func TestGetLatestDeployment(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	first := domain.NewDeployment(project.ID, domain.TriggerAPI)
	first.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.CreateDeployment(ctx, first))

	second := domain.NewDeployment(project.ID, domain.TriggerAPI)
	require.NoError(t, s.CreateDeployment(ctx, second))

	got, err := s.GetLatestDeployment(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestListUnfinishedDeployments(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	queued := domain.NewDeployment(project.ID, domain.TriggerAPI)
	require.NoError(t, s.CreateDeployment(ctx, queued))

	failed := domain.NewDeployment(project.ID, domain.TriggerAPI)
	require.NoError(t, failed.TransitionToFailed("build broke"))
	require.NoError(t, s.CreateDeployment(ctx, failed))

	unfinished, err := s.ListUnfinishedDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 1)
	assert.Equal(t, queued.ID, unfinished[0].ID)
}

func TestListDeploymentsByProjectPagination(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	for i := 0; i < 5; i++ {
		d := domain.NewDeployment(project.ID, domain.TriggerAPI)
		d.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, s.CreateDeployment(ctx, d))
	}

	page, err := s.ListDeploymentsByProject(ctx, project.ID, ListOptions{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := s.ListDeploymentsByProject(ctx, project.ID, ListOptions{Limit: 10, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

// =============================================================================
// Domains
// =============================================================================

func TestCreateDomainDuplicateHostname(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	p1 := testProject(t, s, "App One", owner.ID)
	p2 := testProject(t, s, "App Two", owner.ID)

	d1, err := domain.NewDomain(p1.ID, "app.example.com")
	require.NoError(t, err)
	require.NoError(t, s.CreateDomain(ctx, d1))

	d2, err := domain.NewDomain(p2.ID, "app.example.com")
	require.NoError(t, err)
	err = s.CreateDomain(ctx, d2)
	assert.ErrorIs(t, err, ErrDuplicateHostname)
}

func TestUpdateDomainCertLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	d, err := domain.NewDomain(project.ID, "app.example.com")
	require.NoError(t, err)
	require.NoError(t, s.CreateDomain(ctx, d))

	require.NoError(t, d.SetCertState(domain.CertPending))
	require.NoError(t, d.SetCertState(domain.CertChallenge))
	require.NoError(t, d.SetCertState(domain.CertIssued))
	expires := time.Now().UTC().Add(90 * 24 * time.Hour)
	d.CertExpiresAt = &expires
	require.NoError(t, s.UpdateDomain(ctx, d))

	got, err := s.GetDomainByHostname(ctx, "app.example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.CertIssued, got.CertState)
	assert.True(t, got.SSLEnabled)
	require.NotNil(t, got.CertExpiresAt)
	assert.WithinDuration(t, expires, *got.CertExpiresAt, time.Second)
}

func TestListExpiringDomains(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	soon, err := domain.NewDomain(project.ID, "soon.example.com")
	require.NoError(t, err)
	require.NoError(t, soon.SetCertState(domain.CertPending))
	require.NoError(t, soon.SetCertState(domain.CertChallenge))
	require.NoError(t, soon.SetCertState(domain.CertIssued))
	soonExpiry := time.Now().UTC().Add(10 * 24 * time.Hour)
	soon.CertExpiresAt = &soonExpiry
	require.NoError(t, s.CreateDomain(ctx, soon))

	later, err := domain.NewDomain(project.ID, "later.example.com")
	require.NoError(t, err)
	require.NoError(t, later.SetCertState(domain.CertPending))
	require.NoError(t, later.SetCertState(domain.CertChallenge))
	require.NoError(t, later.SetCertState(domain.CertIssued))
	laterExpiry := time.Now().UTC().Add(80 * 24 * time.Hour)
	later.CertExpiresAt = &laterExpiry
	require.NoError(t, s.CreateDomain(ctx, later))

	expiring, err := s.ListExpiringDomains(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "soon.example.com", expiring[0].Hostname)
}

func TestListExpiringDomainsIncludesElapsedRetries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	ready, err := domain.NewDomain(project.ID, "ready.example.com")
	require.NoError(t, err)
	require.NoError(t, ready.SetCertState(domain.CertPending))
	require.NoError(t, ready.FailCert("challenge unreachable", -time.Minute))
	require.NoError(t, s.CreateDomain(ctx, ready))

	waiting, err := domain.NewDomain(project.ID, "waiting.example.com")
	require.NoError(t, err)
	require.NoError(t, waiting.SetCertState(domain.CertPending))
	require.NoError(t, waiting.FailCert("challenge unreachable", time.Hour))
	require.NoError(t, s.CreateDomain(ctx, waiting))

	expiring, err := s.ListExpiringDomains(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "ready.example.com", expiring[0].Hostname)
}

func TestDeleteDomain(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My App", owner.ID)

	d, err := domain.NewDomain(project.ID, "app.example.com")
	require.NoError(t, err)
	require.NoError(t, s.CreateDomain(ctx, d))

	require.NoError(t, s.DeleteDomain(ctx, d.ID))
	err = s.DeleteDomain(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Credentials
// =============================================================================

func TestCredentialRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")
	project := testProject(t, s, "My DB", owner.ID)

	require.NoError(t, s.CreateCredential(ctx, domain.NewCredential(project.ID, "username", "aura")))
	require.NoError(t, s.CreateCredential(ctx, domain.NewCredential(project.ID, "password", "s3cret")))

	creds, err := s.ListCredentialsByProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "password", creds[0].Key)
	assert.Equal(t, "username", creds[1].Key)

	err = s.CreateCredential(ctx, domain.NewCredential(project.ID, "password", "other"))
	assert.ErrorIs(t, err, ErrDuplicateID)

	require.NoError(t, s.DeleteCredentialsByProject(ctx, project.ID))
	creds, err = s.ListCredentialsByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, creds)
}

// =============================================================================
// Transactions
// =============================================================================

func TestWithTxCommit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")

	var projectID string
	err := s.WithTx(ctx, func(tx Store) error {
		project, err := domain.NewProject("Tx App", owner.ID, domain.Source{
			Kind:  domain.SourceImage,
			Image: "nginx:alpine",
		}, 80)
		if err != nil {
			return err
		}
		projectID = project.ID
		if err := tx.CreateProject(ctx, project); err != nil {
			return err
		}
		return tx.CreateCredential(ctx, domain.NewCredential(project.ID, "password", "s3cret"))
	})
	require.NoError(t, err)

	got, err := s.GetProject(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, "Tx App", got.Name)
}

func TestWithTxRollback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := testUser(t, s, "dev@example.com")

	var projectID string
	err := s.WithTx(ctx, func(tx Store) error {
		project, perr := domain.NewProject("Doomed App", owner.ID, domain.Source{
			Kind:  domain.SourceImage,
			Image: "nginx:alpine",
		}, 80)
		if perr != nil {
			return perr
		}
		projectID = project.ID
		if cerr := tx.CreateProject(ctx, project); cerr != nil {
			return cerr
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = s.GetProject(ctx, projectID)
	assert.ErrorIs(t, err, ErrNotFound)
}
