package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kamrulh4/auraops/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Types
// =============================================================================

type userRow struct {
	ID           string  `db:"id"`
	Email        string  `db:"email"`
	PasswordHash string  `db:"password_hash"`
	Role         string  `db:"role"`
	CreatedAt    string  `db:"created_at"`
	LastLogin    *string `db:"last_login"`
}

type projectRow struct {
	ID             string  `db:"id"`
	Name           string  `db:"name"`
	Slug           string  `db:"slug"`
	OwnerID        string  `db:"owner_id"`
	Source         string  `db:"source"`
	Port           int     `db:"port"`
	Env            string  `db:"env"`
	WebhookToken   string  `db:"webhook_token"`
	Phase          string  `db:"phase"`
	CreatedAt      string  `db:"created_at"`
	UpdatedAt      string  `db:"updated_at"`
	LastDeployedAt *string `db:"last_deployed_at"`
}

type deploymentRow struct {
	ID           string  `db:"id"`
	ProjectID    string  `db:"project_id"`
	Status       string  `db:"status"`
	TriggeredBy  string  `db:"triggered_by"`
	ImageRef     string  `db:"image_ref"`
	ImageDigest  string  `db:"image_digest"`
	ErrorMessage string  `db:"error_message"`
	BuildLog     string  `db:"build_log"`
	CreatedAt    string  `db:"created_at"`
	StartedAt    *string `db:"started_at"`
	FinishedAt   *string `db:"finished_at"`
}

type domainRow struct {
	ID            string  `db:"id"`
	ProjectID     string  `db:"project_id"`
	Hostname      string  `db:"hostname"`
	Wildcard      bool    `db:"wildcard"`
	SSLEnabled    bool    `db:"ssl_enabled"`
	CertState     string  `db:"cert_state"`
	CertExpiresAt *string `db:"cert_expires_at"`
	LastError     string  `db:"last_error"`
	RetryAfter    *string `db:"retry_after"`
	CreatedAt     string  `db:"created_at"`
}

type credentialRow struct {
	ID        string `db:"id"`
	ProjectID string `db:"project_id"`
	CredKey   string `db:"cred_key"`
	CredValue string `db:"cred_value"`
	CreatedAt string `db:"created_at"`
}

// =============================================================================
// Time Helpers
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t := parseTime(*s)
	return &t
}

// =============================================================================
// Store Method Wiring
// =============================================================================

func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	return createUser(ctx, s.db, user)
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getUser(ctx, s.db, id)
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return getUserByEmail(ctx, s.db, email)
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, user *domain.User) error {
	return updateUser(ctx, s.db, user)
}

func (s *SQLiteStore) ListUsers(ctx context.Context, opts ListOptions) ([]domain.User, error) {
	return listUsers(ctx, s.db, opts)
}

func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	return countUsers(ctx, s.db)
}

func (s *SQLiteStore) CreateProject(ctx context.Context, project *domain.Project) error {
	return createProject(ctx, s.db, project)
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	return getProject(ctx, s.db, id)
}

func (s *SQLiteStore) GetProjectBySlug(ctx context.Context, slug string) (*domain.Project, error) {
	return getProjectBySlug(ctx, s.db, slug)
}

func (s *SQLiteStore) GetProjectByWebhookToken(ctx context.Context, token string) (*domain.Project, error) {
	return getProjectByWebhookToken(ctx, s.db, token)
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, project *domain.Project) error {
	return updateProject(ctx, s.db, project)
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	return deleteProject(ctx, s.db, id)
}

func (s *SQLiteStore) ListProjects(ctx context.Context, opts ListOptions) ([]domain.Project, error) {
	return listProjects(ctx, s.db, opts)
}

func (s *SQLiteStore) ListProjectsByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]domain.Project, error) {
	return listProjectsByOwner(ctx, s.db, ownerID, opts)
}

func (s *SQLiteStore) ListProjectsByPhase(ctx context.Context, phase domain.ProjectPhase) ([]domain.Project, error) {
	return listProjectsByPhase(ctx, s.db, phase)
}

func (s *SQLiteStore) CountProjectsByPhase(ctx context.Context, phase domain.ProjectPhase) (int, error) {
	return countProjectsByPhase(ctx, s.db, phase)
}

func (s *SQLiteStore) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return createDeployment(ctx, s.db, deployment)
}

func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*domain.Deployment, error) {
	return getDeployment(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return updateDeployment(ctx, s.db, deployment)
}

func (s *SQLiteStore) ListDeploymentsByProject(ctx context.Context, projectID string, opts ListOptions) ([]domain.Deployment, error) {
	return listDeploymentsByProject(ctx, s.db, projectID, opts)
}

func (s *SQLiteStore) GetLatestDeployment(ctx context.Context, projectID string) (*domain.Deployment, error) {
	return getLatestDeployment(ctx, s.db, projectID)
}

func (s *SQLiteStore) ListUnfinishedDeployments(ctx context.Context) ([]domain.Deployment, error) {
	return listUnfinishedDeployments(ctx, s.db)
}

func (s *SQLiteStore) CountDeployments(ctx context.Context) (int, error) {
	return countDeployments(ctx, s.db)
}

func (s *SQLiteStore) CreateDomain(ctx context.Context, d *domain.Domain) error {
	return createDomain(ctx, s.db, d)
}

func (s *SQLiteStore) GetDomain(ctx context.Context, id string) (*domain.Domain, error) {
	return getDomain(ctx, s.db, id)
}

func (s *SQLiteStore) GetDomainByHostname(ctx context.Context, hostname string) (*domain.Domain, error) {
	return getDomainByHostname(ctx, s.db, hostname)
}

func (s *SQLiteStore) UpdateDomain(ctx context.Context, d *domain.Domain) error {
	return updateDomain(ctx, s.db, d)
}

func (s *SQLiteStore) DeleteDomain(ctx context.Context, id string) error {
	return deleteDomain(ctx, s.db, id)
}

func (s *SQLiteStore) ListDomainsByProject(ctx context.Context, projectID string) ([]domain.Domain, error) {
	return listDomainsByProject(ctx, s.db, projectID)
}

func (s *SQLiteStore) ListDomains(ctx context.Context, opts ListOptions) ([]domain.Domain, error) {
	return listDomains(ctx, s.db, opts)
}

func (s *SQLiteStore) ListExpiringDomains(ctx context.Context, within time.Duration) ([]domain.Domain, error) {
	return listExpiringDomains(ctx, s.db, within)
}

func (s *SQLiteStore) CreateCredential(ctx context.Context, cred *domain.Credential) error {
	return createCredential(ctx, s.db, cred)
}

func (s *SQLiteStore) ListCredentialsByProject(ctx context.Context, projectID string) ([]domain.Credential, error) {
	return listCredentialsByProject(ctx, s.db, projectID)
}

func (s *SQLiteStore) DeleteCredentialsByProject(ctx context.Context, projectID string) error {
	return deleteCredentialsByProject(ctx, s.db, projectID)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	return createUser(ctx, s.tx, user)
}

func (s *txSQLiteStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getUser(ctx, s.tx, id)
}

func (s *txSQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return getUserByEmail(ctx, s.tx, email)
}

func (s *txSQLiteStore) UpdateUser(ctx context.Context, user *domain.User) error {
	return updateUser(ctx, s.tx, user)
}

func (s *txSQLiteStore) ListUsers(ctx context.Context, opts ListOptions) ([]domain.User, error) {
	return listUsers(ctx, s.tx, opts)
}

func (s *txSQLiteStore) CountUsers(ctx context.Context) (int, error) {
	return countUsers(ctx, s.tx)
}

func (s *txSQLiteStore) CreateProject(ctx context.Context, project *domain.Project) error {
	return createProject(ctx, s.tx, project)
}

func (s *txSQLiteStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	return getProject(ctx, s.tx, id)
}

func (s *txSQLiteStore) GetProjectBySlug(ctx context.Context, slug string) (*domain.Project, error) {
	return getProjectBySlug(ctx, s.tx, slug)
}

func (s *txSQLiteStore) GetProjectByWebhookToken(ctx context.Context, token string) (*domain.Project, error) {
	return getProjectByWebhookToken(ctx, s.tx, token)
}

func (s *txSQLiteStore) UpdateProject(ctx context.Context, project *domain.Project) error {
	return updateProject(ctx, s.tx, project)
}

func (s *txSQLiteStore) DeleteProject(ctx context.Context, id string) error {
	return deleteProject(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListProjects(ctx context.Context, opts ListOptions) ([]domain.Project, error) {
	return listProjects(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ListProjectsByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]domain.Project, error) {
	return listProjectsByOwner(ctx, s.tx, ownerID, opts)
}

func (s *txSQLiteStore) ListProjectsByPhase(ctx context.Context, phase domain.ProjectPhase) ([]domain.Project, error) {
	return listProjectsByPhase(ctx, s.tx, phase)
}

func (s *txSQLiteStore) CountProjectsByPhase(ctx context.Context, phase domain.ProjectPhase) (int, error) {
	return countProjectsByPhase(ctx, s.tx, phase)
}

func (s *txSQLiteStore) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return createDeployment(ctx, s.tx, deployment)
}

func (s *txSQLiteStore) GetDeployment(ctx context.Context, id string) (*domain.Deployment, error) {
	return getDeployment(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return updateDeployment(ctx, s.tx, deployment)
}

func (s *txSQLiteStore) ListDeploymentsByProject(ctx context.Context, projectID string, opts ListOptions) ([]domain.Deployment, error) {
	return listDeploymentsByProject(ctx, s.tx, projectID, opts)
}

func (s *txSQLiteStore) GetLatestDeployment(ctx context.Context, projectID string) (*domain.Deployment, error) {
	return getLatestDeployment(ctx, s.tx, projectID)
}

func (s *txSQLiteStore) ListUnfinishedDeployments(ctx context.Context) ([]domain.Deployment, error) {
	return listUnfinishedDeployments(ctx, s.tx)
}

func (s *txSQLiteStore) CountDeployments(ctx context.Context) (int, error) {
	return countDeployments(ctx, s.tx)
}

func (s *txSQLiteStore) CreateDomain(ctx context.Context, d *domain.Domain) error {
	return createDomain(ctx, s.tx, d)
}

func (s *txSQLiteStore) GetDomain(ctx context.Context, id string) (*domain.Domain, error) {
	return getDomain(ctx, s.tx, id)
}

func (s *txSQLiteStore) GetDomainByHostname(ctx context.Context, hostname string) (*domain.Domain, error) {
	return getDomainByHostname(ctx, s.tx, hostname)
}

func (s *txSQLiteStore) UpdateDomain(ctx context.Context, d *domain.Domain) error {
	return updateDomain(ctx, s.tx, d)
}

func (s *txSQLiteStore) DeleteDomain(ctx context.Context, id string) error {
	return deleteDomain(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListDomainsByProject(ctx context.Context, projectID string) ([]domain.Domain, error) {
	return listDomainsByProject(ctx, s.tx, projectID)
}

func (s *txSQLiteStore) ListDomains(ctx context.Context, opts ListOptions) ([]domain.Domain, error) {
	return listDomains(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ListExpiringDomains(ctx context.Context, within time.Duration) ([]domain.Domain, error) {
	return listExpiringDomains(ctx, s.tx, within)
}

func (s *txSQLiteStore) CreateCredential(ctx context.Context, cred *domain.Credential) error {
	return createCredential(ctx, s.tx, cred)
}

func (s *txSQLiteStore) ListCredentialsByProject(ctx context.Context, projectID string) ([]domain.Credential, error) {
	return listCredentialsByProject(ctx, s.tx, projectID)
}

func (s *txSQLiteStore) DeleteCredentialsByProject(ctx context.Context, projectID string) error {
	return deleteCredentialsByProject(ctx, s.tx, projectID)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// User Implementation
// =============================================================================

func createUser(ctx context.Context, exec executor, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, role, created_at, last_login)
		VALUES (:id, :email, :password_hash, :role, :created_at, :last_login)`

	row := map[string]any{
		"id":            user.ID,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"role":          string(user.Role),
		"created_at":    formatTime(user.CreatedAt),
		"last_login":    formatTimePtr(user.LastLogin),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return NewStoreError("CreateUser", "user", user.ID, "email already registered", ErrDuplicateEmail)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.id") {
			return NewStoreError("CreateUser", "user", user.ID, "user with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateUser", "user", user.ID, err.Error(), err)
	}
	return nil
}

func getUser(ctx context.Context, exec executor, id string) (*domain.User, error) {
	var row userRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM users WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetUser", "user", id, "user not found", ErrNotFound)
		}
		return nil, NewStoreError("GetUser", "user", id, err.Error(), err)
	}
	return rowToUser(&row), nil
}

func getUserByEmail(ctx context.Context, exec executor, email string) (*domain.User, error) {
	var row userRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM users WHERE email = ?`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetUserByEmail", "user", email, "user not found", ErrNotFound)
		}
		return nil, NewStoreError("GetUserByEmail", "user", email, err.Error(), err)
	}
	return rowToUser(&row), nil
}

func updateUser(ctx context.Context, exec executor, user *domain.User) error {
	query := `
		UPDATE users SET
			email = :email,
			password_hash = :password_hash,
			role = :role,
			last_login = :last_login
		WHERE id = :id`

	row := map[string]any{
		"id":            user.ID,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"role":          string(user.Role),
		"last_login":    formatTimePtr(user.LastLogin),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateUser", "user", user.ID, err.Error(), err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateUser", "user", user.ID, "user not found", ErrNotFound)
	}
	return nil
}

func listUsers(ctx context.Context, exec executor, opts ListOptions) ([]domain.User, error) {
	opts = opts.Normalize()

	var rows []userRow
	err := exec.SelectContext(ctx, &rows, `SELECT * FROM users ORDER BY created_at ASC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListUsers", "user", "", err.Error(), err)
	}

	users := make([]domain.User, 0, len(rows))
	for i := range rows {
		users = append(users, *rowToUser(&rows[i]))
	}
	return users, nil
}

func countUsers(ctx context.Context, exec executor) (int, error) {
	var count int
	err := exec.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`)
	if err != nil {
		return 0, NewStoreError("CountUsers", "user", "", err.Error(), err)
	}
	return count, nil
}

func rowToUser(row *userRow) *domain.User {
	return &domain.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         domain.Role(row.Role),
		CreatedAt:    parseTime(row.CreatedAt),
		LastLogin:    parseTimePtr(row.LastLogin),
	}
}

// =============================================================================
// Project Implementation
// =============================================================================

func createProject(ctx context.Context, exec executor, project *domain.Project) error {
	sourceJSON, err := json.Marshal(project.Source)
	if err != nil {
		return NewStoreError("CreateProject", "project", project.ID, "failed to serialize source", ErrInvalidData)
	}
	envJSON, err := json.Marshal(project.Env)
	if err != nil {
		return NewStoreError("CreateProject", "project", project.ID, "failed to serialize env", ErrInvalidData)
	}

	query := `
		INSERT INTO projects (
			id, name, slug, owner_id, source, port, env, webhook_token,
			phase, created_at, updated_at, last_deployed_at
		) VALUES (
			:id, :name, :slug, :owner_id, :source, :port, :env, :webhook_token,
			:phase, :created_at, :updated_at, :last_deployed_at
		)`

	row := map[string]any{
		"id":               project.ID,
		"name":             project.Name,
		"slug":             project.Slug,
		"owner_id":         project.OwnerID,
		"source":           string(sourceJSON),
		"port":             project.Port,
		"env":              string(envJSON),
		"webhook_token":    project.WebhookToken,
		"phase":            string(project.Phase),
		"created_at":       formatTime(project.CreatedAt),
		"updated_at":       formatTime(project.UpdatedAt),
		"last_deployed_at": formatTimePtr(project.LastDeployedAt),
	}

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: projects.slug") {
			return NewStoreError("CreateProject", "project", project.ID, "project with this slug already exists", ErrDuplicateSlug)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: projects.id") {
			return NewStoreError("CreateProject", "project", project.ID, "project with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateProject", "project", project.ID, "owner not found", ErrForeignKey)
		}
		return NewStoreError("CreateProject", "project", project.ID, err.Error(), err)
	}
	return nil
}

func getProject(ctx context.Context, exec executor, id string) (*domain.Project, error) {
	var row projectRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM projects WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetProject", "project", id, "project not found", ErrNotFound)
		}
		return nil, NewStoreError("GetProject", "project", id, err.Error(), err)
	}
	return rowToProject(&row)
}

func getProjectBySlug(ctx context.Context, exec executor, slug string) (*domain.Project, error) {
	var row projectRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM projects WHERE slug = ?`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetProjectBySlug", "project", slug, "project not found", ErrNotFound)
		}
		return nil, NewStoreError("GetProjectBySlug", "project", slug, err.Error(), err)
	}
	return rowToProject(&row)
}

func getProjectByWebhookToken(ctx context.Context, exec executor, token string) (*domain.Project, error) {
	var row projectRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM projects WHERE webhook_token = ?`, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Do not echo the token in the error.
			return nil, NewStoreError("GetProjectByWebhookToken", "project", "", "project not found", ErrNotFound)
		}
		return nil, NewStoreError("GetProjectByWebhookToken", "project", "", err.Error(), err)
	}
	return rowToProject(&row)
}

func updateProject(ctx context.Context, exec executor, project *domain.Project) error {
	sourceJSON, err := json.Marshal(project.Source)
	if err != nil {
		return NewStoreError("UpdateProject", "project", project.ID, "failed to serialize source", ErrInvalidData)
	}
	envJSON, err := json.Marshal(project.Env)
	if err != nil {
		return NewStoreError("UpdateProject", "project", project.ID, "failed to serialize env", ErrInvalidData)
	}

	// webhook_token is intentionally absent: it never changes.
	query := `
		UPDATE projects SET
			name = :name,
			slug = :slug,
			source = :source,
			port = :port,
			env = :env,
			phase = :phase,
			updated_at = :updated_at,
			last_deployed_at = :last_deployed_at
		WHERE id = :id`

	row := map[string]any{
		"id":               project.ID,
		"name":             project.Name,
		"slug":             project.Slug,
		"source":           string(sourceJSON),
		"port":             project.Port,
		"env":              string(envJSON),
		"phase":            string(project.Phase),
		"updated_at":       formatTime(project.UpdatedAt),
		"last_deployed_at": formatTimePtr(project.LastDeployedAt),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: projects.slug") {
			return NewStoreError("UpdateProject", "project", project.ID, "project with this slug already exists", ErrDuplicateSlug)
		}
		return NewStoreError("UpdateProject", "project", project.ID, err.Error(), err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateProject", "project", project.ID, "project not found", ErrNotFound)
	}
	return nil
}

func deleteProject(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteProject", "project", id, err.Error(), err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteProject", "project", id, "project not found", ErrNotFound)
	}
	return nil
}

func listProjects(ctx context.Context, exec executor, opts ListOptions) ([]domain.Project, error) {
	opts = opts.Normalize()

	var rows []projectRow
	err := exec.SelectContext(ctx, &rows, `SELECT * FROM projects ORDER BY created_at DESC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListProjects", "project", "", err.Error(), err)
	}
	return rowsToProjects(rows)
}

func listProjectsByOwner(ctx context.Context, exec executor, ownerID string, opts ListOptions) ([]domain.Project, error) {
	opts = opts.Normalize()

	var rows []projectRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM projects WHERE owner_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		ownerID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListProjectsByOwner", "project", ownerID, err.Error(), err)
	}
	return rowsToProjects(rows)
}

func listProjectsByPhase(ctx context.Context, exec executor, phase domain.ProjectPhase) ([]domain.Project, error) {
	var rows []projectRow
	err := exec.SelectContext(ctx, &rows, `SELECT * FROM projects WHERE phase = ? ORDER BY created_at ASC`, string(phase))
	if err != nil {
		return nil, NewStoreError("ListProjectsByPhase", "project", "", err.Error(), err)
	}
	return rowsToProjects(rows)
}

func countProjectsByPhase(ctx context.Context, exec executor, phase domain.ProjectPhase) (int, error) {
	var count int
	err := exec.GetContext(ctx, &count, `SELECT COUNT(*) FROM projects WHERE phase = ?`, string(phase))
	if err != nil {
		return 0, NewStoreError("CountProjectsByPhase", "project", "", err.Error(), err)
	}
	return count, nil
}

func rowsToProjects(rows []projectRow) ([]domain.Project, error) {
	projects := make([]domain.Project, 0, len(rows))
	for i := range rows {
		p, err := rowToProject(&rows[i])
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, nil
}

func rowToProject(row *projectRow) (*domain.Project, error) {
	var source domain.Source
	if err := json.Unmarshal([]byte(row.Source), &source); err != nil {
		return nil, NewStoreError("rowToProject", "project", row.ID, "failed to deserialize source", ErrInvalidData)
	}
	var env map[string]string
	if err := json.Unmarshal([]byte(row.Env), &env); err != nil {
		return nil, NewStoreError("rowToProject", "project", row.ID, "failed to deserialize env", ErrInvalidData)
	}

	return &domain.Project{
		ID:             row.ID,
		Name:           row.Name,
		Slug:           row.Slug,
		OwnerID:        row.OwnerID,
		Source:         source,
		Port:           row.Port,
		Env:            env,
		WebhookToken:   row.WebhookToken,
		Phase:          domain.ProjectPhase(row.Phase),
		CreatedAt:      parseTime(row.CreatedAt),
		UpdatedAt:      parseTime(row.UpdatedAt),
		LastDeployedAt: parseTimePtr(row.LastDeployedAt),
	}, nil
}

// =============================================================================
// Deployment Implementation
// =============================================================================

func createDeployment(ctx context.Context, exec executor, deployment *domain.Deployment) error {
	query := `
		INSERT INTO deployments (
			id, project_id, status, triggered_by, image_ref, image_digest,
			error_message, build_log, created_at, started_at, finished_at
		) VALUES (
			:id, :project_id, :status, :triggered_by, :image_ref, :image_digest,
			:error_message, :build_log, :created_at, :started_at, :finished_at
		)`

	row := map[string]any{
		"id":            deployment.ID,
		"project_id":    deployment.ProjectID,
		"status":        string(deployment.Status),
		"triggered_by":  string(deployment.Trigger),
		"image_ref":     deployment.ImageRef,
		"image_digest":  deployment.ImageDigest,
		"error_message": deployment.Error,
		"build_log":     deployment.BuildLog,
		"created_at":    formatTime(deployment.CreatedAt),
		"started_at":    formatTimePtr(deployment.StartedAt),
		"finished_at":   formatTimePtr(deployment.FinishedAt),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: deployments.id") {
			return NewStoreError("CreateDeployment", "deployment", deployment.ID, "deployment with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateDeployment", "deployment", deployment.ID, "project not found", ErrForeignKey)
		}
		return NewStoreError("CreateDeployment", "deployment", deployment.ID, err.Error(), err)
	}
	return nil
}

func getDeployment(ctx context.Context, exec executor, id string) (*domain.Deployment, error) {
	var row deploymentRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM deployments WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDeployment", "deployment", id, "deployment not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDeployment", "deployment", id, err.Error(), err)
	}
	return rowToDeployment(&row), nil
}

func updateDeployment(ctx context.Context, exec executor, deployment *domain.Deployment) error {
	query := `
		UPDATE deployments SET
			status = :status,
			image_ref = :image_ref,
			image_digest = :image_digest,
			error_message = :error_message,
			build_log = :build_log,
			started_at = :started_at,
			finished_at = :finished_at
		WHERE id = :id`

	row := map[string]any{
		"id":            deployment.ID,
		"status":        string(deployment.Status),
		"image_ref":     deployment.ImageRef,
		"image_digest":  deployment.ImageDigest,
		"error_message": deployment.Error,
		"build_log":     deployment.BuildLog,
		"started_at":    formatTimePtr(deployment.StartedAt),
		"finished_at":   formatTimePtr(deployment.FinishedAt),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateDeployment", "deployment", deployment.ID, err.Error(), err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateDeployment", "deployment", deployment.ID, "deployment not found", ErrNotFound)
	}
	return nil
}

func listDeploymentsByProject(ctx context.Context, exec executor, projectID string, opts ListOptions) ([]domain.Deployment, error) {
	opts = opts.Normalize()

	var rows []deploymentRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM deployments WHERE project_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		projectID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListDeploymentsByProject", "deployment", projectID, err.Error(), err)
	}

	deployments := make([]domain.Deployment, 0, len(rows))
	for i := range rows {
		deployments = append(deployments, *rowToDeployment(&rows[i]))
	}
	return deployments, nil
}

func getLatestDeployment(ctx context.Context, exec executor, projectID string) (*domain.Deployment, error) {
	var row deploymentRow
	err := exec.GetContext(ctx, &row,
		`SELECT * FROM deployments WHERE project_id = ? ORDER BY created_at DESC LIMIT 1`, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetLatestDeployment", "deployment", projectID, "deployment not found", ErrNotFound)
		}
		return nil, NewStoreError("GetLatestDeployment", "deployment", projectID, err.Error(), err)
	}
	return rowToDeployment(&row), nil
}

func listUnfinishedDeployments(ctx context.Context, exec executor) ([]domain.Deployment, error) {
	var rows []deploymentRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM deployments WHERE status IN (?, ?, ?) ORDER BY created_at ASC`,
		string(domain.StatusQueued), string(domain.StatusBuilding), string(domain.StatusStarting))
	if err != nil {
		return nil, NewStoreError("ListUnfinishedDeployments", "deployment", "", err.Error(), err)
	}

	deployments := make([]domain.Deployment, 0, len(rows))
	for i := range rows {
		deployments = append(deployments, *rowToDeployment(&rows[i]))
	}
	return deployments, nil
}

func countDeployments(ctx context.Context, exec executor) (int, error) {
	var count int
	err := exec.GetContext(ctx, &count, `SELECT COUNT(*) FROM deployments`)
	if err != nil {
		return 0, NewStoreError("CountDeployments", "deployment", "", err.Error(), err)
	}
	return count, nil
}

func rowToDeployment(row *deploymentRow) *domain.Deployment {
	return &domain.Deployment{
		ID:          row.ID,
		ProjectID:   row.ProjectID,
		Status:      domain.DeploymentStatus(row.Status),
		Trigger:     domain.Trigger(row.TriggeredBy),
		ImageRef:    row.ImageRef,
		ImageDigest: row.ImageDigest,
		Error:       row.ErrorMessage,
		BuildLog:    row.BuildLog,
		CreatedAt:   parseTime(row.CreatedAt),
		StartedAt:   parseTimePtr(row.StartedAt),
		FinishedAt:  parseTimePtr(row.FinishedAt),
	}
}

// =============================================================================
// Domain Implementation
// =============================================================================

func createDomain(ctx context.Context, exec executor, d *domain.Domain) error {
	query := `
		INSERT INTO domains (
			id, project_id, hostname, wildcard, ssl_enabled, cert_state,
			cert_expires_at, last_error, retry_after, created_at
		) VALUES (
			:id, :project_id, :hostname, :wildcard, :ssl_enabled, :cert_state,
			:cert_expires_at, :last_error, :retry_after, :created_at
		)`

	row := map[string]any{
		"id":              d.ID,
		"project_id":      d.ProjectID,
		"hostname":        d.Hostname,
		"wildcard":        d.Wildcard,
		"ssl_enabled":     d.SSLEnabled,
		"cert_state":      string(d.CertState),
		"cert_expires_at": formatTimePtr(d.CertExpiresAt),
		"last_error":      d.LastError,
		"retry_after":     formatTimePtr(d.RetryAfter),
		"created_at":      formatTime(d.CreatedAt),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: domains.hostname") {
			return NewStoreError("CreateDomain", "domain", d.Hostname, "hostname already attached", ErrDuplicateHostname)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: domains.id") {
			return NewStoreError("CreateDomain", "domain", d.ID, "domain with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateDomain", "domain", d.ID, "project not found", ErrForeignKey)
		}
		return NewStoreError("CreateDomain", "domain", d.ID, err.Error(), err)
	}
	return nil
}

func getDomain(ctx context.Context, exec executor, id string) (*domain.Domain, error) {
	var row domainRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM domains WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDomain", "domain", id, "domain not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDomain", "domain", id, err.Error(), err)
	}
	return rowToDomain(&row), nil
}

func getDomainByHostname(ctx context.Context, exec executor, hostname string) (*domain.Domain, error) {
	var row domainRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM domains WHERE hostname = ?`, hostname)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDomainByHostname", "domain", hostname, "domain not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDomainByHostname", "domain", hostname, err.Error(), err)
	}
	return rowToDomain(&row), nil
}

func updateDomain(ctx context.Context, exec executor, d *domain.Domain) error {
	query := `
		UPDATE domains SET
			ssl_enabled = :ssl_enabled,
			cert_state = :cert_state,
			cert_expires_at = :cert_expires_at,
			last_error = :last_error,
			retry_after = :retry_after
		WHERE id = :id`

	row := map[string]any{
		"id":              d.ID,
		"ssl_enabled":     d.SSLEnabled,
		"cert_state":      string(d.CertState),
		"cert_expires_at": formatTimePtr(d.CertExpiresAt),
		"last_error":      d.LastError,
		"retry_after":     formatTimePtr(d.RetryAfter),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateDomain", "domain", d.ID, err.Error(), err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateDomain", "domain", d.ID, "domain not found", ErrNotFound)
	}
	return nil
}

func deleteDomain(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM domains WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteDomain", "domain", id, err.Error(), err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteDomain", "domain", id, "domain not found", ErrNotFound)
	}
	return nil
}

func listDomainsByProject(ctx context.Context, exec executor, projectID string) ([]domain.Domain, error) {
	var rows []domainRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM domains WHERE project_id = ? ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, NewStoreError("ListDomainsByProject", "domain", projectID, err.Error(), err)
	}
	return rowsToDomains(rows), nil
}

func listDomains(ctx context.Context, exec executor, opts ListOptions) ([]domain.Domain, error) {
	opts = opts.Normalize()

	var rows []domainRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM domains ORDER BY created_at ASC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListDomains", "domain", "", err.Error(), err)
	}
	return rowsToDomains(rows), nil
}

func listExpiringDomains(ctx context.Context, exec executor, within time.Duration) ([]domain.Domain, error) {
	now := time.Now().UTC()
	cutoff := formatTime(now.Add(within))

	// Issued certificates close to expiry, plus failed issuances whose retry
	// backoff has elapsed.
	var rows []domainRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM domains
		 WHERE (cert_state = ? AND cert_expires_at IS NOT NULL AND cert_expires_at <= ?)
		    OR (cert_state = ? AND (retry_after IS NULL OR retry_after <= ?))
		 ORDER BY cert_expires_at ASC`,
		string(domain.CertIssued), cutoff, string(domain.CertFailed), formatTime(now))
	if err != nil {
		return nil, NewStoreError("ListExpiringDomains", "domain", "", err.Error(), err)
	}
	return rowsToDomains(rows), nil
}

func rowsToDomains(rows []domainRow) []domain.Domain {
	domains := make([]domain.Domain, 0, len(rows))
	for i := range rows {
		domains = append(domains, *rowToDomain(&rows[i]))
	}
	return domains
}

func rowToDomain(row *domainRow) *domain.Domain {
	return &domain.Domain{
		ID:            row.ID,
		ProjectID:     row.ProjectID,
		Hostname:      row.Hostname,
		Wildcard:      row.Wildcard,
		SSLEnabled:    row.SSLEnabled,
		CertState:     domain.CertState(row.CertState),
		CertExpiresAt: parseTimePtr(row.CertExpiresAt),
		LastError:     row.LastError,
		RetryAfter:    parseTimePtr(row.RetryAfter),
		CreatedAt:     parseTime(row.CreatedAt),
	}
}

// =============================================================================
// Credential Implementation
// =============================================================================

func createCredential(ctx context.Context, exec executor, cred *domain.Credential) error {
	query := `
		INSERT INTO credentials (id, project_id, cred_key, cred_value, created_at)
		VALUES (:id, :project_id, :cred_key, :cred_value, :created_at)`

	row := map[string]any{
		"id":         cred.ID,
		"project_id": cred.ProjectID,
		"cred_key":   cred.Key,
		"cred_value": cred.Value,
		"created_at": formatTime(cred.CreatedAt),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateCredential", "credential", cred.Key, "credential already exists for project", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateCredential", "credential", cred.ID, "project not found", ErrForeignKey)
		}
		return NewStoreError("CreateCredential", "credential", cred.ID, err.Error(), err)
	}
	return nil
}

func listCredentialsByProject(ctx context.Context, exec executor, projectID string) ([]domain.Credential, error) {
	var rows []credentialRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM credentials WHERE project_id = ? ORDER BY cred_key ASC`, projectID)
	if err != nil {
		return nil, NewStoreError("ListCredentialsByProject", "credential", projectID, err.Error(), err)
	}

	creds := make([]domain.Credential, 0, len(rows))
	for _, row := range rows {
		creds = append(creds, domain.Credential{
			ID:        row.ID,
			ProjectID: row.ProjectID,
			Key:       row.CredKey,
			Value:     row.CredValue,
			CreatedAt: parseTime(row.CreatedAt),
		})
	}
	return creds, nil
}

func deleteCredentialsByProject(ctx context.Context, exec executor, projectID string) error {
	_, err := exec.ExecContext(ctx, `DELETE FROM credentials WHERE project_id = ?`, projectID)
	if err != nil {
		return NewStoreError("DeleteCredentialsByProject", "credential", projectID, err.Error(), err)
	}
	return nil
}
