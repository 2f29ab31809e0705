// Package templates defines the managed service catalog. Expansion is pure:
// secrets are generated here and handed to the caller, which must persist
// them before the first deploy. Nothing in this package regenerates a
// secret for an existing project.
package templates

import (
	"errors"
	"fmt"

	"github.com/kamrulh4/auraops/internal/core/domain"
)

// =============================================================================
// Errors
// =============================================================================

var ErrUnknownTemplate = errors.New("unknown service template")

// =============================================================================
// Types
// =============================================================================

// Template describes one entry of the managed service catalog.
type Template struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Port        int    `json:"port"`
	Category    string `json:"category"`
}

// HealthCheck mirrors a container health probe for an expanded service.
type HealthCheck struct {
	Test     []string
	Interval string
	Timeout  string
	Retries  int
}

// Expanded is the runnable form of a template for one project: environment,
// generated credentials, data volume, and health probe.
type Expanded struct {
	Template    Template
	Env         map[string]string
	Command     []string
	Credentials []*domain.Credential
	VolumeName  string
	VolumePath  string
	HealthCheck *HealthCheck
}

// Credential keys common across templates.
const (
	CredUsername         = "username"
	CredPassword         = "password"
	CredDatabase         = "database"
	CredConnectionString = "connection_string"
)

const (
	defaultUser     = "aura"
	defaultDatabase = "app"
	secretBytes     = 16
)

// =============================================================================
// Catalog
// =============================================================================

var catalog = []Template{
	{Slug: "postgres", Name: "PostgreSQL", Description: "PostgreSQL 16 relational database", Image: "postgres:16-alpine", Port: 5432, Category: "database"},
	{Slug: "mysql", Name: "MySQL", Description: "MySQL 8 relational database", Image: "mysql:8.0", Port: 3306, Category: "database"},
	{Slug: "mongodb", Name: "MongoDB", Description: "MongoDB 7 document database", Image: "mongo:7", Port: 27017, Category: "database"},
	{Slug: "redis", Name: "Redis", Description: "Redis 7 in-memory data store", Image: "redis:7-alpine", Port: 6379, Category: "cache"},
	{Slug: "minio", Name: "MinIO", Description: "S3-compatible object storage", Image: "minio/minio:latest", Port: 9000, Category: "storage"},
	{Slug: "rabbitmq", Name: "RabbitMQ", Description: "RabbitMQ message broker", Image: "rabbitmq:3-management-alpine", Port: 5672, Category: "messaging"},
	{Slug: "elasticsearch", Name: "Elasticsearch", Description: "Elasticsearch 8 search engine", Image: "docker.elastic.co/elasticsearch/elasticsearch:8.13.0", Port: 9200, Category: "search"},
}

// List returns the catalog in a stable order.
func List() []Template {
	out := make([]Template, len(catalog))
	copy(out, catalog)
	return out
}

// Get looks up a template by slug.
func Get(slug string) (Template, error) {
	for _, t := range catalog {
		if t.Slug == slug {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, slug)
}

// =============================================================================
// Expansion
// =============================================================================

// Expand generates the runnable configuration and fresh credentials for a
// template. The host in connection strings is the project's container name,
// reachable on the shared network.
func Expand(slug, projectID, host string) (*Expanded, error) {
	t, err := Get(slug)
	if err != nil {
		return nil, err
	}

	password := domain.GenerateSecret(secretBytes)
	cred := func(key, value string) *domain.Credential {
		return domain.NewCredential(projectID, key, value)
	}

	env := map[string]string{}
	var creds []*domain.Credential

	switch t.Slug {
	case "postgres":
		env["POSTGRES_USER"] = defaultUser
		env["POSTGRES_PASSWORD"] = password
		env["POSTGRES_DB"] = defaultDatabase
		creds = []*domain.Credential{
			cred(CredUsername, defaultUser),
			cred(CredPassword, password),
			cred(CredDatabase, defaultDatabase),
			cred(CredConnectionString, fmt.Sprintf("postgresql://%s:%s@%s:%d/%s", defaultUser, password, host, t.Port, defaultDatabase)),
		}

	case "mysql":
		rootPassword := domain.GenerateSecret(secretBytes)
		env["MYSQL_ROOT_PASSWORD"] = rootPassword
		env["MYSQL_DATABASE"] = defaultDatabase
		env["MYSQL_USER"] = defaultUser
		env["MYSQL_PASSWORD"] = password
		creds = []*domain.Credential{
			cred(CredUsername, defaultUser),
			cred(CredPassword, password),
			cred("root_password", rootPassword),
			cred(CredDatabase, defaultDatabase),
			cred(CredConnectionString, fmt.Sprintf("mysql://%s:%s@%s:%d/%s", defaultUser, password, host, t.Port, defaultDatabase)),
		}

	case "mongodb":
		env["MONGO_INITDB_ROOT_USERNAME"] = defaultUser
		env["MONGO_INITDB_ROOT_PASSWORD"] = password
		creds = []*domain.Credential{
			cred(CredUsername, defaultUser),
			cred(CredPassword, password),
			cred(CredConnectionString, fmt.Sprintf("mongodb://%s:%s@%s:%d", defaultUser, password, host, t.Port)),
		}

	case "redis":
		env["REDIS_PASSWORD"] = password
		creds = []*domain.Credential{
			cred(CredPassword, password),
			cred(CredConnectionString, fmt.Sprintf("redis://:%s@%s:%d/0", password, host, t.Port)),
		}

	case "minio":
		env["MINIO_ROOT_USER"] = defaultUser
		env["MINIO_ROOT_PASSWORD"] = password
		creds = []*domain.Credential{
			cred("access_key", defaultUser),
			cred("secret_key", password),
			cred(CredConnectionString, fmt.Sprintf("http://%s:%d", host, t.Port)),
		}

	case "rabbitmq":
		env["RABBITMQ_DEFAULT_USER"] = defaultUser
		env["RABBITMQ_DEFAULT_PASS"] = password
		creds = []*domain.Credential{
			cred(CredUsername, defaultUser),
			cred(CredPassword, password),
			cred(CredConnectionString, fmt.Sprintf("amqp://%s:%s@%s:%d/", defaultUser, password, host, t.Port)),
		}

	case "elasticsearch":
		env["discovery.type"] = "single-node"
		env["ELASTIC_PASSWORD"] = password
		env["ES_JAVA_OPTS"] = "-Xms512m -Xmx512m"
		env["xpack.security.enabled"] = "true"
		creds = []*domain.Credential{
			cred(CredUsername, "elastic"),
			cred(CredPassword, password),
			cred(CredConnectionString, fmt.Sprintf("http://elastic:%s@%s:%d", password, host, t.Port)),
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, slug)
	}

	e := buildRuntime(t, env)
	e.Credentials = creds
	return e, nil
}

// Runtime rebuilds the runnable configuration for an already-provisioned
// project from its persisted environment. No secrets are generated; anything
// secret the runtime pieces need is read back out of env.
func Runtime(slug string, env map[string]string) (*Expanded, error) {
	t, err := Get(slug)
	if err != nil {
		return nil, err
	}
	return buildRuntime(t, env), nil
}

// buildRuntime derives command, data volume, and health probe from the
// template and its environment.
func buildRuntime(t Template, env map[string]string) *Expanded {
	e := &Expanded{Template: t, Env: env}

	switch t.Slug {
	case "postgres":
		user := env["POSTGRES_USER"]
		e.VolumeName = "pgdata"
		e.VolumePath = "/var/lib/postgresql/data"
		e.HealthCheck = &HealthCheck{Test: []string{"CMD-SHELL", "pg_isready -U " + user}, Interval: "10s", Timeout: "5s", Retries: 5}

	case "mysql":
		e.VolumeName = "mysqldata"
		e.VolumePath = "/var/lib/mysql"
		e.HealthCheck = &HealthCheck{Test: []string{"CMD", "mysqladmin", "ping", "-h", "localhost"}, Interval: "10s", Timeout: "5s", Retries: 5}

	case "mongodb":
		e.VolumeName = "mongodata"
		e.VolumePath = "/data/db"
		e.HealthCheck = &HealthCheck{Test: []string{"CMD", "mongosh", "--eval", "db.adminCommand('ping')"}, Interval: "10s", Timeout: "5s", Retries: 5}

	case "redis":
		password := env["REDIS_PASSWORD"]
		e.Command = []string{"redis-server", "--requirepass", password}
		e.VolumeName = "redisdata"
		e.VolumePath = "/data"
		e.HealthCheck = &HealthCheck{Test: []string{"CMD", "redis-cli", "-a", password, "ping"}, Interval: "10s", Timeout: "5s", Retries: 5}

	case "minio":
		e.Command = []string{"server", "/data"}
		e.VolumeName = "miniodata"
		e.VolumePath = "/data"
		e.HealthCheck = &HealthCheck{Test: []string{"CMD", "curl", "-f", "http://localhost:9000/minio/health/live"}, Interval: "15s", Timeout: "5s", Retries: 5}

	case "rabbitmq":
		e.VolumeName = "rabbitdata"
		e.VolumePath = "/var/lib/rabbitmq"
		e.HealthCheck = &HealthCheck{Test: []string{"CMD", "rabbitmq-diagnostics", "-q", "ping"}, Interval: "15s", Timeout: "10s", Retries: 5}

	case "elasticsearch":
		password := env["ELASTIC_PASSWORD"]
		e.VolumeName = "esdata"
		e.VolumePath = "/usr/share/elasticsearch/data"
		e.HealthCheck = &HealthCheck{Test: []string{"CMD-SHELL", "curl -fs -u elastic:" + password + " http://localhost:9200/_cluster/health"}, Interval: "20s", Timeout: "10s", Retries: 5}
	}

	return e
}
