package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	all := List()
	require.NotEmpty(t, all)

	slugs := make(map[string]bool)
	for _, tmpl := range all {
		assert.NotEmpty(t, tmpl.Image, tmpl.Slug)
		assert.Greater(t, tmpl.Port, 0, tmpl.Slug)
		assert.False(t, slugs[tmpl.Slug], "duplicate slug %s", tmpl.Slug)
		slugs[tmpl.Slug] = true
	}

	for _, want := range []string{"postgres", "mysql", "mongodb", "redis", "minio", "rabbitmq", "elasticsearch"} {
		assert.True(t, slugs[want], "missing %s", want)
	}
}

func TestGet(t *testing.T) {
	tmpl, err := Get("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres:16-alpine", tmpl.Image)

	_, err = Get("oracle")
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestExpandPostgres(t *testing.T) {
	e, err := Expand("postgres", "proj-1", "auraops_app_proj-1")
	require.NoError(t, err)

	assert.Equal(t, "aura", e.Env["POSTGRES_USER"])
	assert.NotEmpty(t, e.Env["POSTGRES_PASSWORD"])
	assert.Equal(t, "pgdata", e.VolumeName)
	assert.Equal(t, "/var/lib/postgresql/data", e.VolumePath)
	require.NotNil(t, e.HealthCheck)

	creds := map[string]string{}
	for _, c := range e.Credentials {
		assert.Equal(t, "proj-1", c.ProjectID)
		creds[c.Key] = c.Value
	}
	assert.Equal(t, e.Env["POSTGRES_PASSWORD"], creds[CredPassword])
	assert.Contains(t, creds[CredConnectionString], "postgresql://aura:")
	assert.Contains(t, creds[CredConnectionString], "auraops_app_proj-1:5432/app")
}

func TestExpandRedisUsesCommand(t *testing.T) {
	e, err := Expand("redis", "proj-1", "cache-host")
	require.NoError(t, err)

	require.Len(t, e.Command, 3)
	assert.Equal(t, "redis-server", e.Command[0])

	password := e.Command[2]
	found := false
	for _, c := range e.Credentials {
		if c.Key == CredPassword {
			assert.Equal(t, password, c.Value)
			found = true
		}
	}
	assert.True(t, found)
}

func TestExpandGeneratesUniqueSecrets(t *testing.T) {
	a, err := Expand("postgres", "proj-1", "h")
	require.NoError(t, err)
	b, err := Expand("postgres", "proj-2", "h")
	require.NoError(t, err)

	assert.NotEqual(t, a.Env["POSTGRES_PASSWORD"], b.Env["POSTGRES_PASSWORD"])
}

func TestExpandAllTemplates(t *testing.T) {
	for _, tmpl := range List() {
		t.Run(tmpl.Slug, func(t *testing.T) {
			e, err := Expand(tmpl.Slug, "proj-1", "host")
			require.NoError(t, err)
			assert.NotEmpty(t, e.Credentials)
			assert.NotEmpty(t, e.VolumePath)
			require.NotNil(t, e.HealthCheck)

			var conn string
			for _, c := range e.Credentials {
				if c.Key == CredConnectionString {
					conn = c.Value
				}
			}
			require.NotEmpty(t, conn, "connection string missing")
			assert.True(t, strings.Contains(conn, "host"), conn)
		})
	}
}

func TestRuntimeRebuildsWithoutNewSecrets(t *testing.T) {
	e, err := Expand("redis", "proj-1", "cache-host")
	require.NoError(t, err)

	r, err := Runtime("redis", e.Env)
	require.NoError(t, err)

	assert.Equal(t, e.Command, r.Command)
	assert.Equal(t, e.VolumeName, r.VolumeName)
	assert.Equal(t, e.HealthCheck, r.HealthCheck)
	assert.Empty(t, r.Credentials)
}

func TestExpandUnknown(t *testing.T) {
	_, err := Expand("oracle", "proj-1", "host")
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}
