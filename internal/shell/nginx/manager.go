package nginx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	corenginx "github.com/kamrulh4/auraops/internal/core/nginx"
)

// =============================================================================
// Manager
// =============================================================================

// filePrefix marks config files owned by this manager. Files without the
// prefix are never touched.
const filePrefix = "auraops-"

// Manager owns the proxy config directory. All writes go through a single
// mutex so concurrent deploys cannot interleave partial file sets.
type Manager struct {
	mu       sync.Mutex
	confDir  string
	params   corenginx.Params
	reloader Reloader
	logger   *slog.Logger
}

// NewManager creates a proxy config manager. confDir is the directory nginx
// includes, typically /etc/nginx/conf.d.
func NewManager(confDir string, params corenginx.Params, reloader Reloader, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		confDir:  confDir,
		params:   params,
		reloader: reloader,
		logger:   logger,
	}
}

// Apply renders the full config set for the routing snapshot, writes it,
// validates, and reloads. On validation failure the previous file set is
// restored and the live proxy keeps serving the old config.
func (m *Manager) Apply(ctx context.Context, routes []corenginx.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rendered := corenginx.Render(routes, m.params)

	backup, err := m.snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot config dir: %w", err)
	}

	if err := m.writeFiles(rendered); err != nil {
		m.restore(backup)
		return err
	}
	if err := m.removeStale(rendered); err != nil {
		m.restore(backup)
		return err
	}

	if err := m.reloader.Validate(ctx); err != nil {
		m.logger.Error("proxy config rejected, rolling back", "error", err)
		m.restore(backup)
		return err
	}

	if err := m.reloader.Reload(ctx); err != nil {
		return err
	}

	m.logger.Info("proxy config applied", "files", len(rendered), "routes", len(routes))
	return nil
}

// snapshot reads the current managed files so a failed apply can roll back.
func (m *Manager) snapshot() (map[string][]byte, error) {
	backup := make(map[string][]byte)

	entries, err := os.ReadDir(m.confDir)
	if err != nil {
		if os.IsNotExist(err) {
			return backup, os.MkdirAll(m.confDir, 0755)
		}
		return nil, err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !managedFile(name) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(m.confDir, name))
		if err != nil {
			return nil, err
		}
		backup[name] = content
	}
	return backup, nil
}

// writeFiles writes each rendered file via temp file and rename so nginx
// never reads a half-written config.
func (m *Manager) writeFiles(rendered map[string]string) error {
	for name, content := range rendered {
		target := filepath.Join(m.confDir, name)
		tmp, err := os.CreateTemp(m.confDir, name+".tmp-*")
		if err != nil {
			return fmt.Errorf("failed to create temp config: %w", err)
		}
		tmpName := tmp.Name()

		if _, err := tmp.WriteString(content); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("failed to write config %s: %w", name, err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("failed to close config %s: %w", name, err)
		}
		if err := os.Rename(tmpName, target); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("failed to install config %s: %w", name, err)
		}
	}
	return nil
}

// removeStale deletes managed files that are no longer part of the rendered
// set, such as configs for deleted projects.
func (m *Manager) removeStale(rendered map[string]string) error {
	entries, err := os.ReadDir(m.confDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !managedFile(name) {
			continue
		}
		if _, keep := rendered[name]; !keep {
			if err := os.Remove(filepath.Join(m.confDir, name)); err != nil {
				return err
			}
			m.logger.Debug("removed stale proxy config", "file", name)
		}
	}
	return nil
}

// restore puts the backed-up file set back in place.
func (m *Manager) restore(backup map[string][]byte) {
	entries, _ := os.ReadDir(m.confDir)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !managedFile(name) {
			continue
		}
		if _, existed := backup[name]; !existed {
			os.Remove(filepath.Join(m.confDir, name))
		}
	}
	for name, content := range backup {
		if err := os.WriteFile(filepath.Join(m.confDir, name), content, 0644); err != nil {
			m.logger.Error("failed to restore proxy config", "file", name, "error", err)
		}
	}
}

func managedFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, ".conf")
}
