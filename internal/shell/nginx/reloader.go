// Package nginx writes rendered reverse-proxy config to disk and drives the
// nginx process: validate first, reload only when the new config passes.
package nginx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// =============================================================================
// Reloader
// =============================================================================

var (
	// ErrValidationFailed means nginx rejected the candidate config. The
	// previous config is restored before this error is returned.
	ErrValidationFailed = errors.New("nginx config validation failed")

	// ErrReloadFailed means the reload signal itself failed.
	ErrReloadFailed = errors.New("nginx reload failed")
)

// Reloader validates and reloads the proxy process.
type Reloader interface {
	Validate(ctx context.Context) error
	Reload(ctx context.Context) error
}

// CommandReloader drives a local nginx binary.
type CommandReloader struct {
	// Bin is the nginx binary path, "nginx" when empty.
	Bin string
}

func (r *CommandReloader) bin() string {
	if r.Bin == "" {
		return "nginx"
	}
	return r.Bin
}

// Validate runs nginx -t against the live config tree.
func (r *CommandReloader) Validate(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, r.bin(), "-t").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrValidationFailed, string(out))
	}
	return nil
}

// Reload signals the master process to reload config.
func (r *CommandReloader) Reload(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, r.bin(), "-s", "reload").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrReloadFailed, string(out))
	}
	return nil
}
