// Package image acquires runnable container images for projects, either by
// pulling from a registry or by building from a git repository.
package image

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrSourceInvalid marks a source definition the provider cannot act on.
	// The deployment should fail without retrying.
	ErrSourceInvalid = errors.New("project source is invalid")

	// ErrCloneFailed marks a git clone or checkout failure.
	ErrCloneFailed = errors.New("repository clone failed")

	// ErrPullFailed marks a registry pull failure.
	ErrPullFailed = errors.New("image pull failed")

	// ErrBuildFailed marks a Docker build failure. The build log carries the
	// failing step output.
	ErrBuildFailed = errors.New("image build failed")
)

// AcquireError wraps image acquisition failures with the build log collected
// before the failure.
type AcquireError struct {
	Op       string
	Source   string // image ref or repository URL
	Message  string
	BuildLog string
	Err      error
}

func (e *AcquireError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Source, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// NewAcquireError creates a new AcquireError.
func NewAcquireError(op, source, message, buildLog string, err error) *AcquireError {
	return &AcquireError{
		Op:       op,
		Source:   source,
		Message:  message,
		BuildLog: buildLog,
		Err:      err,
	}
}

// Retryable reports whether a failure class is worth retrying. Invalid
// sources and failed builds are deterministic; clones and pulls can hit
// transient network conditions.
func Retryable(err error) bool {
	return errors.Is(err, ErrCloneFailed) || errors.Is(err, ErrPullFailed)
}
