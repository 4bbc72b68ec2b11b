package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the pool and container layers.
var (
	// ErrPoolExhausted is returned by Acquire when no idle sandbox is
	// available and the pool is at its scale limit.
	ErrPoolExhausted = errors.New("sandbox pool exhausted")

	// ErrShutdown is returned for acquisitions after shutdown began.
	ErrShutdown = errors.New("sandbox manager is shut down")

	// ErrNoPortConfigured is returned by MakeRequest when the sandbox
	// was created without an exposed port.
	ErrNoPortConfigured = errors.New("sandbox has no port configured")
)

// StagingError reports a failed file write while preparing a workdir.
type StagingError struct {
	Path     string
	ExitCode int
	Stderr   string
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("staging %s failed (exit %d): %s", e.Path, e.ExitCode, e.Stderr)
}
