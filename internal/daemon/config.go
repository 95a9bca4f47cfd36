// Package daemon runs indexgen's long-lived components as one process:
// a single-instance lock, a PID file for the stop and status commands, and
// an errgroup supervising the notification sources and the HTTP server.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/indexgen/internal/logging"
)

// Config holds daemon process settings.
type Config struct {
	// PIDPath is where the running daemon records its process ID.
	// Default: ~/.indexgen/indexgen.pid
	PIDPath string

	// LockPath is the single-instance lock file.
	// Default: ~/.indexgen/indexgen.lock
	LockPath string

	// ShutdownGracePeriod bounds how long components may take to stop
	// after a signal.
	// Default: 15s
	ShutdownGracePeriod time.Duration
}

// DefaultConfig returns the defaults under ~/.indexgen.
func DefaultConfig() Config {
	dir := logging.HomeDir()
	return Config{
		PIDPath:             filepath.Join(dir, "indexgen.pid"),
		LockPath:            filepath.Join(dir, "indexgen.lock"),
		ShutdownGracePeriod: 15 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.LockPath == "" {
		return fmt.Errorf("lock path cannot be empty")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// EnsureDir creates the directories holding the PID and lock files.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.PIDPath), filepath.Dir(c.LockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create daemon directory: %w", err)
		}
	}
	return nil
}
