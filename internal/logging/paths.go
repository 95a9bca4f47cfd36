package logging

import (
	"os"
	"path/filepath"
)

// HomeDir returns ~/.indexgen, or a directory under the temp dir when the
// home directory is unavailable.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".indexgen")
	}
	return filepath.Join(home, ".indexgen")
}

// DefaultLogDir returns ~/.indexgen/logs.
func DefaultLogDir() string {
	return filepath.Join(HomeDir(), "logs")
}

// DefaultLogPath returns the daemon log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "indexgen.log")
}
