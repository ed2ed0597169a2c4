package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the per-project and per-user data directory name.
const DirName = ".bfftrace"

// DBFile is the SQLite database file name inside DirName.
const DBFile = "bfftrace.db"

// GlobalPath returns the path to the global .bfftrace directory.
// On Unix: ~/.bfftrace
// On Windows: %USERPROFILE%\.bfftrace
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

// LocalPath returns the .bfftrace directory for the given project root.
func LocalPath(projectRoot string) string {
	return filepath.Join(projectRoot, DirName)
}

// EnsureGlobalDir creates the global .bfftrace directory if it doesn't exist.
func EnsureGlobalDir() error {
	globalPath, err := GlobalPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(globalPath, 0755); err != nil {
		return fmt.Errorf("failed to create global %s directory: %w", DirName, err)
	}

	return nil
}
