// Package pathutil confines user-supplied paths to known directories.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/bfftrace/internal/store"
)

// BackupDirName is the directory under .bfftrace that holds run archives.
const BackupDirName = "backups"

// RedactPath reduces a full path to .../<parent>/<basename> for error messages.
// For example, "/home/user/.bfftrace/bfftrace.db" becomes ".../.bfftrace/bfftrace.db".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ValidatePath checks that path, after cleaning and symlink resolution, lies
// within one of allowedDirs. The path itself need not exist yet.
func ValidatePath(path string, allowedDirs []string) error {
	if path == "" {
		return fmt.Errorf("path validation failed: path is empty")
	}
	if len(allowedDirs) == 0 {
		return fmt.Errorf("path validation failed: no allowed directories configured")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path validation failed: path contains null byte")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve absolute path: %w", err)
	}

	// Resolving the deepest existing ancestor catches a symlink at any level,
	// including the final element.
	resolved, err := resolveExisting(absPath)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		allowedResolved, err := resolveExisting(allowedAbs)
		if err != nil {
			continue
		}
		if isSubpath(resolved, allowedResolved) {
			return nil
		}
	}

	return fmt.Errorf("path validation failed: %q is outside allowed directories", RedactPath(absPath))
}

// AllowedDirs drops empty and duplicate entries from dirs.
func AllowedDirs(dirs ...string) []string {
	seen := make(map[string]bool, len(dirs))
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d == "" {
			continue
		}
		d = filepath.Clean(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// DefaultBackupDir returns <projectRoot>/.bfftrace/backups.
func DefaultBackupDir(projectRoot string) string {
	return filepath.Join(store.LocalPath(projectRoot), BackupDirName)
}

// BackupDirs returns the directories archives may be written to or read
// from: the project backup dir, ~/.bfftrace/backups and configured, if set.
func BackupDirs(projectRoot, configured string) []string {
	dirs := []string{DefaultBackupDir(projectRoot)}
	if global, err := store.GlobalPath(); err == nil {
		dirs = append(dirs, filepath.Join(global, BackupDirName))
	}
	return AllowedDirs(append(dirs, configured)...)
}

// resolveExisting resolves symlinks on the deepest existing ancestor of path
// and re-appends the missing tail.
func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(path)
	if parent == path {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(path))
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// isSubpath reports whether path equals base or lies beneath it.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(base, string(os.PathSeparator))+string(os.PathSeparator))
}
