package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGlobalPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	got, err := GlobalPath()
	if err != nil {
		t.Fatalf("GlobalPath() error = %v", err)
	}
	if !strings.HasSuffix(got, DirName) {
		t.Errorf("GlobalPath() = %v, should end with %s", got, DirName)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("GlobalPath() = %v, should be absolute path", got)
	}
	if !strings.HasPrefix(got, home) {
		t.Errorf("GlobalPath() = %v, should start with home directory %v", got, home)
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		name        string
		projectRoot string
		want        string
	}{
		{"unix path", "/home/user/project", "/home/user/project/.bfftrace"},
		{"relative path", ".", ".bfftrace"},
		{"nested project", "/var/runs/deep/nested", "/var/runs/deep/nested/.bfftrace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filepath.ToSlash(LocalPath(tt.projectRoot))
			if got != filepath.ToSlash(tt.want) {
				t.Errorf("LocalPath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnsureGlobalDir(t *testing.T) {
	tests := []struct {
		name     string
		preexist bool
	}{
		{"creates directory when it doesn't exist", false},
		{"succeeds when directory already exists", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			t.Setenv("HOME", home)
			t.Setenv("USERPROFILE", home)
			dir := filepath.Join(home, DirName)
			if tt.preexist {
				if err := os.MkdirAll(dir, 0700); err != nil {
					t.Fatal(err)
				}
			}

			if err := EnsureGlobalDir(); err != nil {
				t.Fatalf("EnsureGlobalDir() error = %v", err)
			}
			info, err := os.Stat(dir)
			if err != nil {
				t.Fatalf("EnsureGlobalDir() did not create directory: %v", err)
			}
			if !info.IsDir() {
				t.Error("EnsureGlobalDir() created a file instead of directory")
			}
		})
	}
}
