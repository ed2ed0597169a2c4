package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/nvandessel/bfftrace/internal/snapshot"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Tracker.Mode != "auto" {
		t.Errorf("expected Mode 'auto', got '%s'", config.Tracker.Mode)
	}
	if config.Tracker.Threshold != 0.9 {
		t.Errorf("expected Threshold 0.9, got %f", config.Tracker.Threshold)
	}
	if config.Tracker.MaxIterations != 1024 {
		t.Errorf("expected MaxIterations 1024, got %d", config.Tracker.MaxIterations)
	}
	if config.Tracker.Workers != runtime.NumCPU() {
		t.Errorf("expected Workers %d, got %d", runtime.NumCPU(), config.Tracker.Workers)
	}
	if config.Tracker.BoundsCheck {
		t.Error("expected BoundsCheck to be false by default")
	}
	if !config.Tracker.VerifyRoot {
		t.Error("expected VerifyRoot to be true by default")
	}
	if config.Snapshots.Pattern != snapshot.DefaultPattern {
		t.Errorf("expected Pattern %q, got %q", snapshot.DefaultPattern, config.Snapshots.Pattern)
	}
	if config.Snapshots.CacheSize != 2 {
		t.Errorf("expected CacheSize 2, got %d", config.Snapshots.CacheSize)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if config.Backup.MaxCount != 10 {
		t.Errorf("expected Backup.MaxCount 10, got %d", config.Backup.MaxCount)
	}
	if config.Telemetry.Endpoint != "" {
		t.Errorf("expected tracing off by default, got endpoint %q", config.Telemetry.Endpoint)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
tracker:
  mode: linked
  threshold: 0.85
  max_iterations: 2048
  workers: 4
  bounds_check: true
  verify_root: false

snapshots:
  dir: /data/run7
  pattern: pairings_%06d.csv

logging:
  level: debug
`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Tracker.Mode != "linked" {
		t.Errorf("expected Mode 'linked', got '%s'", config.Tracker.Mode)
	}
	if config.Tracker.Threshold != 0.85 {
		t.Errorf("expected Threshold 0.85, got %f", config.Tracker.Threshold)
	}
	if config.Tracker.MaxIterations != 2048 || config.Tracker.Workers != 4 {
		t.Errorf("max_iterations/workers = %d/%d", config.Tracker.MaxIterations, config.Tracker.Workers)
	}
	if !config.Tracker.BoundsCheck || config.Tracker.VerifyRoot {
		t.Errorf("bounds_check/verify_root = %v/%v", config.Tracker.BoundsCheck, config.Tracker.VerifyRoot)
	}
	if config.Snapshots.Dir != "/data/run7" || config.Snapshots.Pattern != "pairings_%06d.csv" {
		t.Errorf("snapshots = %+v", config.Snapshots)
	}
	// Unset sections keep their defaults.
	if config.Snapshots.CacheSize != 2 {
		t.Errorf("expected default CacheSize 2, got %d", config.Snapshots.CacheSize)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected Logging.Level 'debug', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_SNAPSHOT_ROOT", "/mnt/soup")
	path := writeConfig(t, `
snapshots:
  dir: ${TEST_SNAPSHOT_ROOT}/pairings
store:
  path: ${TEST_SNAPSHOT_ROOT}/bfftrace.db
`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.Snapshots.Dir != "/mnt/soup/pairings" {
		t.Errorf("expected expanded dir, got '%s'", config.Snapshots.Dir)
	}
	if config.Store.Path != "/mnt/soup/bfftrace.db" {
		t.Errorf("expected expanded store path, got '%s'", config.Store.Path)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeConfig(t, "tracker: [not, a, map]\n")
	if _, err := LoadFromFile(path); err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BFFTRACE_MODE", "spatial")
	t.Setenv("BFFTRACE_THRESHOLD", "0.75")
	t.Setenv("BFFTRACE_MAX_ITERATIONS", "4096")
	t.Setenv("BFFTRACE_WORKERS", "3")
	t.Setenv("BFFTRACE_BOUNDS_CHECK", "true")
	t.Setenv("BFFTRACE_SNAPSHOT_DIR", "/env/dir")
	t.Setenv("BFFTRACE_LOG_LEVEL", "trace")
	t.Setenv("BFFTRACE_OTLP_ENDPOINT", "http://localhost:4318")
	t.Setenv("BFFTRACE_METRICS_FILE", "/tmp/bfftrace.prom")
	t.Setenv("BFFTRACE_BACKUP_MAX_COUNT", "3")
	t.Setenv("BFFTRACE_BACKUP_MAX_AGE", "2w")

	config := Default()
	if err := ApplyEnv(config); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if config.Tracker.Mode != "spatial" {
		t.Errorf("Mode = %s", config.Tracker.Mode)
	}
	if config.Tracker.Threshold != 0.75 {
		t.Errorf("Threshold = %f", config.Tracker.Threshold)
	}
	if config.Tracker.MaxIterations != 4096 || config.Tracker.Workers != 3 {
		t.Errorf("MaxIterations/Workers = %d/%d", config.Tracker.MaxIterations, config.Tracker.Workers)
	}
	if !config.Tracker.BoundsCheck {
		t.Error("BoundsCheck not set from env")
	}
	if config.Snapshots.Dir != "/env/dir" {
		t.Errorf("Snapshots.Dir = %s", config.Snapshots.Dir)
	}
	if config.Logging.Level != "trace" {
		t.Errorf("Logging.Level = %s", config.Logging.Level)
	}
	if config.Telemetry.Endpoint != "http://localhost:4318" {
		t.Errorf("Telemetry.Endpoint = %s", config.Telemetry.Endpoint)
	}
	if config.Metrics.Textfile != "/tmp/bfftrace.prom" {
		t.Errorf("Metrics.Textfile = %s", config.Metrics.Textfile)
	}
	if config.Backup.MaxCount != 3 || config.Backup.MaxAge != "2w" {
		t.Errorf("Backup = %+v", config.Backup)
	}
	// Unset variables leave defaults alone.
	if !config.Tracker.VerifyRoot || config.Snapshots.CacheSize != 2 {
		t.Errorf("defaults overwritten: %+v", config)
	}
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	t.Setenv("BFFTRACE_WORKERS", "many")
	if err := ApplyEnv(Default()); err == nil {
		t.Error("expected error for non-numeric BFFTRACE_WORKERS")
	}
}

func TestLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	// No config file: defaults plus env.
	t.Setenv("BFFTRACE_THRESHOLD", "0.8")
	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Tracker.Threshold != 0.8 {
		t.Errorf("Threshold = %f, want 0.8", config.Tracker.Threshold)
	}

	// Config file, then env on top.
	dir := filepath.Join(home, ".bfftrace")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	content := "tracker:\n  mode: linked\n  threshold: 0.5\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	config, err = Load()
	if err != nil {
		t.Fatalf("Load with file: %v", err)
	}
	if config.Tracker.Mode != "linked" {
		t.Errorf("Mode = %s, want linked from file", config.Tracker.Mode)
	}
	if config.Tracker.Threshold != 0.8 {
		t.Errorf("Threshold = %f, want env override 0.8", config.Tracker.Threshold)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"threshold too high", func(c *Config) { c.Tracker.Threshold = 1.5 }, "threshold"},
		{"threshold negative", func(c *Config) { c.Tracker.Threshold = -0.1 }, "threshold"},
		{"zero max iterations", func(c *Config) { c.Tracker.MaxIterations = 0 }, "max_iterations"},
		{"negative workers", func(c *Config) { c.Tracker.Workers = -1 }, "workers"},
		{"unknown mode", func(c *Config) { c.Tracker.Mode = "nearest" }, "invalid mode"},
		{"empty mode is auto", func(c *Config) { c.Tracker.Mode = "" }, ""},
		{"bad pattern", func(c *Config) { c.Snapshots.Pattern = "pairings.csv" }, "snapshot pattern"},
		{"zero cache", func(c *Config) { c.Snapshots.CacheSize = 0 }, "cache_size"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }, ""},
		{"bad sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "sample_ratio"},
		{"negative backup count", func(c *Config) { c.Backup.MaxCount = -1 }, "max_count"},
		{"bad backup age", func(c *Config) { c.Backup.MaxAge = "soon" }, "max_age"},
		{"backup age in days", func(c *Config) { c.Backup.MaxAge = "30d" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.modify(config)
			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
