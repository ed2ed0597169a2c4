// Package config provides unified configuration loading for bfftrace.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/bfftrace/internal/backup"
	"github.com/nvandessel/bfftrace/internal/lineage"
	"github.com/nvandessel/bfftrace/internal/logging"
	"github.com/nvandessel/bfftrace/internal/similarity"
	"github.com/nvandessel/bfftrace/internal/snapshot"
	"github.com/nvandessel/bfftrace/internal/store"
	"github.com/nvandessel/bfftrace/internal/verify"
)

// Config contains all bfftrace configuration settings.
type Config struct {
	// Tracker contains lineage search settings.
	Tracker TrackerConfig `json:"tracker" yaml:"tracker"`

	// Snapshots locates the per-epoch pairing files.
	Snapshots SnapshotConfig `json:"snapshots" yaml:"snapshots"`

	// Store locates the SQLite database.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Telemetry configures OpenTelemetry trace export.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Metrics configures the Prometheus textfile written after a run.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Backup configures run archives and their retention.
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// TrackerConfig configures candidate selection and verification.
type TrackerConfig struct {
	// Mode is "auto", "linked" or "spatial".
	Mode string `json:"mode" yaml:"mode" env:"BFFTRACE_MODE"`

	// Threshold is the similarity a candidate must exceed. Range: 0.0 to 1.0
	Threshold float64 `json:"threshold" yaml:"threshold" env:"BFFTRACE_THRESHOLD"`

	// MaxIterations caps one emulation.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" env:"BFFTRACE_MAX_ITERATIONS"`

	// Workers bounds concurrent candidate checks. 0 means one per CPU.
	Workers int `json:"workers" yaml:"workers" env:"BFFTRACE_WORKERS"`

	// BoundsCheck drops candidates outside the grid.
	BoundsCheck bool `json:"bounds_check" yaml:"bounds_check" env:"BFFTRACE_BOUNDS_CHECK"`

	// VerifyRoot runs the verifier on the starting program and warns on failure.
	VerifyRoot bool `json:"verify_root" yaml:"verify_root" env:"BFFTRACE_VERIFY_ROOT"`
}

// SnapshotConfig configures the snapshot directory source.
type SnapshotConfig struct {
	// Dir holds one CSV per epoch. Supports ${VAR} syntax.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" env:"BFFTRACE_SNAPSHOT_DIR"`

	// Pattern is the file name with one integer verb.
	Pattern string `json:"pattern" yaml:"pattern" env:"BFFTRACE_SNAPSHOT_PATTERN"`

	// CacheSize is the number of epochs kept in memory.
	CacheSize int `json:"cache_size" yaml:"cache_size" env:"BFFTRACE_SNAPSHOT_CACHE"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	// Path overrides <root>/.bfftrace/bfftrace.db. Supports ${VAR} syntax.
	Path string `json:"path,omitempty" yaml:"path,omitempty" env:"BFFTRACE_DB"`
}

// LoggingConfig configures bfftrace's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to .bfftrace/decisions.jsonl.
	// "trace" additionally records candidate programs.
	Level string `json:"level" yaml:"level" env:"BFFTRACE_LOG_LEVEL"`
}

// TelemetryConfig configures OTLP/HTTP trace export. Tracing is off when
// Endpoint is empty.
type TelemetryConfig struct {
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty" env:"BFFTRACE_OTLP_ENDPOINT"`
	ServiceName string  `json:"service_name" yaml:"service_name" env:"BFFTRACE_SERVICE_NAME"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio" env:"BFFTRACE_TRACE_SAMPLE_RATIO"`
}

// MetricsConfig configures metrics output.
type MetricsConfig struct {
	// Textfile, when set, receives the Prometheus registry after each run.
	Textfile string `json:"textfile,omitempty" yaml:"textfile,omitempty" env:"BFFTRACE_METRICS_FILE"`
}

// BackupConfig configures where run archives go and how many are kept.
type BackupConfig struct {
	// Dir overrides <root>/.bfftrace/backups. Supports ${VAR} syntax.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" env:"BFFTRACE_BACKUP_DIR"`

	// MaxCount keeps the newest N archives. 0 disables the count rule.
	MaxCount int `json:"max_count" yaml:"max_count" env:"BFFTRACE_BACKUP_MAX_COUNT"`

	// MaxAge keeps archives younger than this, e.g. "30d", "2w" or "720h".
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty" env:"BFFTRACE_BACKUP_MAX_AGE"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Tracker: TrackerConfig{
			Mode:          string(lineage.ModeAuto),
			Threshold:     similarity.DefaultThreshold,
			MaxIterations: verify.DefaultMaxIterations,
			Workers:       runtime.NumCPU(),
			BoundsCheck:   false,
			VerifyRoot:    true,
		},
		Snapshots: SnapshotConfig{
			Pattern:   snapshot.DefaultPattern,
			CacheSize: snapshot.DefaultCacheSize,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "bfftrace",
			SampleRatio: 1.0,
		},
		Backup: BackupConfig{
			MaxCount: 10,
		},
	}
}

// DefaultPath returns ~/.bfftrace/config.yaml.
func DefaultPath() (string, error) {
	dir, err := store.GlobalPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.bfftrace/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Snapshots.Dir = expandEnvVars(config.Snapshots.Dir)
	config.Store.Path = expandEnvVars(config.Store.Path)
	config.Backup.Dir = expandEnvVars(config.Backup.Dir)

	return config, nil
}

// ApplyEnv overrides config with any BFFTRACE_* environment variables that are set.
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Tracker.Threshold < 0 || c.Tracker.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", c.Tracker.Threshold)
	}

	if c.Tracker.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.Tracker.MaxIterations)
	}

	if c.Tracker.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Tracker.Workers)
	}

	if _, err := lineage.ParseMode(c.Tracker.Mode); err != nil {
		return fmt.Errorf("invalid mode: %s (valid: auto, linked, spatial)", c.Tracker.Mode)
	}

	if !snapshot.ValidPattern(c.Snapshots.Pattern) {
		return fmt.Errorf("invalid snapshot pattern: %q (needs one integer verb, e.g. %s)", c.Snapshots.Pattern, snapshot.DefaultPattern)
	}

	if c.Snapshots.CacheSize < 1 {
		return fmt.Errorf("cache_size must be at least 1, got %d", c.Snapshots.CacheSize)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("sample_ratio must be between 0 and 1, got %f", c.Telemetry.SampleRatio)
	}

	if c.Backup.MaxCount < 0 {
		return fmt.Errorf("backup max_count must be non-negative, got %d", c.Backup.MaxCount)
	}

	if c.Backup.MaxAge != "" {
		if _, err := backup.ParseAge(c.Backup.MaxAge); err != nil {
			return fmt.Errorf("invalid backup max_age: %w", err)
		}
	}

	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
