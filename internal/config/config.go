// Package config handles loading and validating snakepit configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for snakepit.
type Config struct {
	Workspace  string           `json:"workspace,omitempty" yaml:"workspace,omitempty"` // Workspace root. Default: ~/.snakepit/workspace. Override: SNAKEPIT_WORKSPACE env var.
	Sandbox    SandboxConfig    `json:"sandbox" yaml:"sandbox"`
	Validation ValidationConfig `json:"validation" yaml:"validation"`
	Installer  InstallerConfig  `json:"installer" yaml:"installer"`
	History    HistoryConfig    `json:"history" yaml:"history"`
	Janitor    *JanitorConfig   `json:"janitor,omitempty" yaml:"janitor,omitempty"`     // nil = orphan sweeping disabled
	Metrics    bool             `json:"metrics" yaml:"metrics"`                         // enable the Prometheus collector
	LogLevel   string           `json:"log_level" yaml:"log_level"`                     // "debug", "info" (default), "warn", "error"
}

// SandboxConfig configures sandbox provisioning and execution.
type SandboxConfig struct {
	Image              string `json:"image" yaml:"image"`                               // Container base image. Default: python:3.11-slim.
	Engine             string `json:"engine,omitempty" yaml:"engine,omitempty"`         // Force "podman" or "docker". Empty = auto-detect.
	BuildTimeoutS      int    `json:"build_timeout_s" yaml:"build_timeout_s"`           // Image build / package install timeout. Default: 120.
	ValidationTimeoutS int    `json:"validation_timeout_s" yaml:"validation_timeout_s"` // Test program execution timeout. Default: 60.
	Python             string `json:"python,omitempty" yaml:"python,omitempty"`         // Host interpreter used to seed venv sandboxes. Default: python3.
}

// ValidationConfig configures test generation and scoring.
type ValidationConfig struct {
	Level             string  `json:"level" yaml:"level"`                               // basic|standard|comprehensive|security|performance. Default: standard.
	PassThreshold     float64 `json:"pass_threshold" yaml:"pass_threshold"`             // Score required to approve. Default: 0.8.
	ImportTimeBudgetS float64 `json:"import_time_budget_s" yaml:"import_time_budget_s"` // Performance fragment budget. Default: 5.0.
}

// InstallerConfig configures the external installer invoked at conscription.
type InstallerConfig struct {
	Binary   string `json:"binary,omitempty" yaml:"binary,omitempty"` // Installer binary. Empty = discover (snakepit, then pip).
	TimeoutS int    `json:"timeout_s" yaml:"timeout_s"`               // Install timeout. Default: 300.
	DryRun   bool   `json:"dry_run" yaml:"dry_run"`                   // Report success without invoking anything. Override: SNAKEPIT_DRY_RUN env var.
}

// HistoryConfig configures the append-only validation history store.
type HistoryConfig struct {
	Driver      string `json:"driver" yaml:"driver"`                                 // "sqlite" (default) or "postgres".
	MaxEntries  int    `json:"max_entries" yaml:"max_entries"`                       // Oldest entries dropped beyond this. Default: 1000.
	SQLitePath  string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`   // Default: derived from workspace.
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"` // Override: SNAKEPIT_DB_DSN env var.
}

// JanitorConfig configures the orphaned-sandbox sweeper.
type JanitorConfig struct {
	Schedule string `json:"schedule" yaml:"schedule"`   // Cron expression. Default: "*/30 * * * *".
	MaxAgeS  int    `json:"max_age_s" yaml:"max_age_s"` // Sandbox dirs older than this are removed. Default: 3600.
}

// Defaults applied when fields are zero.
const (
	DefaultImage             = "python:3.11-slim"
	DefaultBuildTimeout      = 120 * time.Second
	DefaultValidationTimeout = 60 * time.Second
	DefaultInstallTimeout    = 300 * time.Second
	DefaultPassThreshold     = 0.8
	DefaultImportTimeBudget  = 5.0
	DefaultHistoryMax        = 1000
	DefaultJanitorSchedule   = "*/30 * * * *"
	DefaultJanitorMaxAge     = time.Hour
)

// Default returns a Config populated with all defaults.
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Image:              DefaultImage,
			BuildTimeoutS:      int(DefaultBuildTimeout.Seconds()),
			ValidationTimeoutS: int(DefaultValidationTimeout.Seconds()),
			Python:             "python3",
		},
		Validation: ValidationConfig{
			Level:             "standard",
			PassThreshold:     DefaultPassThreshold,
			ImportTimeBudgetS: DefaultImportTimeBudget,
		},
		Installer: InstallerConfig{
			TimeoutS: int(DefaultInstallTimeout.Seconds()),
		},
		History: HistoryConfig{
			Driver:     "sqlite",
			MaxEntries: DefaultHistoryMax,
		},
		LogLevel: "info",
	}
}

// DefaultConfigPath returns the default config file path (~/.snakepit/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "snakepit.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".snakepit", "config.yaml")
}

// Load reads a YAML or JSON config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Environment variables take precedence over file values.
// A missing file is not an error — defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath()
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	default:
		switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
		case ".yml", ".yaml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
			}
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
// Env vars take precedence over config file values.
func applyEnvOverrides(cfg *Config) {
	if envWS := os.Getenv("SNAKEPIT_WORKSPACE"); envWS != "" {
		cfg.Workspace = envWS
	}
	if envDSN := os.Getenv("SNAKEPIT_DB_DSN"); envDSN != "" {
		cfg.History.Driver = "postgres"
		cfg.History.PostgresDSN = envDSN
	}
	if envDry := os.Getenv("SNAKEPIT_DRY_RUN"); envDry == "1" || strings.EqualFold(envDry, "true") {
		cfg.Installer.DryRun = true
	}
	if envEngine := os.Getenv("SNAKEPIT_ENGINE"); envEngine != "" {
		cfg.Sandbox.Engine = envEngine
	}
}

// applyDefaults backfills zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Sandbox.Image == "" {
		cfg.Sandbox.Image = def.Sandbox.Image
	}
	if cfg.Sandbox.BuildTimeoutS <= 0 {
		cfg.Sandbox.BuildTimeoutS = def.Sandbox.BuildTimeoutS
	}
	if cfg.Sandbox.ValidationTimeoutS <= 0 {
		cfg.Sandbox.ValidationTimeoutS = def.Sandbox.ValidationTimeoutS
	}
	if cfg.Sandbox.Python == "" {
		cfg.Sandbox.Python = def.Sandbox.Python
	}
	if cfg.Validation.Level == "" {
		cfg.Validation.Level = def.Validation.Level
	}
	if cfg.Validation.PassThreshold <= 0 {
		cfg.Validation.PassThreshold = def.Validation.PassThreshold
	}
	if cfg.Validation.ImportTimeBudgetS <= 0 {
		cfg.Validation.ImportTimeBudgetS = def.Validation.ImportTimeBudgetS
	}
	if cfg.Installer.TimeoutS <= 0 {
		cfg.Installer.TimeoutS = def.Installer.TimeoutS
	}
	if cfg.History.Driver == "" {
		cfg.History.Driver = def.History.Driver
	}
	if cfg.History.MaxEntries <= 0 {
		cfg.History.MaxEntries = def.History.MaxEntries
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Janitor != nil {
		if cfg.Janitor.Schedule == "" {
			cfg.Janitor.Schedule = DefaultJanitorSchedule
		}
		if cfg.Janitor.MaxAgeS <= 0 {
			cfg.Janitor.MaxAgeS = int(DefaultJanitorMaxAge.Seconds())
		}
	}
}

// Validate checks enum fields and cross-field constraints.
func (c *Config) Validate() error {
	switch c.Validation.Level {
	case "basic", "standard", "comprehensive", "security", "performance":
	default:
		return fmt.Errorf("invalid validation level %q", c.Validation.Level)
	}
	switch c.History.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid history driver %q", c.History.Driver)
	}
	if c.History.Driver == "postgres" && c.History.PostgresDSN == "" {
		return fmt.Errorf("history driver is postgres but no DSN configured")
	}
	switch c.Sandbox.Engine {
	case "", "podman", "docker":
	default:
		return fmt.Errorf("invalid sandbox engine %q", c.Sandbox.Engine)
	}
	if c.Validation.PassThreshold > 1 {
		return fmt.Errorf("pass threshold %v out of range (0,1]", c.Validation.PassThreshold)
	}
	return nil
}

// BuildTimeout returns the sandbox build timeout as a duration.
func (c *Config) BuildTimeout() time.Duration {
	return time.Duration(c.Sandbox.BuildTimeoutS) * time.Second
}

// ValidationTimeout returns the test execution timeout as a duration.
func (c *Config) ValidationTimeout() time.Duration {
	return time.Duration(c.Sandbox.ValidationTimeoutS) * time.Second
}

// InstallTimeout returns the external installer timeout as a duration.
func (c *Config) InstallTimeout() time.Duration {
	return time.Duration(c.Installer.TimeoutS) * time.Second
}

// resolvePath expands a leading ~ to the user's home directory.
func resolvePath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
