// Package config loads and validates the engine configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/starlance/starlance/pkg/telemetry"
)

// Config is the top-level engine configuration.
type Config struct {
	// MissionsDir is the directory scanned for mission files.
	MissionsDir string `yaml:"missions_dir" validate:"required"`

	// UniversePath is the universe definition file.
	UniversePath string `yaml:"universe_path" validate:"required"`

	// EnvPath is an optional Starlark file whose globals are exposed to
	// conditional expressions, frozen after load.
	EnvPath string `yaml:"env_path,omitempty"`

	// Seed seeds the admission sampler. 0 means time-based.
	Seed int64 `yaml:"seed,omitempty"`

	// MaxScriptSteps bounds a single script run. 0 means unbounded.
	MaxScriptSteps uint64 `yaml:"max_script_steps,omitempty"`

	// Watch enables live reloading of mission files.
	Watch bool `yaml:"watch,omitempty"`

	// Store configures the save database.
	Store StoreConfig `yaml:"store"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// StoreConfig configures the save database.
type StoreConfig struct {
	// Path is the SQLite database file. Empty disables the save store.
	Path string `yaml:"path,omitempty"`

	// MaxOpenConns caps open connections. 0 uses the default.
	MaxOpenConns int `yaml:"max_open_conns,omitempty" validate:"gte=0"`

	// MaxIdleConns caps idle connections. 0 uses the default.
	MaxIdleConns int `yaml:"max_idle_conns,omitempty" validate:"gte=0"`

	// ConnMaxLifetime bounds connection reuse. 0 uses the default.
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime,omitempty"`
}

// Duration wraps time.Duration so config files can use strings like "30m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		MissionsDir:    "dat/missions",
		UniversePath:   "dat/universe.yaml",
		MaxScriptSteps: 100000,
		Telemetry:      *telemetry.DefaultConfig(),
	}
}

// Load reads and validates a configuration file. Missing optional fields
// fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}
