// Package config provides configuration management for rwsplit.
//
// Configuration is read once at startup and is immutable afterwards. Values
// come from, in increasing precedence:
//   - built-in defaults
//   - the YAML config file
//   - RWSPLIT_* environment variables
//
// Config file locations (priority order):
//  1. $RWSPLIT_CONFIG
//  2. ./rwsplit.yaml
//  3. ~/.config/rwsplit/config.yaml
//  4. /etc/rwsplit/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr                 = ":3000"
	DefaultPoolMinSize          = 2
	DefaultPoolMaxSize          = 10
	DefaultAcquisitionTimeoutMs = 5000
	DefaultHealthCheckInterval  = 10 * time.Second
	DefaultServiceName          = "rwsplit"
)

// Load finds and loads the config file, or returns defaults if none found.
// Environment overrides are applied in both cases.
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		cfg := &Config{}
		if err := ApplyEnv(cfg); err != nil {
			return nil, "", err
		}
		cfg.applyDefaults()
		return cfg, "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, path, err
	}
	cfg.applyDefaults()

	return &cfg, path, nil
}

// ApplyEnv overrides cfg with any RWSPLIT_* variables that are set
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			PrimaryEndpoint: "./primary.db",
			ReplicaEndpoint: "./replica.db",
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults. Endpoints are left
// alone: a missing endpoint is a startup error, not something to guess.
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}

	db := &c.Database
	if db.PoolMinSize == 0 {
		db.PoolMinSize = DefaultPoolMinSize
	}
	if db.PoolMaxSize == 0 {
		db.PoolMaxSize = max(DefaultPoolMaxSize, db.PoolMinSize)
	}
	if db.AcquisitionTimeoutMs == 0 {
		db.AcquisitionTimeoutMs = DefaultAcquisitionTimeoutMs
	}
	if db.ReplicaFallbackPolicy == "" {
		db.ReplicaFallbackPolicy = FallbackError
	}
	if db.HealthCheckInterval == 0 {
		db.HealthCheckInterval = Duration(DefaultHealthCheckInterval)
	}
}

// ValidationError reports an out-of-range configuration value
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks pool bounds, timeouts and policy
func (d DatabaseConfig) Validate() error {
	switch {
	case d.PoolMinSize < 0:
		return &ValidationError{Field: "pool_min_size", Reason: "must not be negative"}
	case d.PoolMaxSize < 1:
		return &ValidationError{Field: "pool_max_size", Reason: "must be at least 1"}
	case d.PoolMinSize > d.PoolMaxSize:
		return &ValidationError{
			Field:  "pool_min_size",
			Reason: fmt.Sprintf("%d exceeds pool_max_size %d", d.PoolMinSize, d.PoolMaxSize),
		}
	case d.AcquisitionTimeoutMs <= 0:
		return &ValidationError{Field: "acquisition_timeout_ms", Reason: "must be positive"}
	case d.HealthCheckInterval < 0:
		return &ValidationError{Field: "health_check_interval", Reason: "must not be negative"}
	}

	if _, err := ParseFallbackPolicy(string(d.ReplicaFallbackPolicy)); err != nil {
		return &ValidationError{Field: "replica_fallback_policy", Reason: err.Error()}
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	db := c.Database
	return fmt.Sprintf("primary=%s replica=%s pool=%d..%d timeout=%s fallback=%s health=%s",
		db.PrimaryEndpoint, db.ReplicaEndpoint, db.PoolMinSize, db.PoolMaxSize,
		db.AcquisitionTimeout(), db.ReplicaFallbackPolicy, db.HealthCheckInterval.Duration())
}
