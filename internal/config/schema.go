package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelemetryConfig controls OpenTelemetry tracing. Tracing stays off unless
// an OTLP/HTTP endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"otel_endpoint,omitempty" env:"RWSPLIT_OTEL_ENDPOINT"`
	Disabled    bool   `yaml:"disabled,omitempty" env:"RWSPLIT_OTEL_DISABLED"`
	ServiceName string `yaml:"service_name" env:"RWSPLIT_SERVICE_NAME"`
}

// Enabled reports whether spans should be exported
func (t TelemetryConfig) Enabled() bool {
	return !t.Disabled && t.Endpoint != ""
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr string `yaml:"addr" env:"RWSPLIT_ADDR"`
}

// DatabaseConfig describes the primary and replica pools.
// Endpoints are SQLite database paths.
type DatabaseConfig struct {
	PrimaryEndpoint       string         `yaml:"primary_endpoint" env:"RWSPLIT_PRIMARY_ENDPOINT"`
	ReplicaEndpoint       string         `yaml:"replica_endpoint" env:"RWSPLIT_REPLICA_ENDPOINT"`
	PoolMinSize           int            `yaml:"pool_min_size" env:"RWSPLIT_POOL_MIN_SIZE"`
	PoolMaxSize           int            `yaml:"pool_max_size" env:"RWSPLIT_POOL_MAX_SIZE"`
	AcquisitionTimeoutMs  int            `yaml:"acquisition_timeout_ms" env:"RWSPLIT_ACQUISITION_TIMEOUT_MS"`
	ReplicaFallbackPolicy FallbackPolicy `yaml:"replica_fallback_policy" env:"RWSPLIT_REPLICA_FALLBACK_POLICY"`
	HealthCheckInterval   Duration       `yaml:"health_check_interval" env:"RWSPLIT_HEALTH_CHECK_INTERVAL"`
}

// AcquisitionTimeout returns the acquisition bound as a time.Duration
func (d DatabaseConfig) AcquisitionTimeout() time.Duration {
	return time.Duration(d.AcquisitionTimeoutMs) * time.Millisecond
}

// Duration wraps time.Duration for YAML and environment unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
