// Package config loads statekit.json configuration for the statekit CLI,
// with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "statekit.json"

	// DefaultPort is the default inspector port.
	DefaultPort = 7333

	// DefaultHost is the default inspector host.
	DefaultHost = "localhost"

	// DefaultNamespace is the default Prometheus metrics namespace.
	DefaultNamespace = "statekit"
)

// Config represents the complete statekit.json configuration.
// Every field can be overridden through STATEKIT_* environment variables,
// which take precedence over the file.
type Config struct {
	// Name is the application name, used in logs.
	Name string `json:"name,omitempty" env:"STATEKIT_NAME"`

	// Inspector contains the inspector HTTP server configuration.
	Inspector InspectorConfig `json:"inspector,omitempty"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// Log contains logging configuration.
	Log LogConfig `json:"log,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// InspectorConfig contains the inspector HTTP server settings.
type InspectorConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty" env:"STATEKIT_INSPECTOR_HOST"`

	// Port is the port to serve the inspector on.
	Port int `json:"port,omitempty" env:"STATEKIT_INSPECTOR_PORT"`

	// Tracing enables an OpenTelemetry span per inspector request.
	Tracing bool `json:"tracing,omitempty" env:"STATEKIT_INSPECTOR_TRACING"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled controls whether registry metrics are collected and served.
	Enabled bool `json:"enabled,omitempty" env:"STATEKIT_METRICS_ENABLED"`

	// Namespace is the metrics namespace.
	Namespace string `json:"namespace,omitempty" env:"STATEKIT_METRICS_NAMESPACE"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `json:"level,omitempty" env:"STATEKIT_LOG_LEVEL"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Name: "statekit",
		Inspector: InspectorConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultNamespace,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads statekit.json from the given directory, falling back to
// defaults when the file does not exist, then applies environment
// overrides.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path, falling back
// to defaults when the file does not exist, then applies environment
// overrides.
func LoadFile(path string) (*Config, error) {
	cfg := New()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus environment.
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		cfg.configPath = path
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from, or "" when the
// config came from defaults.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in zero-valued fields after file and environment
// merging.
func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "statekit"
	}
	if c.Inspector.Host == "" {
		c.Inspector.Host = DefaultHost
	}
	if c.Inspector.Port == 0 {
		c.Inspector.Port = DefaultPort
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Inspector.Port < 1 || c.Inspector.Port > 65535 {
		return fmt.Errorf("inspector port %d out of range", c.Inspector.Port)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// InspectorAddr returns the host:port address for the inspector server.
func (c *Config) InspectorAddr() string {
	return net.JoinHostPort(c.Inspector.Host, strconv.Itoa(c.Inspector.Port))
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
