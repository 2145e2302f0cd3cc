package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Transport modes.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config represents the application configuration.
type Config struct {
	Transport TransportConfig `toml:"transport"`
	Storage   StorageConfig   `toml:"storage"`
	Workflow  WorkflowConfig  `toml:"workflow"`
	Logging   LoggingConfig   `toml:"logging"`
}

// TransportConfig selects and parameterizes the MCP transport.
type TransportConfig struct {
	Mode string `toml:"mode"` // "stdio" or "http"
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig configures the embedded store.
type StorageConfig struct {
	Path           string        `toml:"path"`            // Database directory path
	MaxConnections int           `toml:"max_connections"` // Cap on concurrent tool executions
	RetryWindow    time.Duration `toml:"retry_window"`    // Bounded retry for write contention
}

// WorkflowConfig locates workflow and schema files and tunes caching.
type WorkflowConfig struct {
	ConfigDir  string        `toml:"config_dir"`  // Directory containing .workflow/ (default: cwd)
	ReloadTTL  time.Duration `toml:"reload_ttl"`  // Max staleness of cached workflow/schema config
	StaleAfter time.Duration `toml:"stale_after"` // Items in role work older than this count as stalled
}

// LoggingConfig configures the arbor logger.
type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values. Only
// user-facing settings are exposed in trellis.toml; technical parameters
// are hardcoded here for stability.
func NewDefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Mode: TransportStdio,
			Host: "0.0.0.0",
			Port: 3001,
		},
		Storage: StorageConfig{
			Path:           "data/items.db",
			MaxConnections: 10,
			RetryWindow:    5 * time.Second,
		},
		Workflow: WorkflowConfig{
			ConfigDir:  "",
			ReloadTTL:  60 * time.Second,
			StaleAfter: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// A missing file is not an error; env variables always win.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if config.Transport.Mode != TransportStdio && config.Transport.Mode != TransportHTTP {
		return nil, fmt.Errorf("invalid transport %q (expected stdio or http)", config.Transport.Mode)
	}
	if config.Storage.MaxConnections < 1 {
		config.Storage.MaxConnections = 1
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if transport := os.Getenv("TRANSPORT"); transport != "" {
		config.Transport.Mode = transport
	}
	if host := os.Getenv("HTTP_HOST"); host != "" {
		config.Transport.Host = host
	}
	if port := os.Getenv("HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Transport.Port = p
		}
	}

	if path := os.Getenv("DATABASE_PATH"); path != "" {
		config.Storage.Path = path
	}
	if maxConns := os.Getenv("DATABASE_MAX_CONNECTIONS"); maxConns != "" {
		if mc, err := strconv.Atoi(maxConns); err == nil {
			config.Storage.MaxConnections = mc
		}
	}

	if configDir := os.Getenv("CONFIG_DIR"); configDir != "" {
		config.Workflow.ConfigDir = configDir
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ResolveConfigDir returns the directory that holds .workflow/. Falls back
// to the working directory when unset.
func (c *Config) ResolveConfigDir() string {
	if c.Workflow.ConfigDir != "" {
		return c.Workflow.ConfigDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
