package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store drivers understood by the CLI.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StoreConfig selects where permit documents are persisted
type StoreConfig struct {
	// Driver is one of file, sqlite, postgres
	Driver string `yaml:"driver"`

	// Path is the permit directory (file) or database file (sqlite)
	Path string `yaml:"path"`

	// DSN is the postgres connection string
	DSN string `yaml:"dsn"`
}

// MetricsConfig controls the OpenTelemetry meter provider installed by the CLI
type MetricsConfig struct {
	// Enabled installs an in-process meter provider and prints counters on exit
	Enabled bool `yaml:"enabled"`
}

// Config represents ptw configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// Operator is recorded as the actor of lifecycle actions when no --as flag is given
	Operator string `yaml:"operator"`

	// SchemaDir overrides the embedded questionnaire registry
	SchemaDir string `yaml:"schema_dir"`

	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Driver: DriverFile,
			Path:   filepath.Join(DirName, "permits"),
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.Operator != "" {
		cfg.Operator = fileCfg.Operator
	}
	if fileCfg.SchemaDir != "" {
		cfg.SchemaDir = fileCfg.SchemaDir
	}

	// Nested sections merge key by key so an explicit empty value still wins
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if section, ok := rawMap["store"].(map[string]interface{}); ok {
			if _, exists := section["driver"]; exists {
				cfg.Store.Driver = fileCfg.Store.Driver
				if _, hasPath := section["path"]; !hasPath {
					cfg.Store.Path = defaultPathFor(cfg.Store.Driver)
				}
			}
			if _, exists := section["path"]; exists {
				cfg.Store.Path = fileCfg.Store.Path
			}
			if _, exists := section["dsn"]; exists {
				cfg.Store.DSN = fileCfg.Store.DSN
			}
		}
		if section, ok := rawMap["metrics"].(map[string]interface{}); ok {
			if _, exists := section["enabled"]; exists {
				cfg.Metrics.Enabled = fileCfg.Metrics.Enabled
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .ptw/config.yaml in the specified directory.
// Relative store and schema paths are resolved against dir.
func LoadConfigFromDir(dir string) (*Config, error) {
	cfg, err := LoadConfig(filepath.Join(dir, DirName, FileName))
	if err != nil {
		return nil, err
	}
	cfg.resolve(dir)
	return cfg, nil
}

func (c *Config) resolve(base string) {
	if c.Store.Path != "" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(base, c.Store.Path)
	}
	if c.SchemaDir != "" && !filepath.IsAbs(c.SchemaDir) {
		c.SchemaDir = filepath.Join(base, c.SchemaDir)
	}
}

func defaultPathFor(driver string) string {
	switch driver {
	case DriverSQLite:
		return filepath.Join(DirName, "permits.db")
	case DriverFile:
		return filepath.Join(DirName, "permits")
	default:
		return ""
	}
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(logLevel, operator, driver, storePath, dsn *string) {
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if operator != nil {
		c.Operator = *operator
	}
	if driver != nil {
		c.Store.Driver = *driver
		if storePath == nil {
			c.Store.Path = defaultPathFor(*driver)
		}
	}
	if storePath != nil {
		c.Store.Path = *storePath
	}
	if dsn != nil {
		c.Store.DSN = *dsn
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	switch c.Store.Driver {
	case DriverFile, DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path cannot be empty for the %s driver", c.Store.Driver)
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn cannot be empty for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid store.driver %q, must be one of: file, sqlite, postgres", c.Store.Driver)
	}

	return nil
}
