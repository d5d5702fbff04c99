package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/docstore-mcp/internal/storage"
	"github.com/dshills/docstore-mcp/pkg/types"
)

// Environment variables that override file settings
const (
	EnvDBPath   = "DOCSTORE_DB_PATH"
	EnvLogLevel = "DOCSTORE_LOG_LEVEL"
	EnvLogEnv   = "DOCSTORE_ENV"
)

// DefaultNotFoundMessage is the body of a null document when none is configured
const DefaultNotFoundMessage = "No matching document found."

// Config holds the docstore configuration.
type Config struct {
	Database    DatabaseConfig     `yaml:"database"`
	Documents   DocumentsConfig    `yaml:"documents"`
	Logging     LoggingConfig      `yaml:"logging"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Collections []CollectionConfig `yaml:"collections"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
}

// DocumentsConfig holds document set behaviour.
type DocumentsConfig struct {
	OperationTimeoutSec int      `yaml:"operation_timeout_sec"` // 0 = no timeout
	NotFoundMessage     string   `yaml:"not_found_message"`
	DefaultPageSize     int      `yaml:"default_page_size"`
	MaxPageSize         int      `yaml:"max_page_size"`
	PatternCacheSize    int      `yaml:"pattern_cache_size"`
	StatsKinds          []string `yaml:"stats_kinds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Env   string `yaml:"env"`   // local, dev, prod (default: local)
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// MetricsConfig holds the Prometheus listener settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// CollectionConfig declares a collection opened at startup.
type CollectionConfig struct {
	Name            string `yaml:"name"`
	NotFoundMessage string `yaml:"not_found_message"`
}

// Load reads configuration from a YAML file. An empty path yields the defaults.
// Environment overrides are applied after the file and before validation.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}

		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (default ".env").
// Missing files are ignored; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogEnv); v != "" {
		c.Logging.Env = v
	}
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "docstore.db"
	}
	if c.Database.BusyTimeoutMS <= 0 {
		c.Database.BusyTimeoutMS = 5000
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 1
	}
	if c.Documents.NotFoundMessage == "" {
		c.Documents.NotFoundMessage = DefaultNotFoundMessage
	}
	if c.Documents.DefaultPageSize <= 0 {
		c.Documents.DefaultPageSize = 20
	}
	if c.Documents.MaxPageSize <= 0 {
		c.Documents.MaxPageSize = 100
	}
	if c.Documents.PatternCacheSize <= 0 {
		c.Documents.PatternCacheSize = storage.DefaultPatternCacheSize
	}
	if len(c.Documents.StatsKinds) == 0 {
		c.Documents.StatsKinds = []string{types.KindSpeaker, types.KindMention}
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "local"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Documents.OperationTimeoutSec < 0 {
		return fmt.Errorf("documents.operation_timeout_sec must not be negative, got %d", c.Documents.OperationTimeoutSec)
	}
	if c.Documents.DefaultPageSize > c.Documents.MaxPageSize {
		return fmt.Errorf("documents.default_page_size (%d) exceeds documents.max_page_size (%d)",
			c.Documents.DefaultPageSize, c.Documents.MaxPageSize)
	}
	switch c.Logging.Env {
	case "local", "dev", "prod":
	default:
		return fmt.Errorf("logging.env must be one of local, dev, prod, got %q", c.Logging.Env)
	}
	seen := make(map[string]bool, len(c.Collections))
	for i, col := range c.Collections {
		if err := storage.ValidateCollectionName(col.Name); err != nil {
			return fmt.Errorf("collections[%d]: %w", i, err)
		}
		if seen[col.Name] {
			return fmt.Errorf("collections[%d]: duplicate collection %q", i, col.Name)
		}
		seen[col.Name] = true
	}
	return nil
}

// StorageOptions converts database settings to storage options
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		MaxOpenConns: c.Database.MaxOpenConns,
		BusyTimeout:  time.Duration(c.Database.BusyTimeoutMS) * time.Millisecond,
	}
}

// OperationTimeout returns the per-operation timeout, zero when disabled
func (c *Config) OperationTimeout() time.Duration {
	return time.Duration(c.Documents.OperationTimeoutSec) * time.Second
}

// NotFoundMessage returns the configured message for a collection, falling
// back to the global one
func (c *Config) NotFoundMessage(collection string) string {
	for _, col := range c.Collections {
		if col.Name == collection && col.NotFoundMessage != "" {
			return col.NotFoundMessage
		}
	}
	return c.Documents.NotFoundMessage
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
