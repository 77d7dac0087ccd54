package sqlitekit

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains the settings for one database connection.
// It can be built in code or loaded from YAML via LoadConfig.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string `yaml:"path"`

	// WALMode enables Write-Ahead Logging for better concurrent access.
	// Recommended: true (allows concurrent reads during writes).
	WALMode bool `yaml:"wal_mode"`

	// ForeignKeys enables foreign-key constraint enforcement.
	ForeignKeys bool `yaml:"foreign_keys"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	// Prevents "database is locked" errors under contention.
	BusyTimeout int `yaml:"busy_timeout"`

	// Logger receives the connection's structured log records.
	// Defaults to slog.Default when nil.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults. The Path must
// still be set by the caller.
func DefaultConfig() Config {
	return Config{
		WALMode:     true,
		ForeignKeys: true,
		BusyTimeout: 5,
	}
}

// LoadConfig reads a Config from a YAML file, applying defaults first
// and environment variable overrides (SQLITEKIT_DATABASE_PATH) after.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}

	if v := os.Getenv("SQLITEKIT_DATABASE_PATH"); v != "" {
		cfg.Path = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []string

	if c.Path == "" {
		errs = append(errs, "path is required")
	}
	if c.BusyTimeout < 0 {
		errs = append(errs, "busy_timeout must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
