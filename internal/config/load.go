package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileName is the config file taskward looks for under the data dir.
const DefaultFileName = "config.yaml"

// DefaultPath returns the default config file location.
func DefaultPath() string { return filepath.Join(DefaultDataDir(), DefaultFileName) }

// DefaultDataDir resolves the data directory: $TASKWARD_DATA_DIR when set,
// otherwise ~/.taskward.
func DefaultDataDir() string {
	if v := strings.TrimSpace(os.Getenv("TASKWARD_DATA_DIR")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ".taskward"
	}
	return filepath.Join(home, ".taskward")
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Load reads and validates the config file at path. The caller decides
// whether a missing file is fatal; on the default path it shouldn't be,
// Default() covers that case.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := DecodeStrict(path, b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
