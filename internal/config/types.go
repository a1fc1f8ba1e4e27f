package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config is the program configuration, read from a JSON or YAML file.
// Every path defaults to a location under the data directory so a bare
// install works without a config file at all.
type Config struct {
	// DataDir anchors the default paths (state, logs, tasks file, history).
	DataDir string `json:"data_dir,omitempty"`

	// WorkDir is the default working directory for tasks that don't set one.
	// Empty means tasks run wherever taskward was started.
	WorkDir string `json:"work_dir,omitempty"`

	// TasksFile is the task definitions file (JSON or YAML).
	TasksFile string `json:"tasks_file,omitempty"`

	// EnvFile is an optional dotenv file loaded as the base environment for
	// every task. Task env entries override it.
	EnvFile string `json:"env_file,omitempty"`

	// DefaultTimeout is a Go duration string (e.g. "45s", "2m") applied to
	// supervised tasks that don't set their own timeout.
	// Empty means "60s". Use "0s" to disable the default entirely.
	DefaultTimeout string `json:"default_timeout,omitempty"`

	Logging LoggingConfig  `json:"logging"`
	History *HistoryConfig `json:"history,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	Dir     string         `json:"dir,omitempty"`
	Journal LoggingJournal `json:"journal"`
}

type LoggingJournal struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// HistoryConfig controls the optional run history store.
//
// Example:
//
//	"history": { "driver": "sqlite" }
type HistoryConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`
	// Keep caps how many of the newest records are retained. 0 keeps everything.
	Keep        int    `json:"keep,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Normalize fills unset fields with defaults derived from the data dir.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir()
	}
	if strings.TrimSpace(c.TasksFile) == "" {
		c.TasksFile = filepath.Join(c.DataDir, "tasks.yaml")
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = filepath.Join(c.DataDir, "logs")
	}
}

// StateDir is where lock and last-run records live.
func (c *Config) StateDir() string { return filepath.Join(c.DataDir, "state") }

// TaskTimeout returns the supervision timeout for tasks that don't set one.
// Zero means unlimited.
func (c *Config) TaskTimeout() (time.Duration, error) {
	s := strings.TrimSpace(c.DefaultTimeout)
	if s == "" {
		return time.Minute, nil
	}
	return ParseDurationField("default_timeout", s)
}

// Validate rejects values that would otherwise only fail mid-pass.
func (c *Config) Validate() error {
	if _, err := c.TaskTimeout(); err != nil {
		return err
	}
	if c.Logging.Journal.RatePerSec < 0 {
		return fmt.Errorf("logging.journal.rate_per_sec: must be >= 0")
	}
	if c.History != nil {
		switch strings.ToLower(strings.TrimSpace(c.History.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("history.driver: unknown driver %q (want none, file or sqlite)", c.History.Driver)
		}
		if _, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout); err != nil {
			return err
		}
		if c.History.Keep < 0 {
			return fmt.Errorf("history.keep: must be >= 0")
		}
	}
	return nil
}
