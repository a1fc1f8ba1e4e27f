package history

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the run history store.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	Keep        int           // newest records retained; 0 keeps everything
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one task attempt.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID       string    `json:"id"`
	PassID   string    `json:"pass_id,omitempty"`
	User     string    `json:"user"`
	Task     string    `json:"task"`
	Window   string    `json:"window,omitempty"`
	Status   string    `json:"status"`
	ExitCode int       `json:"exit_code"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
	TookMS   int64     `json:"took_ms"`
}
