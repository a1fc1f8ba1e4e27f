package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Schedule kinds.
const (
	ScheduleHourly = "hourly"
	ScheduleDaily  = "daily"
	ScheduleOnce   = "once"
)

// Task is one runnable job definition. Tasks arrive from a Provider fully
// resolved: Command carries the final executable and argv, never a symbolic
// reference the core would have to look up.
//
// A Task is immutable for the duration of a pass.
type Task struct {
	Name string `json:"name"`
	User string `json:"user"`

	Command Command `json:"command"`

	// Module and Script are optional identity hints. Job identity prefers
	// module, then script, then the task name.
	Module string `json:"module,omitempty"`
	Script string `json:"script,omitempty"`

	Schedule string `json:"schedule"`

	// Time is "HH:MM". Required for daily schedules, informational otherwise.
	Time string `json:"time,omitempty"`

	// Timeout bounds a supervised run. Zero falls back to the configured
	// default. Accepts a Go duration string ("90s") or bare seconds (90).
	Timeout Timeout `json:"timeout,omitempty"`

	// Env overrides the base environment. A null value is dropped before
	// the merge, leaving the base environment's value (if any) in place.
	Env map[string]*string `json:"env,omitempty"`

	WorkDir string `json:"work_dir,omitempty"`
	Tag     string `json:"tag,omitempty"`

	// Detach runs the task fire-and-forget: spawn, record the window, move on.
	Detach bool `json:"detach,omitempty"`
}

type Command struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

// Identifier returns the stable command identifier used for job identity.
func (t Task) Identifier() string {
	if s := strings.TrimSpace(t.Module); s != "" {
		return s
	}
	if s := strings.TrimSpace(t.Script); s != "" {
		return s
	}
	return strings.TrimSpace(t.Name)
}

// Timeout accepts either a Go duration string or a bare number of seconds.
type Timeout time.Duration

func (t Timeout) Duration() time.Duration { return time.Duration(t) }

func (t *Timeout) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*t = 0
		return nil
	}
	if s[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*t = 0
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", raw, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid timeout %q: must be >= 0", raw)
		}
		*t = Timeout(d)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return err
	}
	if secs < 0 {
		return fmt.Errorf("invalid timeout %v: must be >= 0", secs)
	}
	*t = Timeout(time.Duration(secs * float64(time.Second)))
	return nil
}

func (t Timeout) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(t).String())
}

// Status tags how one task invocation ended.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Result is the outcome of one task invocation. Skips (not due, lock busy)
// are first-class outcomes, not failures.
type Result struct {
	Status   Status
	ExitCode int
	Reason   string
	Err      error

	// Window is the run window the attempt was held against, when the
	// attempt got far enough to compute one.
	Window string
}

// Summary tallies one scheduler pass.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

func (s *Summary) Add(r Result) {
	switch r.Status {
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	default:
		s.Skipped++
	}
}
