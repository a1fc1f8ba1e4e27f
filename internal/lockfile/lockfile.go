// Package lockfile implements the per-job on-disk state coordinating
// overlapping scheduler passes: a lock file holding the spawned child's PID
// and a last-run file recording the window of the last verified success.
//
// Both files are read then written without an OS advisory lock. That is a
// deliberate trade for a single-host, single-scheduler deployment: stale
// state self-heals through the PID liveness probe on the next pass.
package lockfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskward/internal/proc"
	logx "taskward/pkg/logx"
)

// LockRecord is the lock file body.
type LockRecord struct {
	PID int `json:"pid"`
}

// LastRunRecord remembers the last successfully completed window.
type LastRunRecord struct {
	Window    string    `json:"window"`
	Timestamp time.Time `json:"timestamp"`
}

// Manager owns the lock and last-run files for every job identity under one
// state directory.
type Manager struct {
	dir   string
	probe proc.Probe
	log   logx.Logger
}

func NewManager(dir string, probe proc.Probe, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if probe == nil {
		probe = proc.System()
	}
	return &Manager{dir: dir, probe: probe, log: log}
}

func (m *Manager) lockPath(jobID string) string    { return filepath.Join(m.dir, jobID+".lock") }
func (m *Manager) lastRunPath(jobID string) string { return filepath.Join(m.dir, jobID+".lastrun") }

// TryAcquire reports whether jobID is busy, i.e. a lock file exists and its
// recorded PID is still alive. A missing file, an unreadable record or a
// dead PID all mean "not busy"; the stale record gets overwritten by the
// next WriteLock rather than cleaned up here.
func (m *Manager) TryAcquire(jobID string) (busy bool) {
	b, err := os.ReadFile(m.lockPath(jobID))
	if err != nil {
		return false
	}
	var rec LockRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		m.log.Debug("ignoring unreadable lock file", logx.String("job", jobID), logx.Err(err))
		return false
	}
	return m.probe.Alive(rec.PID)
}

// WriteLock records the spawned child's PID. Best-effort by contract: the
// caller logs a failure and carries on with the run.
func (m *Manager) WriteLock(jobID string, pid int) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(LockRecord{PID: pid})
	if err != nil {
		return err
	}
	return os.WriteFile(m.lockPath(jobID), b, 0o600)
}

// ReleaseLock deletes the lock file. Supervised runs call it on every exit
// path; fire-and-forget runs never do, leaving the liveness probe to heal
// the record once the child exits.
func (m *Manager) ReleaseLock(jobID string) {
	if err := os.Remove(m.lockPath(jobID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Warn("failed releasing lock", logx.String("job", jobID), logx.Err(err))
	}
}

// WasRunInWindow reports whether the job already completed within window.
func (m *Manager) WasRunInWindow(jobID, window string) bool {
	b, err := os.ReadFile(m.lastRunPath(jobID))
	if err != nil {
		return false
	}
	var rec LastRunRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		m.log.Debug("ignoring unreadable last-run file", logx.String("job", jobID), logx.Err(err))
		return false
	}
	return rec.Window == window
}

// MarkRunInWindow overwrites the job's last-run record.
func (m *Manager) MarkRunInWindow(jobID, window string) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(LastRunRecord{Window: window, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}
	return os.WriteFile(m.lastRunPath(jobID), b, 0o600)
}

// LastRun returns the job's last-run record, if one is readable.
func (m *Manager) LastRun(jobID string) (LastRunRecord, bool) {
	b, err := os.ReadFile(m.lastRunPath(jobID))
	if err != nil {
		return LastRunRecord{}, false
	}
	var rec LastRunRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return LastRunRecord{}, false
	}
	return rec, true
}

// JobID builds the stable identity key for (user, command identifier).
// Lowercased and reduced to filesystem-safe runes so it can name files.
func JobID(user, identifier string) string {
	return sanitize(user) + "_" + sanitize(identifier)
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || strings.Trim(out, ".") == "" {
		return "_"
	}
	return out
}
