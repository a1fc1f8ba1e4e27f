package logx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ---- Journal writer (zerolog sink) ----

// journalWriter forwards zerolog lines to the systemd journal so runs remain
// visible in journalctl even when nobody keeps the per-task files around.
// Implements zerolog.LevelWriter so min-level gating happens per event.
type journalWriter struct {
	minLevel zerolog.Level
	limiter  *rate.Limiter
}

func journalAvailable() bool { return journal.Enabled() }

func newJournalWriter(cfg JournalConfig) *journalWriter {
	rps := max(1, cfg.RatePerSec)
	return &journalWriter{
		minLevel: parseLevel(cfg.MinLevel, zerolog.WarnLevel),
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (w *journalWriter) Write(p []byte) (int, error) {
	// Default to info when WriteLevel isn't used.
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *journalWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.minLevel {
		return len(p), nil
	}
	// The journal is a secondary sink: drop rather than block the run.
	if !w.limiter.Allow() {
		return len(p), nil
	}

	msg, vars := journalEntry(p)
	if msg == "" {
		return len(p), nil
	}
	_ = journal.Send(msg, journalPriority(level), vars)
	return len(p), nil
}

func journalPriority(level zerolog.Level) journal.Priority {
	switch {
	case level <= zerolog.DebugLevel:
		return journal.PriDebug
	case level == zerolog.InfoLevel:
		return journal.PriInfo
	case level == zerolog.WarnLevel:
		return journal.PriWarning
	case level == zerolog.ErrorLevel:
		return journal.PriErr
	default:
		return journal.PriCrit
	}
}

// journalEntry decodes one zerolog JSON line into the journal message plus
// uppercase field variables.
func journalEntry(p []byte) (string, map[string]string) {
	var m map[string]any
	if err := json.Unmarshal(bytesTrimSpace(p), &m); err != nil {
		// Not JSON; send raw (trimmed), but cap length.
		return truncate(strings.TrimSpace(string(p)), 2048), nil
	}

	msg, _ := m["message"].(string)
	if msg == "" {
		msg, _ = m["msg"].(string)
	}

	vars := make(map[string]string, len(m))
	for k, v := range m {
		if k == "time" || k == "level" || k == "message" || k == "msg" {
			continue
		}
		name := journalVarName(k)
		if name == "" {
			continue
		}
		vars[name] = truncate(fmt.Sprint(v), 600)
	}
	if len(vars) == 0 {
		vars = nil
	}
	return msg, vars
}

// journalVarName maps a field name into the [A-Z0-9_] alphabet journald
// requires, prefixed to avoid clashing with trusted fields.
func journalVarName(k string) string {
	k = strings.TrimSpace(k)
	if k == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("TASKWARD_")
	for _, r := range strings.ToUpper(k) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
