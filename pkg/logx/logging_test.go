package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFileComponent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"backup", "backup"},
		{"Ops Team", "Ops_Team"},
		{"jobs/backup", "jobs_backup"},
		{"reports.daily", "reports.daily"},
		{"  padded  ", "padded"},
		{"über", "_ber"},
		{"", "_"},
		{"...", "_"},
	}
	for _, tt := range tests {
		if got := fileComponent(tt.in); got != tt.want {
			t.Fatalf("fileComponent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"info", zerolog.InfoLevel},
		{" WARN ", zerolog.WarnLevel},
		{"Warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 20)
	if got := truncate("short", 100); got != "short" {
		t.Fatalf("truncate below limit changed the string: %q", got)
	}
	if got := truncate(long, 0); got != long {
		t.Fatalf("truncate with no limit changed the string: %q", got)
	}
	if got := truncate(long, 5); got != "xxxxx" {
		t.Fatalf("tiny limit = %q, want hard cut", got)
	}
	if got := truncate(long, 12); got != strings.Repeat("x", 9)+"..." {
		t.Fatalf("truncate(long, 12) = %q", got)
	}
}

func TestJournalVarName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"exit_code", "TASKWARD_EXIT_CODE"},
		{"user", "TASKWARD_USER"},
		{"took-ms", "TASKWARD_TOOK_MS"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := journalVarName(tt.in); got != tt.want {
			t.Fatalf("journalVarName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJournalEntry(t *testing.T) {
	t.Parallel()

	line := `{"level":"warn","time":"2026-03-14T02:00:00Z","message":"lock stale","user":"ops","exit_code":3}` + "\n"
	msg, vars := journalEntry([]byte(line))
	if msg != "lock stale" {
		t.Fatalf("message = %q, want %q", msg, "lock stale")
	}
	if got := vars["TASKWARD_USER"]; got != "ops" {
		t.Fatalf("TASKWARD_USER = %q, want %q", got, "ops")
	}
	if got := vars["TASKWARD_EXIT_CODE"]; got != "3" {
		t.Fatalf("TASKWARD_EXIT_CODE = %q, want %q", got, "3")
	}
	if _, ok := vars["TASKWARD_LEVEL"]; ok {
		t.Fatalf("level leaked into journal variables: %v", vars)
	}

	raw, rawVars := journalEntry([]byte("  not json at all \n"))
	if raw != "not json at all" || rawVars != nil {
		t.Fatalf("raw entry = %q vars=%v, want trimmed line and nil vars", raw, rawVars)
	}
}

func TestForTaskWritesUserTaskFile(t *testing.T) {
	dir := t.TempDir()
	svc, _ := New(Config{Level: "info", Dir: dir})

	lg, closer, err := svc.ForTask("Ops Team", "nightly/backup", false)
	if err != nil {
		t.Fatalf("ForTask: %v", err)
	}
	lg.Info("run started", String("window", "2026-03-14_02"))
	if err := closer.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}

	path := filepath.Join(dir, "Ops_Team", "nightly_backup.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	for _, want := range []string{
		`"message":"run started"`,
		`"user":"Ops Team"`,
		`"task":"nightly/backup"`,
		`"window":"2026-03-14_02"`,
	} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("log line missing %s:\n%s", want, data)
		}
	}
}

func TestForTaskAppendsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	svc, _ := New(Config{Level: "info", Dir: dir})

	for i := 0; i < 2; i++ {
		lg, closer, err := svc.ForTask("ops", "backup", false)
		if err != nil {
			t.Fatalf("ForTask #%d: %v", i, err)
		}
		lg.Info("pass")
		if err := closer.Close(); err != nil {
			t.Fatalf("close #%d: %v", i, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "ops", "backup.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := strings.Count(string(data), `"message":"pass"`); got != 2 {
		t.Fatalf("log lines = %d, want 2", got)
	}
}

func TestForTaskVerboseLowersLevel(t *testing.T) {
	svc, _ := New(Config{Level: "info", Dir: t.TempDir()})

	quiet, qc, err := svc.ForTask("ops", "backup", false)
	if err != nil {
		t.Fatalf("ForTask: %v", err)
	}
	defer qc.Close()
	verbose, vc, err := svc.ForTask("ops", "report", true)
	if err != nil {
		t.Fatalf("ForTask verbose: %v", err)
	}
	defer vc.Close()

	if quiet.Enabled(LevelDebug) {
		t.Fatalf("quiet logger accepts debug")
	}
	if !quiet.Enabled(LevelInfo) {
		t.Fatalf("quiet logger rejects info")
	}
	if !verbose.Enabled(LevelDebug) {
		t.Fatalf("verbose logger rejects debug")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var lg Logger
	lg.Info("dropped", String("k", "v"))
	lg.With(String("a", "b")).Error("also dropped")
	if !lg.IsZero() {
		t.Fatalf("zero logger reported non-zero")
	}
	if Nop().IsZero() {
		t.Fatalf("Nop logger reported zero")
	}
}
