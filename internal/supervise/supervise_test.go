package supervise

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"taskward/internal/lockfile"
	"taskward/internal/proc"
	"taskward/internal/task"
	logx "taskward/pkg/logx"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func shellTask(script string) task.Command {
	return task.Command{Path: "/bin/sh", Args: []string{"-c", script}}
}

func newTestSupervisor(t *testing.T) (*Supervisor, *lockfile.Manager) {
	t.Helper()
	locks := lockfile.NewManager(t.TempDir(), proc.System(), logx.Nop())
	s := New(locks)
	s.grace = 500 * time.Millisecond
	return s, locks
}

func TestRunSupervisedSuccess(t *testing.T) {
	requireShell(t)
	t.Parallel()

	s, locks := newTestSupervisor(t)
	marker := filepath.Join(t.TempDir(), "marker")

	res := s.Run(Request{
		JobID:   "ops_backup",
		Command: shellTask("echo done > " + marker),
		Timeout: 10 * time.Second,
		Window:  "2026-03-14_02",
	}, logx.Nop())

	if res.Status != task.StatusSucceeded {
		t.Fatalf("status = %v (reason %q, err %v), want succeeded", res.Status, res.Reason, res.Err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("command did not run: %v", err)
	}
	if !locks.WasRunInWindow("ops_backup", "2026-03-14_02") {
		t.Fatalf("successful run did not record the window")
	}
	if locks.TryAcquire("ops_backup") {
		t.Fatalf("lock not released after a supervised run")
	}
}

func TestRunSupervisedFailure(t *testing.T) {
	requireShell(t)
	t.Parallel()

	s, locks := newTestSupervisor(t)

	res := s.Run(Request{
		JobID:   "ops_flaky",
		Command: shellTask("exit 3"),
		Timeout: 10 * time.Second,
		Window:  "2026-03-14_02",
	}, logx.Nop())

	if res.Status != task.StatusFailed {
		t.Fatalf("status = %v, want failed", res.Status)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	if res.Reason != "exit code 3" {
		t.Fatalf("reason = %q, want %q", res.Reason, "exit code 3")
	}
	if locks.WasRunInWindow("ops_flaky", "2026-03-14_02") {
		t.Fatalf("failed run must not record the window")
	}
	if locks.TryAcquire("ops_flaky") {
		t.Fatalf("lock not released after a failed run")
	}
}

func TestRunTimeoutKillsChild(t *testing.T) {
	requireShell(t)
	t.Parallel()

	s, locks := newTestSupervisor(t)

	start := time.Now()
	res := s.Run(Request{
		JobID:   "ops_slow",
		Command: shellTask("sleep 10"),
		Timeout: 300 * time.Millisecond,
		Window:  "2026-03-14_02",
	}, logx.Nop())
	elapsed := time.Since(start)

	if res.Status != task.StatusFailed || res.Reason != "timeout" {
		t.Fatalf("result = %+v, want failed/timeout", res)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("run took %v, the child was not killed", elapsed)
	}
	if locks.WasRunInWindow("ops_slow", "2026-03-14_02") {
		t.Fatalf("timed-out run must not record the window")
	}
	if locks.TryAcquire("ops_slow") {
		t.Fatalf("lock not released after a timeout")
	}
}

func TestRunIdempotentWithinWindow(t *testing.T) {
	requireShell(t)
	t.Parallel()

	s, _ := newTestSupervisor(t)
	counter := filepath.Join(t.TempDir(), "counter")

	req := Request{
		JobID:   "ops_backup",
		Command: shellTask("echo run >> " + counter),
		Timeout: 10 * time.Second,
		Window:  "2026-03-14_02",
	}

	first := s.Run(req, logx.Nop())
	if first.Status != task.StatusSucceeded {
		t.Fatalf("first run: %+v", first)
	}
	second := s.Run(req, logx.Nop())
	if second.Status != task.StatusSucceeded {
		t.Fatalf("second run: %+v", second)
	}
	if second.Reason != "already completed this window" {
		t.Fatalf("second run reason = %q", second.Reason)
	}

	b, err := os.ReadFile(counter)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if got := strings.Count(string(b), "run"); got != 1 {
		t.Fatalf("command ran %d times, want exactly once", got)
	}
}

func TestRunBusyLockSkips(t *testing.T) {
	t.Parallel()

	s, locks := newTestSupervisor(t)

	// A live PID in the lock file: ours.
	if err := locks.WriteLock("ops_backup", os.Getpid()); err != nil {
		t.Fatalf("WriteLock: %v", err)
	}

	res := s.Run(Request{
		JobID:   "ops_backup",
		Command: task.Command{Path: "/bin/sh", Args: []string{"-c", "true"}},
		Window:  "2026-03-14_02",
	}, logx.Nop())

	if res.Status != task.StatusSkipped || res.Reason != "already running" {
		t.Fatalf("result = %+v, want skipped/already running", res)
	}
	if locks.WasRunInWindow("ops_backup", "2026-03-14_02") {
		t.Fatalf("busy skip must leave the window record untouched")
	}
	if !locks.TryAcquire("ops_backup") {
		t.Fatalf("busy skip must not release the foreign lock")
	}
}

func TestRunSpawnFailure(t *testing.T) {
	t.Parallel()

	s, locks := newTestSupervisor(t)

	res := s.Run(Request{
		JobID:   "ops_missing",
		Command: task.Command{Path: filepath.Join(t.TempDir(), "no-such-binary")},
		Timeout: time.Second,
		Window:  "2026-03-14_02",
	}, logx.Nop())

	if res.Status != task.StatusFailed || res.Reason != "spawn failed" {
		t.Fatalf("result = %+v, want failed/spawn failed", res)
	}
	if res.Err == nil {
		t.Fatalf("spawn failure lost its error")
	}
	if locks.TryAcquire("ops_missing") {
		t.Fatalf("lock not released after a spawn failure")
	}
}

func TestRunDetached(t *testing.T) {
	requireShell(t)
	t.Parallel()

	stateDir := t.TempDir()
	locks := lockfile.NewManager(stateDir, proc.System(), logx.Nop())
	s := New(locks)
	marker := filepath.Join(t.TempDir(), "marker")

	res := s.Run(Request{
		JobID:   "ops_notify",
		Command: shellTask("echo done > " + marker),
		Window:  "2026-03-14_02",
		Detach:  true,
	}, logx.Nop())

	if res.Status != task.StatusSucceeded || res.Reason != "spawned detached" {
		t.Fatalf("result = %+v, want succeeded/spawned detached", res)
	}
	if !locks.WasRunInWindow("ops_notify", "2026-03-14_02") {
		t.Fatalf("detached run must record the window immediately")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(marker); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("detached child never ran")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// The lock file stays behind on purpose; liveness heals it on the next
	// pass, once the exited child is fully gone.
	if _, err := os.Stat(filepath.Join(stateDir, "ops_notify.lock")); err != nil {
		t.Fatalf("detached run must leave its lock file in place: %v", err)
	}
}

func TestRunEnvMergeReachesChild(t *testing.T) {
	requireShell(t)
	t.Parallel()

	s, _ := newTestSupervisor(t)
	out := filepath.Join(t.TempDir(), "out")
	val := "from-task"

	res := s.Run(Request{
		JobID:   "ops_env",
		Command: shellTask(`printf '%s:%s' "$TASKWARD_A" "$TASKWARD_B" > ` + out),
		BaseEnv: []string{"TASKWARD_A=base-a", "TASKWARD_B=base-b", "PATH=" + os.Getenv("PATH")},
		Env: map[string]*string{
			"TASKWARD_A": &val, // override wins
			"TASKWARD_B": nil,  // nil override keeps the base value
		},
		Timeout: 10 * time.Second,
		Window:  "2026-03-14_02",
	}, logx.Nop())

	if res.Status != task.StatusSucceeded {
		t.Fatalf("run: %+v", res)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read out: %v", err)
	}
	if got, want := string(b), "from-task:base-b"; got != want {
		t.Fatalf("child env = %q, want %q", got, want)
	}
}

func TestMergeEnv(t *testing.T) {
	t.Parallel()

	v := "override"
	base := []string{"A=1", "B=2", "C=3"}
	got := mergeEnv(base, map[string]*string{
		"B": &v,
		"C": nil,
		"D": &v,
	})

	want := map[string]string{"A": "1", "B": "override", "C": "3", "D": "override"}
	if len(got) != len(want) {
		t.Fatalf("merged env = %v, want %d entries", got, len(want))
	}
	for _, kv := range got {
		k, val, ok := strings.Cut(kv, "=")
		if !ok {
			t.Fatalf("malformed entry %q", kv)
		}
		if want[k] != val {
			t.Fatalf("%s = %q, want %q", k, val, want[k])
		}
	}
}
