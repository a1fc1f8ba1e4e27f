package executor

import (
	"context"
	"testing"
	"time"

	"taskward/internal/supervise"
	"taskward/internal/task"
	logx "taskward/pkg/logx"
)

// fakeRunner records the request it would have run.
type fakeRunner struct {
	calls  int
	last   supervise.Request
	result task.Result
}

func (f *fakeRunner) Run(req supervise.Request, _ logx.Logger) task.Result {
	f.calls++
	f.last = req
	return f.result
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newTestExecutor(cfg Config, res task.Result) (*Executor, *fakeRunner) {
	f := &fakeRunner{result: res}
	e := New(f, cfg)
	e.now = fixedClock(time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC))
	return e, f
}

func TestExecuteDueTask(t *testing.T) {
	t.Parallel()

	e, f := newTestExecutor(Config{DefaultTimeout: time.Minute}, task.Result{Status: task.StatusSucceeded})
	tk := task.Task{
		Name:     "Backup",
		User:     "Ops",
		Schedule: task.ScheduleDaily,
		Time:     "02:00",
		Command:  task.Command{Path: "/usr/local/bin/backup.sh"},
	}

	res := e.Execute(context.Background(), tk, logx.Nop(), false)
	if res.Status != task.StatusSucceeded {
		t.Fatalf("result = %+v", res)
	}
	if f.calls != 1 {
		t.Fatalf("runner called %d times, want 1", f.calls)
	}
	if f.last.JobID != "ops_backup" {
		t.Fatalf("job id = %q, want ops_backup", f.last.JobID)
	}
	if f.last.Window != "2026-03-14_02" {
		t.Fatalf("window = %q, want hourly bucket", f.last.Window)
	}
	if f.last.Timeout != time.Minute {
		t.Fatalf("timeout = %v, want the default", f.last.Timeout)
	}
}

func TestExecuteNotDueSkips(t *testing.T) {
	t.Parallel()

	e, f := newTestExecutor(Config{}, task.Result{Status: task.StatusSucceeded})
	tk := task.Task{
		Name:     "Backup",
		User:     "ops",
		Schedule: task.ScheduleDaily,
		Time:     "05:00",
		Command:  task.Command{Path: "/bin/true"},
	}

	res := e.Execute(context.Background(), tk, logx.Nop(), false)
	if res.Status != task.StatusSkipped || res.Reason != "not due" {
		t.Fatalf("result = %+v, want skipped/not due", res)
	}
	if f.calls != 0 {
		t.Fatalf("runner must not be called for a task that isn't due")
	}
}

func TestExecuteInvalidScheduleFails(t *testing.T) {
	t.Parallel()

	e, f := newTestExecutor(Config{}, task.Result{})
	tk := task.Task{
		Name:     "Backup",
		User:     "ops",
		Schedule: task.ScheduleDaily,
		Time:     "25:99",
		Command:  task.Command{Path: "/bin/true"},
	}

	res := e.Execute(context.Background(), tk, logx.Nop(), false)
	if res.Status != task.StatusFailed || res.Reason != "invalid schedule" {
		t.Fatalf("result = %+v, want failed/invalid schedule", res)
	}
	if res.Err == nil {
		t.Fatalf("schedule failure lost its error")
	}
	if f.calls != 0 {
		t.Fatalf("runner must not be called for an invalid schedule")
	}
}

func TestExecuteForceBypassesSchedule(t *testing.T) {
	t.Parallel()

	e, f := newTestExecutor(Config{}, task.Result{Status: task.StatusSucceeded})
	// Not due at 02:30 (wrong hour), and once never fires on its own;
	// force runs both anyway.
	tests := []task.Task{
		{Name: "report", User: "ops", Schedule: task.ScheduleDaily, Time: "23:00", Command: task.Command{Path: "/bin/true"}},
		{Name: "migrate", User: "ops", Schedule: task.ScheduleOnce, Command: task.Command{Path: "/bin/true"}},
	}

	for _, tk := range tests {
		res := e.Execute(context.Background(), tk, logx.Nop(), true)
		if res.Status != task.StatusSucceeded {
			t.Fatalf("forced %s: %+v", tk.Name, res)
		}
	}
	if f.calls != 2 {
		t.Fatalf("runner called %d times, want 2", f.calls)
	}
	// Forced runs land in a minute-sized window, not the hourly bucket.
	if f.last.Window != "2026-03-14_02-30" {
		t.Fatalf("forced window = %q, want minute granularity", f.last.Window)
	}
}

func TestExecuteWorkDirResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		task string
		cfg  Config
		want string
	}{
		{name: "task override wins", task: "/srv/task", cfg: Config{DefaultWorkDir: "/srv/default", FallbackWorkDir: "/srv/fallback"}, want: "/srv/task"},
		{name: "configured default next", cfg: Config{DefaultWorkDir: "/srv/default", FallbackWorkDir: "/srv/fallback"}, want: "/srv/default"},
		{name: "fallback last", cfg: Config{FallbackWorkDir: "/srv/fallback"}, want: "/srv/fallback"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, f := newTestExecutor(tt.cfg, task.Result{Status: task.StatusSucceeded})
			tk := task.Task{
				Name:     "job",
				User:     "ops",
				Schedule: task.ScheduleHourly,
				WorkDir:  tt.task,
				Command:  task.Command{Path: "/bin/true"},
			}
			if res := e.Execute(context.Background(), tk, logx.Nop(), false); res.Status != task.StatusSucceeded {
				t.Fatalf("execute: %+v", res)
			}
			if f.last.WorkDir != tt.want {
				t.Fatalf("workdir = %q, want %q", f.last.WorkDir, tt.want)
			}
		})
	}
}

func TestExecuteTaskTimeoutWins(t *testing.T) {
	t.Parallel()

	e, f := newTestExecutor(Config{DefaultTimeout: time.Minute}, task.Result{Status: task.StatusSucceeded})
	tk := task.Task{
		Name:     "quick",
		User:     "ops",
		Schedule: task.ScheduleHourly,
		Timeout:  task.Timeout(5 * time.Second),
		Command:  task.Command{Path: "/bin/true"},
	}

	if res := e.Execute(context.Background(), tk, logx.Nop(), false); res.Status != task.StatusSucceeded {
		t.Fatalf("execute: %+v", res)
	}
	if f.last.Timeout != 5*time.Second {
		t.Fatalf("timeout = %v, want the task's own 5s", f.last.Timeout)
	}
}

func TestExecuteCanceledContext(t *testing.T) {
	t.Parallel()

	e, f := newTestExecutor(Config{}, task.Result{Status: task.StatusSucceeded})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tk := task.Task{Name: "job", User: "ops", Schedule: task.ScheduleHourly, Command: task.Command{Path: "/bin/true"}}
	res := e.Execute(ctx, tk, logx.Nop(), false)
	if res.Status != task.StatusSkipped || res.Reason != "interrupted" {
		t.Fatalf("result = %+v, want skipped/interrupted", res)
	}
	if f.calls != 0 {
		t.Fatalf("runner must not be called after cancellation")
	}
}
