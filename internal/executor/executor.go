// Package executor turns one task definition into one job invocation.
//
// It owns the per-task decisions: is the task due, what identity does it
// lock under, which window bucket applies, which working directory and
// timeout bind the child. The actual spawning lives in supervise.
package executor

import (
	"context"
	"time"

	"taskward/internal/lockfile"
	"taskward/internal/schedule"
	"taskward/internal/supervise"
	"taskward/internal/task"
	logx "taskward/pkg/logx"
)

// windowKindForced is a sentinel schedule kind handed to the window clock so
// forced runs land in a minute-sized bucket instead of the hourly one.
const windowKindForced = "forced"

// Runner executes one prepared job invocation. *supervise.Supervisor is the
// production implementation.
type Runner interface {
	Run(req supervise.Request, log logx.Logger) task.Result
}

type Config struct {
	// DefaultTimeout bounds supervised tasks that don't set their own.
	// Zero means unlimited.
	DefaultTimeout time.Duration

	// DefaultWorkDir is the configured working directory; FallbackWorkDir
	// applies when neither the task nor the config names one.
	DefaultWorkDir  string
	FallbackWorkDir string

	// BaseEnv is the "K=V" base environment for every child.
	// Nil means os.Environ().
	BaseEnv []string
}

type Executor struct {
	run Runner
	cfg Config
	now func() time.Time
}

func New(run Runner, cfg Config) *Executor {
	return &Executor{run: run, cfg: cfg, now: time.Now}
}

// Execute runs one task. force bypasses the schedule gate (not the lock).
// Per-task problems land in the Result; nothing here aborts a pass.
func (e *Executor) Execute(ctx context.Context, t task.Task, log logx.Logger, force bool) task.Result {
	if log.IsZero() {
		log = logx.Nop()
	}
	if ctx.Err() != nil {
		return task.Result{Status: task.StatusSkipped, Reason: "interrupted"}
	}

	now := e.now()
	windowKind := t.Schedule
	if force {
		windowKind = windowKindForced
		log.Info("schedule check bypassed", logx.String("schedule", t.Schedule))
	} else {
		due, err := schedule.IsDue(t, now)
		if err != nil {
			log.Error("schedule rejected", logx.Err(err))
			return task.Result{Status: task.StatusFailed, Reason: "invalid schedule", Err: err}
		}
		if !due {
			if log.Enabled(logx.LevelDebug) {
				fields := []logx.Field{
					logx.String("schedule", t.Schedule),
					logx.String("at", t.Time),
				}
				if next, err := schedule.NextRun(t, now); err == nil && !next.IsZero() {
					fields = append(fields, logx.Time("next", next))
				}
				log.Debug("not due", fields...)
			}
			return task.Result{Status: task.StatusSkipped, Reason: "not due"}
		}
	}

	timeout := t.Timeout.Duration()
	if timeout == 0 {
		timeout = e.cfg.DefaultTimeout
	}

	// One window value serves both the idempotency check and the lock key;
	// computing it twice would race the clock between decision and spawn.
	return e.run.Run(supervise.Request{
		JobID:   lockfile.JobID(t.User, t.Identifier()),
		Command: t.Command,
		BaseEnv: e.cfg.BaseEnv,
		Env:     t.Env,
		Timeout: timeout,
		WorkDir: e.workDir(t),
		Window:  schedule.Window(windowKind, now, ""),
		Detach:  t.Detach,
	}, log)
}

func (e *Executor) workDir(t task.Task) string {
	if t.WorkDir != "" {
		return t.WorkDir
	}
	if e.cfg.DefaultWorkDir != "" {
		return e.cfg.DefaultWorkDir
	}
	return e.cfg.FallbackWorkDir
}
