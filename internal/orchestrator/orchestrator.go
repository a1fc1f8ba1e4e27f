// Package orchestrator drives one scheduler pass: fetch tasks, filter and
// order them, run each one and fold the outcomes into a process exit code.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"taskward/internal/history"
	"taskward/internal/schedule"
	"taskward/internal/task"
	logx "taskward/pkg/logx"
)

// Exit codes of one pass.
const (
	ExitOK     = 0
	ExitFailed = 1
	// ExitNothingToDo covers both "no tasks matched" and an operator
	// interrupt that stopped the pass early.
	ExitNothingToDo = 2
	ExitFatal       = 3
)

// Executor runs one task and reports the outcome.
type Executor interface {
	Execute(ctx context.Context, t task.Task, log logx.Logger, force bool) task.Result
}

// LoggerFactory hands out the per-task logger plus its closer.
// *logx.Service satisfies it.
type LoggerFactory interface {
	ForTask(user, taskName string, verbose bool) (logx.Logger, io.Closer, error)
}

// Options select what one pass runs.
type Options struct {
	User string
	// Task names a single task to force-run, bypassing its schedule.
	Task    string
	Verbose bool
}

type Orchestrator struct {
	provider task.Provider
	exec     Executor
	logs     LoggerFactory
	store    history.Store // optional
	log      logx.Logger

	out io.Writer
	now func() time.Time
}

func New(provider task.Provider, exec Executor, logs LoggerFactory, store history.Store, log logx.Logger) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{
		provider: provider,
		exec:     exec,
		logs:     logs,
		store:    store,
		log:      log,
		out:      os.Stdout,
		now:      time.Now,
	}
}

// Run executes one pass and returns its exit code. Per-task failures never
// abort the pass; only a provider failure or an empty task universe do.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (code int) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("pass panicked", logx.Any("panic", r))
			fmt.Fprintln(o.out, "fatal: internal error:", r)
			code = ExitFatal
		}
	}()

	all, err := o.provider.Tasks(ctx)
	if err != nil {
		o.log.Error("task provider failed", logx.Err(err))
		fmt.Fprintln(o.out, "fatal:", err)
		return ExitFatal
	}
	if len(all) == 0 {
		o.log.Error("no tasks configured")
		fmt.Fprintln(o.out, "fatal: no tasks configured")
		return ExitFatal
	}

	matched := schedule.Filter(all, opts.User, opts.Task)
	if len(matched) == 0 {
		o.log.Warn("no tasks matched",
			logx.String("user", opts.User),
			logx.String("task", opts.Task),
		)
		fmt.Fprintln(o.out, "no matching tasks")
		return ExitNothingToDo
	}
	ordered := schedule.SortByTimeOfDay(matched)

	force := opts.Task != ""
	passID := uuid.NewString()
	o.log.Info("pass started",
		logx.String("pass", passID),
		logx.String("user", opts.User),
		logx.Int("tasks", len(ordered)),
		logx.Bool("force", force),
	)

	var sum task.Summary
	interrupted := false
	for _, t := range ordered {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		sum.Add(o.runOne(ctx, t, passID, force, opts.Verbose))
	}

	o.finish(opts.User, sum, interrupted)
	switch {
	case interrupted:
		return ExitNothingToDo
	case sum.Failed > 0:
		return ExitFailed
	default:
		return ExitOK
	}
}

func (o *Orchestrator) runOne(ctx context.Context, t task.Task, passID string, force, verbose bool) task.Result {
	start := o.now()

	log, closer, err := o.logs.ForTask(t.User, t.Name, verbose)
	if err != nil {
		// A broken task logger fails that task, not the pass.
		o.log.Error("task logger unavailable",
			logx.String("task", t.Name),
			logx.String("user", t.User),
			logx.Err(err),
		)
		res := task.Result{Status: task.StatusFailed, ExitCode: -1, Reason: "logger unavailable", Err: err}
		o.record(t, res, passID, start)
		return res
	}

	res := o.exec.Execute(ctx, t, log, force)
	if closer != nil {
		_ = closer.Close()
	}
	o.record(t, res, passID, start)
	return res
}

// record appends the attempt to history, best-effort. The pass context is
// deliberately not used: an interrupt must not lose the final record.
func (o *Orchestrator) record(t task.Task, res task.Result, passID string, start time.Time) {
	if o.store == nil {
		return
	}
	rec := history.RunRecord{
		PassID:   passID,
		User:     t.User,
		Task:     t.Name,
		Window:   res.Window,
		Status:   string(res.Status),
		ExitCode: res.ExitCode,
		Reason:   res.Reason,
		At:       start,
		TookMS:   o.now().Sub(start).Milliseconds(),
	}
	if err := o.store.AppendRun(context.Background(), rec); err != nil {
		o.log.Warn("history append failed", logx.String("task", t.Name), logx.Err(err))
	}
}

func (o *Orchestrator) finish(user string, sum task.Summary, interrupted bool) {
	line := fmt.Sprintf("%s: %d succeeded, %d failed, %d skipped", user, sum.Succeeded, sum.Failed, sum.Skipped)
	if interrupted {
		line += " (interrupted)"
	}
	fmt.Fprintln(o.out, line)

	o.log.Info("pass finished",
		logx.String("user", user),
		logx.Int("succeeded", sum.Succeeded),
		logx.Int("failed", sum.Failed),
		logx.Int("skipped", sum.Skipped),
		logx.Bool("interrupted", interrupted),
	)
}
