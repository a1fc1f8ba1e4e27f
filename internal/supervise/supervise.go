// Package supervise runs one job invocation under the lock manager's rules.
//
// Two modes exist. A supervised run captures output, waits up to a timeout
// and force-kills the child's process group when it overstays. A detached
// (fire-and-forget) run spawns the child in its own session, records the
// window and returns immediately, trading completion guarantees for
// responsiveness.
package supervise

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"taskward/internal/lockfile"
	"taskward/internal/proc"
	"taskward/internal/task"
	logx "taskward/pkg/logx"
)

// reapGrace bounds how long we wait for a force-killed child to be reaped.
const reapGrace = 5 * time.Second

// Request describes one job invocation.
type Request struct {
	JobID   string
	Command task.Command

	// BaseEnv is the "K=V" base environment. Nil means os.Environ().
	BaseEnv []string
	// Env is layered on top of BaseEnv; a nil value means "no override".
	Env map[string]*string

	// Timeout bounds the supervised wait. Zero waits forever.
	Timeout time.Duration
	WorkDir string
	Window  string

	// Detach selects the fire-and-forget mode.
	Detach bool
}

// Supervisor coordinates spawning with the lock manager.
type Supervisor struct {
	locks *lockfile.Manager
	grace time.Duration
}

func New(locks *lockfile.Manager) *Supervisor {
	return &Supervisor{locks: locks, grace: reapGrace}
}

// Run executes one job invocation and reports how it went. Skips (lock busy)
// and the idempotent window hit are not failures:
//
//   - busy lock with a live PID: skipped, window record untouched, so a
//     later attempt in the same window stays possible.
//   - window already completed: succeeded without spawning anything.
//
// Per-job failures never propagate as errors; everything lands in the Result.
func (s *Supervisor) Run(req Request, log logx.Logger) task.Result {
	res := s.run(req, log)
	res.Window = req.Window
	return res
}

func (s *Supervisor) run(req Request, log logx.Logger) task.Result {
	if log.IsZero() {
		log = logx.Nop()
	}

	if s.locks.TryAcquire(req.JobID) {
		log.Info("previous run still alive, skipping", logx.String("job", req.JobID))
		return task.Result{Status: task.StatusSkipped, Reason: "already running"}
	}
	if s.locks.WasRunInWindow(req.JobID, req.Window) {
		log.Info("already completed this window",
			logx.String("job", req.JobID),
			logx.String("window", req.Window),
		)
		return task.Result{Status: task.StatusSucceeded, Reason: "already completed this window"}
	}

	base := req.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	env := mergeEnv(base, req.Env)

	if req.Detach {
		return s.runDetached(req, env, log)
	}
	return s.runSupervised(req, env, log)
}

func (s *Supervisor) runDetached(req Request, env []string, log logx.Logger) task.Result {
	cmd := exec.Command(req.Command.Path, req.Command.Args...)
	cmd.Dir = req.WorkDir
	cmd.Env = env
	proc.Detach(cmd)

	if err := cmd.Start(); err != nil {
		log.Error("spawn failed", logx.String("job", req.JobID), logx.Err(err))
		return task.Result{Status: task.StatusFailed, ExitCode: -1, Reason: "spawn failed", Err: err}
	}
	pid := cmd.Process.Pid

	// The lock is written but never released here: the PID liveness probe
	// clears the way once the child exits.
	if err := s.locks.WriteLock(req.JobID, pid); err != nil {
		log.Warn("failed writing lock file", logx.String("job", req.JobID), logx.Err(err))
	}
	if err := s.locks.MarkRunInWindow(req.JobID, req.Window); err != nil {
		log.Warn("failed recording run window", logx.String("job", req.JobID), logx.Err(err))
	}
	_ = cmd.Process.Release()

	log.Info("spawned detached", logx.String("job", req.JobID), logx.Int("pid", pid))
	return task.Result{Status: task.StatusSucceeded, Reason: "spawned detached"}
}

func (s *Supervisor) runSupervised(req Request, env []string, log logx.Logger) task.Result {
	// Every exit path of a supervised run releases the lock, spawn failures
	// included.
	defer s.locks.ReleaseLock(req.JobID)

	cmd := exec.Command(req.Command.Path, req.Command.Args...)
	cmd.Dir = req.WorkDir
	cmd.Env = env
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	proc.Isolate(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		log.Error("spawn failed", logx.String("job", req.JobID), logx.Err(err))
		return task.Result{Status: task.StatusFailed, ExitCode: -1, Reason: "spawn failed", Err: err}
	}
	pid := cmd.Process.Pid
	log.Debug("spawned", logx.String("job", req.JobID), logx.Int("pid", pid))

	if err := s.locks.WriteLock(req.JobID, pid); err != nil {
		log.Warn("failed writing lock file", logx.String("job", req.JobID), logx.Err(err))
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var timeoutCh <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-timeoutCh:
		_ = proc.KillTree(pid)
		// Grace period to reap the killed child. A secondary timeout here is
		// ignored: there is nothing more we can do to it.
		select {
		case <-waitCh:
		case <-time.After(s.grace):
		}
		logOutput(log, &output)
		log.Error("timeout, killed",
			logx.String("job", req.JobID),
			logx.Duration("timeout", req.Timeout),
			logx.Duration("elapsed", time.Since(start)),
		)
		return task.Result{Status: task.StatusFailed, ExitCode: -1, Reason: "timeout"}
	}

	elapsed := time.Since(start)
	logOutput(log, &output)

	if waitErr == nil {
		if err := s.locks.MarkRunInWindow(req.JobID, req.Window); err != nil {
			log.Warn("failed recording run window", logx.String("job", req.JobID), logx.Err(err))
		}
		log.Info("job succeeded", logx.String("job", req.JobID), logx.Duration("elapsed", elapsed))
		return task.Result{Status: task.StatusSucceeded}
	}

	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		code := ee.ExitCode()
		log.Error("job failed",
			logx.String("job", req.JobID),
			logx.Int("exit_code", code),
			logx.Duration("elapsed", elapsed),
		)
		return task.Result{
			Status:   task.StatusFailed,
			ExitCode: code,
			Reason:   fmt.Sprintf("exit code %d", code),
			Err:      waitErr,
		}
	}

	log.Error("wait failed", logx.String("job", req.JobID), logx.Err(waitErr))
	return task.Result{Status: task.StatusFailed, ExitCode: -1, Reason: "wait failed", Err: waitErr}
}

// logOutput replays the captured child output line-by-line at debug level.
func logOutput(log logx.Logger, buf *bytes.Buffer) {
	if buf.Len() == 0 || !log.Enabled(logx.LevelDebug) {
		return
	}
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		log.Debug("output", logx.String("line", sc.Text()))
	}
	if err := sc.Err(); err != nil {
		log.Debug("output replay stopped", logx.Err(err))
	}
}

// mergeEnv layers overrides on top of the base "K=V" environment. Override
// wins on conflict; a nil-valued override means "no override", the base
// value (if any) survives.
func mergeEnv(base []string, overrides map[string]*string) []string {
	set := make(map[string]string, len(overrides))
	for k, v := range overrides {
		if v == nil {
			continue
		}
		set[k] = *v
	}
	if len(set) == 0 {
		return base
	}

	out := make([]string, 0, len(base)+len(set))
	for _, kv := range base {
		k, _, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		if _, hit := set[k]; hit {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+set[k])
	}
	return out
}
