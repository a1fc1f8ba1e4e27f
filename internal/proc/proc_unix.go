//go:build unix
// +build unix

package proc

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

type sysProbe struct{}

// Alive probes pid with signal 0, which delivers nothing. EPERM still means
// someone is there; anything else (ESRCH, invalid pid) means not alive.
func (sysProbe) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}

// Isolate places the child in its own process group so KillTree can take the
// whole tree down with one signal.
func Isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// Detach starts the child in its own session, severing it from our terminal
// and lifetime.
func Detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// KillTree force-kills the process group rooted at pid.
func KillTree(pid int) error {
	if pid <= 0 {
		return nil
	}
	return unix.Kill(-pid, unix.SIGKILL)
}
