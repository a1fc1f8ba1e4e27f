// Package proc wraps the platform-specific process primitives the supervisor
// needs: PID liveness probing, process-group isolation, detached spawning and
// tree kill.
package proc

// Probe checks whether a PID refers to a live process.
//
// Implementations must never fail on arbitrary or nonsense PIDs; those simply
// report not-alive.
type Probe interface {
	Alive(pid int) bool
}

// System returns the probe for the OS taskward runs on.
func System() Probe { return sysProbe{} }
