package process

import "golang.org/x/sys/unix"

// Signaler sends signals to and probes processes by PID.
type Signaler interface {
	Signal(pid int, sig unix.Signal) error
	Alive(pid int) bool
}

type unixSignaler struct{}

func (unixSignaler) Signal(pid int, sig unix.Signal) error { return unix.Kill(pid, sig) }
func (unixSignaler) Alive(pid int) bool                    { return IsAlive(pid) }

// IsAlive probes pid with signal 0. Any error counts as not alive, EPERM
// included: a process we may not signal is not one we can supervise.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}
