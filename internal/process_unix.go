//go:build unix

package wdinternal

import (
	"golang.org/x/sys/unix"
)

// ProcessAlive reports whether pid refers to a live process, using the
// classic kill(pid, 0) probe: no signal is delivered, only the existence and
// permission checks are performed.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// SendSignal delivers sig to pid, the Go-native equivalent of the original's
// direct kill(2) calls from TaskKick and WDStop.
func SendSignal(pid int, sig unix.Signal) error {
	return unix.Kill(pid, sig)
}
