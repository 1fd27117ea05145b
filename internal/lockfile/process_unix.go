//go:build unix

package lockfile

import "syscall"

// isProcessRunning checks whether a process with the given PID exists.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		// PID 0 would signal our own process group.
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
