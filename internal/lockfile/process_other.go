//go:build !unix

package lockfile

import "os"

// isProcessRunning checks whether a process with the given PID exists.
// Without a portable signal-0 probe, FindProcess is the best available
// signal on non-unix platforms.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
