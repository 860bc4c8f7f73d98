//go:build !windows

package lock

import (
	"os"

	"golang.org/x/sys/unix"
)

// processAlive probes the PID with signal 0.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(unix.Signal(0)) == nil
}
