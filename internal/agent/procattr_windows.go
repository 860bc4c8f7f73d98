//go:build windows

package agent

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

// setProcGroup creates the agent in a new process group so console control
// events do not propagate from the engine's group.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// terminateGroup waits briefly for voluntary exit, then kills the process.
// Windows has no SIGTERM; Kill is the only reliable stop.
func terminateGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if cmd.ProcessState != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = cmd.Process.Kill()
}
