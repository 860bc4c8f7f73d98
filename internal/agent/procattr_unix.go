//go:build !windows

package agent

import (
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
)

// setProcGroup starts the agent in its own process group so the whole child
// tree can be signalled together.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the agent's process group, waits up to
// grace for voluntary exit, then escalates to SIGKILL.
func terminateGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	_ = unix.Kill(pgid, unix.SIGTERM)

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		// Signal 0 probes whether the group still has members.
		if err := unix.Kill(pgid, 0); err != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = unix.Kill(pgid, unix.SIGKILL)
}
