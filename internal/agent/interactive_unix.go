//go:build !windows

package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// runInteractive hands the operator's terminal to the agent through a PTY.
// Output is not captured; success is judged on exit code alone. Original
// terminal state is restored on all exit paths.
func runInteractive(ctx context.Context, opts Options) (*Invocation, error) {
	cmd := exec.Command(opts.Command, append(opts.Args, opts.Prompt)...)
	cmd.Dir = opts.Dir

	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		// No terminal to hand over; run attached to the plain stdio.
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		setProcGroup(cmd)
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start agent: %w", err)
		}
		return waitInteractive(ctx, cmd)
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start agent pty: %w", err)
	}
	defer ptmx.Close()

	// Track terminal resizes.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, unix.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			_ = pty.InheritSize(os.Stdin, ptmx)
		}
	}()
	winch <- unix.SIGWINCH

	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return nil, fmt.Errorf("set raw terminal: %w", err)
	}
	defer term.Restore(stdinFd, oldState)

	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()
	go func() { _, _ = io.Copy(os.Stdout, ptmx) }()

	return waitInteractive(ctx, cmd)
}

func waitInteractive(ctx context.Context, cmd *exec.Cmd) (*Invocation, error) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case waitErr := <-done:
		return buildInvocation(cmd, waitErr, "", ""), nil
	case <-ctx.Done():
		terminateGroup(cmd, terminateGrace)
		waitErr := <-done
		return buildInvocation(cmd, waitErr, "", ""), ctx.Err()
	}
}
