// Package agent invokes the coding-agent CLI as a subprocess. The engine
// treats the agent as opaque: it observes only the exit code, a success
// marker in captured output, and side effects on the repository.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// SuccessMarker is the literal string a non-interactive agent run must print
// for the step to count as successful.
const SuccessMarker = "<SUCCESS>"

// terminateGrace is how long a signalled agent gets before SIGKILL.
const terminateGrace = 5 * time.Second

// Options controls one agent invocation.
type Options struct {
	Command string   // agent binary, e.g. "claude"
	Args    []string // flags preceding the prompt
	Prompt  string
	Dir     string // working directory (the active checkout)

	// Interactive hands the operator's terminal to the agent via a PTY;
	// non-interactive captures output and requires the success marker.
	Interactive bool

	Timeout time.Duration // 0 means unbounded (operator-controlled)
	LogFile string        // non-interactive output tee target, optional
}

// Invocation reports one agent run. Transient: used only to decide
// success/failure for the current step, never stored.
type Invocation struct {
	ExitCode    int
	Stdout      string
	Stderr      string
	Diagnostics []string
}

// Succeeded reports whether the run counts as successful. Interactive runs
// are judged on exit code alone; non-interactive runs also require the
// success marker in stdout.
func (inv *Invocation) Succeeded(interactive bool) bool {
	if inv.ExitCode != 0 {
		return false
	}
	if interactive {
		return true
	}
	return strings.Contains(inv.Stdout, SuccessMarker)
}

// Runner abstracts agent execution for the engine and its tests.
type Runner interface {
	Invoke(ctx context.Context, opts Options) (*Invocation, error)
}

// CLIRunner runs the real agent CLI.
type CLIRunner struct{}

// NewCLIRunner returns a Runner backed by the agent CLI.
func NewCLIRunner() *CLIRunner { return &CLIRunner{} }

// Invoke runs the agent once. The subprocess is started in its own process
// group; on context cancellation the group gets SIGTERM, a bounded grace
// period, then SIGKILL.
func (r *CLIRunner) Invoke(ctx context.Context, opts Options) (*Invocation, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("agent command is empty")
	}
	if _, err := exec.LookPath(opts.Command); err != nil {
		return nil, fmt.Errorf("agent CLI %q not found in PATH", opts.Command)
	}

	if opts.Interactive {
		return runInteractive(ctx, opts)
	}
	return runCaptured(ctx, opts)
}

func runCaptured(ctx context.Context, opts Options) (*Invocation, error) {
	runCtx, cancel := withOptionalTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.Command(opts.Command, append(opts.Args, opts.Prompt)...)
	cmd.Dir = opts.Dir
	setProcGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if opts.LogFile != "" {
		_ = os.MkdirAll(filepath.Dir(opts.LogFile), 0755)
		if f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			defer f.Close()
			cmd.Stdout = io.MultiWriter(&stdout, f)
			cmd.Stderr = io.MultiWriter(&stderr, f)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		terminateGroup(cmd, terminateGrace)
		waitErr = <-done
		if ctx.Err() == nil && runCtx.Err() == context.DeadlineExceeded {
			inv := buildInvocation(cmd, waitErr, stdout.String(), stderr.String())
			inv.Diagnostics = append(inv.Diagnostics,
				fmt.Sprintf("agent timed out after %s", opts.Timeout))
			return inv, nil
		}
		return buildInvocation(cmd, waitErr, stdout.String(), stderr.String()), ctx.Err()
	}

	return buildInvocation(cmd, waitErr, stdout.String(), stderr.String()), nil
}

func buildInvocation(cmd *exec.Cmd, waitErr error, stdout, stderr string) *Invocation {
	inv := &Invocation{Stdout: stdout, Stderr: stderr}
	if waitErr == nil {
		inv.ExitCode = 0
	} else if exitErr, ok := waitErr.(*exec.ExitError); ok {
		inv.ExitCode = exitErr.ExitCode()
	} else {
		inv.ExitCode = 1
		inv.Diagnostics = append(inv.Diagnostics, waitErr.Error())
	}
	inv.Diagnostics = append(inv.Diagnostics, collectDiagnostics(stdout, stderr)...)
	return inv
}

// collectDiagnostics pulls the lines most useful for a fatal dump: trailing
// output and any permission-denial lines.
func collectDiagnostics(stdout, stderr string) []string {
	var diags []string
	for _, line := range strings.Split(stdout+"\n"+stderr, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "permission denied") || strings.Contains(lower, "denied:") {
			diags = append(diags, strings.TrimSpace(line))
		}
	}
	if tail := lastLines(stdout, 5); tail != "" {
		diags = append(diags, "last output: "+tail)
	}
	return diags
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " / "))
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
