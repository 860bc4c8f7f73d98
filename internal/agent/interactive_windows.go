//go:build windows

package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/UserExistsError/conpty"
	"golang.org/x/term"
)

// runInteractive runs the agent under a Windows pseudo console and relays
// the operator's terminal to it.
func runInteractive(ctx context.Context, opts Options) (*Invocation, error) {
	cmdline := windowsCommandLine(opts.Command, append(opts.Args, opts.Prompt))

	cpty, err := conpty.Start(cmdline, conpty.ConPtyWorkDir(opts.Dir))
	if err != nil {
		return nil, fmt.Errorf("start agent conpty: %w", err)
	}
	defer cpty.Close()

	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		if oldState, rawErr := term.MakeRaw(stdinFd); rawErr == nil {
			defer term.Restore(stdinFd, oldState)
		}
	}

	go func() { _, _ = io.Copy(cpty, os.Stdin) }()
	go func() { _, _ = io.Copy(os.Stdout, cpty) }()

	exitCode, err := cpty.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait agent: %w", err)
	}
	return &Invocation{ExitCode: int(exitCode)}, nil
}

// windowsCommandLine quotes arguments containing spaces.
func windowsCommandLine(command string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, a := range append([]string{command}, args...) {
		if strings.ContainsAny(a, " \t\"") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
