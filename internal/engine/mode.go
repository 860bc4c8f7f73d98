package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/silver2dream/ai-implement-kit/internal/plan"
	"github.com/silver2dream/ai-implement-kit/internal/trace"
)

// Mode is one of the closed set of execution environments for the task
// loop. Each variant carries only the fields it needs and is built once
// by validated flag parsing.
type Mode interface {
	Name() string
	Run(ctx context.Context, s *Session) error
}

// ParseMode maps a mode name to its variant. SetupOnly and Cleanup are
// isolate-only and rejected elsewhere.
func ParseMode(name string, setupOnly, cleanup bool) (Mode, error) {
	switch name {
	case "trunk":
		return Trunk{}, nil
	case "worktree":
		return Worktree{}, nil
	case "isolate":
		return Isolate{SetupOnly: setupOnly, Cleanup: cleanup}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q (want trunk, worktree or isolate)", name)
	}
}

// executeTask runs the agent on one task and verifies the externally
// visible signals: agent success, plan completion, and (when required)
// a CI workflow definition in the checkout. Failures here are fatal;
// the engine never advances past an unverified task.
func (s *Session) executeTask(ctx context.Context, t *plan.Task, requireCI bool) error {
	fmt.Printf("==> Task %d.%d: %s\n", t.Thread, t.Number, t.Title)
	s.emit(trace.ComponentEngine, trace.TypeTaskStart, trace.LevelInfo,
		trace.WithSlice(s.State.SliceNumber),
		trace.WithData(map[string]any{"thread": t.Thread, "task": t.Number, "title": t.Title}))

	opts := s.agentOptions(taskPrompt(t, s.NonInteractive), fmt.Sprintf("task-%d-%d", t.Thread, t.Number))
	inv, err := s.Agent.Invoke(ctx, opts)
	if err != nil {
		return err
	}
	if !inv.Succeeded(opts.Interactive) {
		return fmt.Errorf("agent did not complete task %d.%d (exit %d): %s",
			t.Thread, t.Number, inv.ExitCode, strings.Join(inv.Diagnostics, "; "))
	}

	done, err := s.Plan.IsCompleted(t.Thread, t.Number)
	if err != nil {
		return err
	}
	if !done {
		return fmt.Errorf("%w: plan still lists task %d.%d as open after the agent run",
			ErrTaskNotCompleted, t.Thread, t.Number)
	}

	if requireCI && !s.Repo.HasCIWorkflow() {
		return fmt.Errorf("%w: expected a workflow file under .github/workflows after task %d.%d",
			ErrNoCIWorkflow, t.Thread, t.Number)
	}

	s.emit(trace.ComponentEngine, trace.TypeTaskEnd, trace.LevelInfo,
		trace.WithSlice(s.State.SliceNumber),
		trace.WithData(map[string]any{"thread": t.Thread, "task": t.Number}))
	return nil
}

func taskPrompt(t *plan.Task, nonInteractive bool) string {
	b := strings.Builder{}
	b.WriteString("Implement the following task from the plan:\n\n")
	b.WriteString(t.Render())
	b.WriteString("\nWhen the task is done: mark its checkbox [x] in the plan file and commit\n")
	b.WriteString("the work together with the plan update in a single commit.\n")
	if nonInteractive {
		b.WriteString("Then print " + successMarker + " and stop.\n")
	}
	return b.String()
}
