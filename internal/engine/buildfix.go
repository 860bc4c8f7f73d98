package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/silver2dream/ai-implement-kit/internal/forge"
	"github.com/silver2dream/ai-implement-kit/internal/trace"
)

// defaultCIFixRetries bounds the build-fix state machine.
const defaultCIFixRetries = 3

// fixCI drives the coding agent against a failing CI run on the current
// branch head, bounded by the retry budget. Returns didWork=true when
// at least one fix was pushed. Exhausting the budget without a passing
// run is fatal for the invocation.
func (s *Session) fixCI(ctx context.Context) (bool, error) {
	maxRetries := s.CIFixRetries
	if maxRetries <= 0 {
		maxRetries = defaultCIFixRetries
	}

	// Nothing to check until the branch exists on the remote.
	if !s.Repo.BranchHasBeenPushed(ctx) {
		return false, nil
	}

	didWork := false
	for attempt := 1; attempt <= maxRetries; attempt++ {
		sha, err := s.Repo.HeadSHA(ctx)
		if err != nil {
			return didWork, err
		}

		failing, err := s.findFailingRun(ctx, sha)
		if err != nil {
			return didWork, err
		}
		if failing == nil {
			return didWork, nil
		}

		fmt.Printf("CI run %q failed on %s; attempting fix (%d/%d)\n",
			failing.Name, shortSHA(sha), attempt, maxRetries)
		s.emit(trace.ComponentBuildFix, trace.TypeFixAttempt, trace.LevelInfo,
			trace.WithData(map[string]any{"run": failing.Name, "attempt": attempt, "sha": sha}))

		logs, err := s.Forge.WorkflowFailureLogs(ctx, failing.ID)
		if err != nil {
			return didWork, err
		}

		opts := s.agentOptions(ciFixPrompt(failing, logs), fmt.Sprintf("ci-fix-attempt-%d", attempt))
		opts.Interactive = false
		inv, err := s.Agent.Invoke(ctx, opts)
		if err != nil {
			return didWork, err
		}

		if !s.Repo.HeadAdvancedSince(ctx, sha) {
			// The agent made no commit this round. Not a fix-and-push
			// cycle, but still counts against the attempt budget.
			s.emit(trace.ComponentBuildFix, trace.TypeFixResult, trace.LevelWarn,
				trace.WithData(map[string]any{"attempt": attempt, "no_commit": true, "exit_code": inv.ExitCode}))
			if attempt < maxRetries {
				sleepCtx(ctx, s.backoff(attempt))
			}
			continue
		}

		if err := s.pushWithRetry(ctx); err != nil {
			return didWork, err
		}
		didWork = true

		if s.SkipCIWait {
			return didWork, nil
		}
		newSHA, err := s.Repo.HeadSHA(ctx)
		if err != nil {
			return didWork, err
		}
		s.emit(trace.ComponentBuildFix, trace.TypeCIWait, trace.LevelInfo,
			trace.WithData(map[string]any{"sha": newSHA}))
		passed, _, err := s.Forge.WaitForWorkflowCompletion(ctx, s.Repo.CurrentBranch(), newSHA, s.CITimeout)
		if err != nil {
			return didWork, err
		}
		if passed {
			fmt.Println("CI is green.")
			s.emit(trace.ComponentBuildFix, trace.TypeFixResult, trace.LevelInfo,
				trace.WithData(map[string]any{"attempt": attempt, "passed": true}))
			return didWork, nil
		}
		if attempt < maxRetries {
			sleepCtx(ctx, s.backoff(attempt))
		}
	}

	s.emit(trace.ComponentBuildFix, trace.TypeFixResult, trace.LevelError,
		trace.WithData(map[string]any{"max_retries": maxRetries}))
	return didWork, fmt.Errorf("Max retries (%d) exceeded fixing CI on %s: %w",
		maxRetries, s.Repo.CurrentBranch(), ErrMaxRetries)
}

// findFailingRun returns the most recent failed run for the branch head,
// or nil when CI is passing or absent. Snapshots are re-fetched every
// attempt so they always reflect remote truth.
func (s *Session) findFailingRun(ctx context.Context, sha string) (*forge.FailingRun, error) {
	runs, err := s.Forge.WorkflowRunsForCommit(ctx, s.Repo.CurrentBranch(), sha)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Conclusion == "failure" {
			return &runs[i], nil
		}
	}
	return nil, nil
}

func ciFixPrompt(run *forge.FailingRun, logs string) string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "The CI workflow %q failed on the current branch head.\n", run.Name)
	b.WriteString("Diagnose the failure from the logs below, fix the underlying problem, and commit the fix.\n")
	b.WriteString("Do not weaken or delete tests to make CI pass.\n")
	b.WriteString("When the fix is committed, print " + successMarker + " and stop.\n\n")
	b.WriteString("Failure logs:\n```\n")
	b.WriteString(truncate(logs, 16000))
	b.WriteString("\n```\n")
	return b.String()
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

// sleepCtx sleeps unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
