package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/silver2dream/ai-implement-kit/internal/plan"
	"github.com/silver2dream/ai-implement-kit/internal/trace"
)

// recoveryAttempts bounds the "finish this commit" repair loop.
const recoveryAttempts = 2

// hasUncommittedCompletedTask detects the dangling state a crashed run
// leaves behind: the plan file differs from HEAD and some task flipped
// from incomplete (at HEAD) to complete (working tree). Returns the
// diff for the repair prompt.
func (s *Session) hasUncommittedCompletedTask(ctx context.Context) (bool, string, error) {
	rel, err := s.planRelPath()
	if err != nil {
		return false, "", err
	}

	diff, err := s.Repo.DiffFileAgainstHead(ctx, rel)
	if err != nil {
		return false, "", fmt.Errorf("diff plan against HEAD: %w", err)
	}
	if strings.TrimSpace(diff) == "" {
		return false, "", nil
	}

	headContent, err := s.Repo.ShowFileAtHead(ctx, rel)
	if err != nil {
		// Plan not yet committed at all; nothing dangling to recover.
		return false, "", nil
	}
	workContent, err := os.ReadFile(s.PlanPath)
	if err != nil {
		return false, "", fmt.Errorf("read working-tree plan: %w", err)
	}

	transitions := plan.CompletedTransitions(plan.Parse(headContent), plan.Parse(string(workContent)))
	if len(transitions) == 0 {
		return false, "", nil
	}
	return true, diff, nil
}

// recoverDanglingCommit repairs a task that was marked done but never
// committed. Two attempts; exhaustion is fatal with a manual-commit
// hint.
func (s *Session) recoverDanglingCommit(ctx context.Context) error {
	dangling, diff, err := s.hasUncommittedCompletedTask(ctx)
	if err != nil {
		return err
	}
	s.emit(trace.ComponentRecovery, trace.TypeRecoveryCheck, trace.LevelInfo,
		trace.WithData(map[string]any{"dangling": dangling}))
	if !dangling {
		return nil
	}

	fmt.Println("Detected a completed task that was never committed; recovering...")

	prompt := recoveryPrompt(diff)
	for attempt := 1; attempt <= recoveryAttempts; attempt++ {
		sha, err := s.Repo.HeadSHA(ctx)
		if err != nil {
			return err
		}

		opts := s.agentOptions(prompt, fmt.Sprintf("recovery-attempt-%d", attempt))
		opts.Interactive = false // recovery is always unattended
		inv, err := s.Agent.Invoke(ctx, opts)
		if err != nil {
			return err
		}

		if inv.Succeeded(false) && s.Repo.HeadAdvancedSince(ctx, sha) {
			fmt.Println("Recovery commit created.")
			s.emit(trace.ComponentRecovery, trace.TypeRecoveryCheck, trace.LevelInfo,
				trace.WithData(map[string]any{"recovered": true, "attempt": attempt}))
			return nil
		}
		s.emit(trace.ComponentRecovery, trace.TypeRecoveryCheck, trace.LevelWarn,
			trace.WithData(map[string]any{"attempt": attempt, "exit_code": inv.ExitCode}))
	}

	return fmt.Errorf("%w after %d attempts: commit the plan file manually and re-run",
		ErrRecoveryFailed, recoveryAttempts)
}

func recoveryPrompt(diff string) string {
	b := strings.Builder{}
	b.WriteString("A previous run marked a task complete in the plan file but crashed before committing.\n")
	b.WriteString("Finish that commit now: review the uncommitted changes below, stage them together with\n")
	b.WriteString("any related work, and create a single commit describing the completed task.\n")
	b.WriteString("Do not start any new task. When the commit exists, print " + successMarker + " and stop.\n\n")
	b.WriteString("Uncommitted plan changes:\n```\n")
	b.WriteString(truncate(diff, 8000))
	b.WriteString("\n```\n")
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
