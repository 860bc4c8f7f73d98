package engine

import (
	"context"
	"fmt"

	"github.com/silver2dream/ai-implement-kit/internal/trace"
)

// Worktree runs the task loop in a dedicated worktree with a draft PR
// and the CI/review feedback machinery.
type Worktree struct{}

func (Worktree) Name() string { return "worktree" }

// Run provisions the worktree for the idea and drives the slice loop
// in it.
func (Worktree) Run(ctx context.Context, s *Session) error {
	wt, err := s.Workspace.Worktree(ctx, s.IdeaName, s.IdeaName)
	if err != nil {
		return fmt.Errorf("provision worktree: %w", err)
	}
	s.Repo = wt
	fmt.Printf("Using worktree %s on branch %s\n", wt.RootDir(), wt.CurrentBranch())

	return s.runSliceLoop(ctx)
}

// runSliceLoop is the shared worktree/isolate control loop: recover a
// dangling commit, then alternate CI fixing, review triage and task
// execution until the plan completes.
func (s *Session) runSliceLoop(ctx context.Context) error {
	if err := s.recoverDanglingCommit(ctx); err != nil {
		return err
	}

	// A prior run may have committed work it never pushed.
	if s.Repo.HasUnpushedCommits(ctx) {
		fmt.Println("Pushing commits left by a previous run...")
		if err := s.pushWithRetry(ctx); err != nil {
			return err
		}
		if _, err := s.ensurePR(ctx); err != nil {
			return err
		}
	} else if s.Repo.BranchHasBeenPushed(ctx) {
		// Re-attach to an existing PR so feedback processing works on
		// resume.
		if n, err := s.Forge.FindPR(ctx, s.Repo.CurrentBranch()); err == nil && n != 0 {
			s.PRNumber = n
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// CI repair and review triage both restart the iteration when
		// they did work, so new failures or feedback produced by one
		// stage are seen before the next task starts.
		didFix, err := s.fixCI(ctx)
		if err != nil {
			return err
		}
		if didFix {
			continue
		}

		didReview, err := s.processReviews(ctx)
		if err != nil {
			return err
		}
		if didReview {
			continue
		}

		task, err := s.Plan.NextTask()
		if err != nil {
			return err
		}
		if task == nil {
			return s.finishPR(ctx)
		}

		if err := s.executeTask(ctx, task, true); err != nil {
			return err
		}

		if err := s.pushWithRetry(ctx); err != nil {
			return err
		}
		if _, err := s.ensurePR(ctx); err != nil {
			return err
		}

		if !s.SkipCIWait {
			sha, err := s.Repo.HeadSHA(ctx)
			if err != nil {
				return err
			}
			s.emit(trace.ComponentEngine, trace.TypeCIWait, trace.LevelInfo, trace.WithData(map[string]any{"sha": sha}))
			passed, failing, err := s.Forge.WaitForWorkflowCompletion(ctx, s.Repo.CurrentBranch(), sha, s.CITimeout)
			if err != nil {
				return err
			}
			if !passed && failing != nil {
				// Leave the failure for the fixer at the top of the
				// next iteration.
				fmt.Printf("CI run %q failed; will attempt repair\n", failing.Name)
			}
		}

		s.State.SliceNumber++
		if err := s.State.Save(); err != nil {
			return err
		}
		s.emit(trace.ComponentEngine, trace.TypeSliceAdvance, trace.LevelInfo, trace.WithSlice(s.State.SliceNumber))
	}
}

// finishPR promotes the draft PR once every task is done and surfaces
// its URL.
func (s *Session) finishPR(ctx context.Context) error {
	fmt.Println("All tasks completed!")
	if s.PRNumber == 0 {
		return nil
	}

	draft, err := s.Forge.IsPRDraft(ctx, s.PRNumber)
	if err != nil {
		return err
	}
	if draft {
		if err := s.Forge.MarkPRReady(ctx, s.PRNumber); err != nil {
			return err
		}
		s.emit(trace.ComponentEngine, trace.TypePRReady, trace.LevelInfo, trace.WithPR(s.PRNumber))
	}

	url, err := s.Forge.PRURL(ctx, s.PRNumber)
	if err != nil {
		return err
	}
	fmt.Printf("Pull request ready for review: %s\n", url)
	return nil
}
