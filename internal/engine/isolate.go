package engine

import (
	"context"
	"fmt"
)

// Isolate runs the slice loop inside a dedicated clone so the main
// checkout is never touched.
type Isolate struct {
	// SetupOnly stops after the clone is provisioned.
	SetupOnly bool
	// Cleanup removes the clone after a successful run.
	Cleanup bool
}

func (Isolate) Name() string { return "isolate" }

// Run provisions the isolate clone, optionally stops there, and
// otherwise drives the same loop as worktree mode against the clone.
func (m Isolate) Run(ctx context.Context, s *Session) error {
	clone, err := s.Workspace.Clone(ctx, s.IdeaName, s.IdeaName)
	if err != nil {
		return fmt.Errorf("provision isolate clone: %w", err)
	}
	s.Repo = clone
	fmt.Printf("Using isolate clone %s on branch %s\n", clone.RootDir(), clone.CurrentBranch())

	if m.SetupOnly {
		fmt.Println("Setup complete (setup-only); not running tasks.")
		return nil
	}

	if err := s.runSliceLoop(ctx); err != nil {
		return err
	}

	if m.Cleanup {
		fmt.Println("Cleaning up isolate clone...")
		if err := s.Workspace.RemoveClone(s.IdeaName); err != nil {
			return err
		}
	}
	return nil
}
