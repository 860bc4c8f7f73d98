package engine

import (
	"context"
	"fmt"
)

// Trunk runs tasks directly on the current branch with no worktree, PR
// or CI machinery.
type Trunk struct{}

func (Trunk) Name() string { return "trunk" }

// Run executes tasks sequentially until the plan reports none left.
func (Trunk) Run(ctx context.Context, s *Session) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		task, err := s.Plan.NextTask()
		if err != nil {
			return err
		}
		if task == nil {
			fmt.Println("All tasks completed!")
			return nil
		}

		if err := s.executeTask(ctx, task, false); err != nil {
			return err
		}
	}
}
