package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/silver2dream/ai-implement-kit/internal/agent"
	"github.com/silver2dream/ai-implement-kit/internal/config"
	"github.com/silver2dream/ai-implement-kit/internal/forge"
	"github.com/silver2dream/ai-implement-kit/internal/gitrepo"
	"github.com/silver2dream/ai-implement-kit/internal/lock"
	"github.com/silver2dream/ai-implement-kit/internal/plan"
	"github.com/silver2dream/ai-implement-kit/internal/state"
	"github.com/silver2dream/ai-implement-kit/internal/trace"
)

// Options configures one engine run. Flag values override the config
// file.
type Options struct {
	IdeaDir string
	Mode    Mode

	NonInteractive bool
	SkipCIWait     bool
	CIFixRetries   int // 0 means config/default
	CITimeout      time.Duration

	// IgnoreUncommittedIdeaChanges skips the dirty-idea-directory
	// preflight check.
	IgnoreUncommittedIdeaChanges bool
}

// Run wires the collaborators, takes the per-idea lock, and executes
// the selected mode under an interrupt guard.
func Run(ctx context.Context, opts Options) error {
	ideaDir, err := filepath.Abs(opts.IdeaDir)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(ideaDir); statErr != nil || !info.IsDir() {
		return fmt.Errorf("idea directory not found: %s", ideaDir)
	}
	ideaName := filepath.Base(ideaDir)

	cfg, err := config.Load(filepath.Join(ideaDir, config.FileName))
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid %s: %v", config.FileName, errs[0])
	}

	repoRoot, err := gitrepo.Root(ctx, ideaDir)
	if err != nil {
		return err
	}
	main := gitrepo.New(repoRoot, cfg.Git.IntegrationBranch)
	main.GitTimeout = cfg.GitTimeout()

	if !opts.IgnoreUncommittedIdeaChanges {
		if dirty, err := main.DirtyPaths(ctx, ideaDir); err == nil && dirty != "" {
			return fmt.Errorf("idea directory has uncommitted changes (use --ignore-uncommitted-idea-changes to proceed):\n%s", dirty)
		}
	}

	planPath, err := findPlan(ideaDir, ideaName)
	if err != nil {
		return err
	}

	// One engine per idea at a time.
	ideaLock := lock.New(lock.Path(ideaDir))
	if err := ideaLock.Acquire(); err != nil {
		return err
	}
	defer ideaLock.Release()

	st, err := state.Load(ideaDir, ideaName)
	if err != nil {
		return err
	}

	writer, err := trace.NewEventWriter(trace.SessionPath(ideaDir, trace.NewSession()))
	if err != nil {
		return err
	}
	defer writer.Close()

	fc := forge.NewClient(repoRoot, cfg.ForgeTimeout())
	fc.PollInterval = cfg.CIPollInterval()

	s := &Session{
		IdeaDir:        ideaDir,
		IdeaName:       ideaName,
		PlanPath:       planPath,
		Repo:           main,
		Workspace:      &gitWorkspace{main: main, forge: fc},
		Forge:          fc,
		Agent:          agent.NewCLIRunner(),
		Plan:           plan.NewFile(planPath),
		State:          st,
		Config:         cfg,
		Trace:          writer,
		NonInteractive: opts.NonInteractive,
		SkipCIWait:     opts.SkipCIWait,
		CIFixRetries:   pick(opts.CIFixRetries, cfg.CI.FixRetries),
		CITimeout:      pickDuration(opts.CITimeout, cfg.CIWaitTimeout()),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	guard := NewInterruptGuard(s, cancel)
	defer guard.Close()

	s.emit(trace.ComponentEngine, trace.TypeRunStart, trace.LevelInfo,
		trace.WithSlice(st.SliceNumber),
		trace.WithData(map[string]any{"mode": opts.Mode.Name(), "idea": ideaName}))

	runErr := opts.Mode.Run(runCtx, s)

	level := trace.LevelInfo
	if runErr != nil {
		level = trace.LevelError
	}
	s.emit(trace.ComponentEngine, trace.TypeRunEnd, level, trace.WithError(runErr))

	return runErr
}

// findPlan locates the plan document in the idea directory: plan.md,
// then <ideaName>-plan.md.
func findPlan(ideaDir, ideaName string) (string, error) {
	candidates := []string{
		filepath.Join(ideaDir, "plan.md"),
		filepath.Join(ideaDir, ideaName+"-plan.md"),
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("no plan file in %s (looked for plan.md, %s-plan.md)", ideaDir, ideaName)
}

// gitWorkspace provisions worktrees/clones off the main checkout and
// wires the derived handles with the same forge-relevant settings.
type gitWorkspace struct {
	main  *gitrepo.Repo
	forge *forge.Client
}

func (w *gitWorkspace) Worktree(ctx context.Context, ideaName, branch string) (Repository, error) {
	wt, err := w.main.EnsureWorktree(ctx, ideaName, branch)
	if err != nil {
		return nil, err
	}
	w.forge.Dir = wt.Dir
	return wt, nil
}

func (w *gitWorkspace) Clone(ctx context.Context, ideaName, branch string) (Repository, error) {
	clone, err := w.main.EnsureClone(ctx, ideaName, branch)
	if err != nil {
		return nil, err
	}
	w.forge.Dir = clone.Dir
	return clone, nil
}

func (w *gitWorkspace) RemoveClone(ideaName string) error {
	return w.main.RemoveClone(ideaName)
}

func pick(flag, cfg int) int {
	if flag > 0 {
		return flag
	}
	return cfg
}

func pickDuration(flag, cfg time.Duration) time.Duration {
	if flag > 0 {
		return flag
	}
	return cfg
}
