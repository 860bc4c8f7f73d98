// Package engine is the implementation workflow control loop: it drives
// the coding agent through a plan's tasks against a git repository,
// manages branch/worktree lifecycle, advances a draft pull request,
// auto-repairs CI failures, and processes reviewer feedback.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/silver2dream/ai-implement-kit/internal/agent"
	"github.com/silver2dream/ai-implement-kit/internal/config"
	"github.com/silver2dream/ai-implement-kit/internal/forge"
	"github.com/silver2dream/ai-implement-kit/internal/ghutil"
	"github.com/silver2dream/ai-implement-kit/internal/plan"
	"github.com/silver2dream/ai-implement-kit/internal/state"
	"github.com/silver2dream/ai-implement-kit/internal/trace"
)

// successMarker must appear in non-interactive agent output for a step
// to count as successful.
const successMarker = agent.SuccessMarker

// Repository is the version-control capability the engine consumes.
// Implemented by gitrepo.Repo; tests supply doubles.
type Repository interface {
	EnsureBranch(ctx context.Context, name, fromRef string) (string, error)
	Checkout(ctx context.Context, branch string) error
	Push(ctx context.Context) bool
	Fetch(ctx context.Context) error
	HeadSHA(ctx context.Context) (string, error)
	HeadAdvancedSince(ctx context.Context, sha string) bool
	BranchHasBeenPushed(ctx context.Context) bool
	HasUnpushedCommits(ctx context.Context) bool
	DiffFileAgainstHead(ctx context.Context, path string) (string, error)
	ShowFileAtHead(ctx context.Context, path string) (string, error)
	HasCIWorkflow() bool
	CurrentBranch() string
	RootDir() string
}

// Forge is the pull-request and CI capability the engine consumes.
// Implemented by forge.Client.
type Forge interface {
	FindPR(ctx context.Context, branch string) (int, error)
	CreateDraftPR(ctx context.Context, branch, title, body, base string) (int, error)
	IsPRDraft(ctx context.Context, number int) (bool, error)
	MarkPRReady(ctx context.Context, number int) error
	PRURL(ctx context.Context, number int) (string, error)
	WorkflowRunsForCommit(ctx context.Context, branch, sha string) ([]forge.FailingRun, error)
	WorkflowFailureLogs(ctx context.Context, runID string) (string, error)
	WaitForWorkflowCompletion(ctx context.Context, branch, sha string, timeout time.Duration) (bool, *forge.FailingRun, error)
	ReviewComments(ctx context.Context, number int) ([]forge.ReviewComment, error)
	Reviews(ctx context.Context, number int) ([]forge.Review, error)
	ConversationComments(ctx context.Context, number int) ([]forge.ConversationComment, error)
}

// Plan is the narrow plan-collaborator contract. The engine never edits
// the plan file; the coding agent owns the checkboxes.
type Plan interface {
	NextTask() (*plan.Task, error)
	IsCompleted(thread, number int) (bool, error)
}

// Workspace provisions derived checkouts for the worktree and isolate
// modes.
type Workspace interface {
	Worktree(ctx context.Context, ideaName, branch string) (Repository, error)
	Clone(ctx context.Context, ideaName, branch string) (Repository, error)
	RemoveClone(ideaName string) error
}

// Session carries everything one engine run operates on. Repo points at
// the active checkout; modes swap it when they provision a worktree or
// clone.
type Session struct {
	IdeaDir  string
	IdeaName string
	PlanPath string

	Repo      Repository
	Workspace Workspace
	Forge     Forge
	Agent     agent.Runner
	Plan      Plan
	State     *state.WorkflowState
	Config    *config.Config
	Trace     *trace.EventWriter

	NonInteractive bool
	SkipCIWait     bool
	CIFixRetries   int
	CITimeout      time.Duration

	// PRNumber is set once a pull request is found or created, never
	// cleared.
	PRNumber int

	// backoffFn overrides the inter-attempt delay schedule in tests.
	backoffFn func(attempt int) time.Duration
}

func (s *Session) backoff(attempt int) time.Duration {
	if s.backoffFn != nil {
		return s.backoffFn(attempt)
	}
	return fixBackoff(attempt)
}

// emit records a trace event; tracing is best effort and never fails
// the run.
func (s *Session) emit(component, eventType, level string, opts ...trace.Option) {
	if s.Trace == nil {
		return
	}
	_, _ = s.Trace.Emit(component, eventType, level, opts...)
}

// planRelPath returns the plan path relative to the active checkout,
// the form git show/diff want.
func (s *Session) planRelPath() (string, error) {
	rel, err := filepath.Rel(s.Repo.RootDir(), s.PlanPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("plan file %s is outside the repository %s", s.PlanPath, s.Repo.RootDir())
	}
	return filepath.ToSlash(rel), nil
}

// agentOptions builds the invocation options for one agent run.
// Non-interactive runs get a computed permission allow-list so the
// agent can edit, commit and push without prompting.
func (s *Session) agentOptions(prompt, logName string) agent.Options {
	opts := agent.Options{
		Command:     s.Config.Agent.Command,
		Args:        append([]string(nil), s.Config.Agent.Args...),
		Prompt:      prompt,
		Dir:         s.Repo.RootDir(),
		Interactive: !s.NonInteractive,
		Timeout:     s.Config.AgentTimeout(),
	}
	if s.NonInteractive {
		opts.Args = append(opts.Args, "--print", "--allowedTools", allowedTools())
		if logName != "" {
			opts.LogFile = filepath.Join(s.IdeaDir, ".implkit", "logs", logName+".log")
		}
	}
	return opts
}

// allowedTools is the permission allow-list granted to non-interactive
// agent runs: file edits plus the git verbs the workflow needs.
func allowedTools() string {
	return strings.Join([]string{
		"Edit",
		"Write",
		"Bash(git add:*)",
		"Bash(git commit:*)",
		"Bash(git status:*)",
		"Bash(git diff:*)",
		"Bash(git log:*)",
	}, ",")
}

// ensurePR finds the PR for the current branch or creates a draft one
// against the integration branch. Idempotent; records the number on the
// session.
func (s *Session) ensurePR(ctx context.Context) (int, error) {
	if s.PRNumber != 0 {
		return s.PRNumber, nil
	}

	branch := s.Repo.CurrentBranch()
	number, err := s.Forge.FindPR(ctx, branch)
	if err != nil {
		return 0, err
	}
	if number == 0 {
		title := fmt.Sprintf("%s (work in progress)", s.IdeaName)
		body := fmt.Sprintf("Automated implementation of idea `%s`.", s.IdeaName)
		number, err = s.Forge.CreateDraftPR(ctx, branch, title, body, s.Config.Git.IntegrationBranch)
		if err != nil {
			return 0, err
		}
		s.emit(trace.ComponentEngine, trace.TypePRCreate, trace.LevelInfo, trace.WithPR(number))
	}
	s.PRNumber = number
	return number, nil
}

// pushWithRetry pushes the current branch; on failure it fetches and
// tries once more. A second failure is returned to the caller's bounded
// loop.
func (s *Session) pushWithRetry(ctx context.Context) error {
	if s.Repo.Push(ctx) {
		return nil
	}
	if err := s.Repo.Fetch(ctx); err != nil {
		return fmt.Errorf("push failed and fetch failed: %w", err)
	}
	if s.Repo.Push(ctx) {
		return nil
	}
	return fmt.Errorf("push %s failed twice", s.Repo.CurrentBranch())
}

// fixBackoff is the delay schedule between CI-fix attempts.
func fixBackoff(attempt int) time.Duration {
	return ghutil.DefaultRetryConfig().Backoff(attempt)
}
