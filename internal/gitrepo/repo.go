// Package gitrepo wraps git subprocess operations behind a small gateway
// used by the implementation engine. All operations are idempotent so the
// engine can be restarted mid-run without corrupting repository state.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Repo represents one checkout the engine operates on: either the main
// working tree or a worktree/clone derived from it. Branch is mutated as the
// engine advances between the integration branch and slice branches.
// PRNumber is set once a pull request is found or created, never cleared.
type Repo struct {
	Dir      string
	Branch   string
	PRNumber int

	// Origin points back to the checkout this worktree/clone was derived
	// from, for settings propagation. Nil for the main checkout.
	Origin *Repo

	GitTimeout time.Duration
}

// New returns a Repo rooted at dir on the given branch.
func New(dir, branch string) *Repo {
	return &Repo{Dir: dir, Branch: branch, GitTimeout: 120 * time.Second}
}

// CurrentBranch returns the branch this handle operates on.
func (r *Repo) CurrentBranch() string { return r.Branch }

// RootDir returns the working-tree root.
func (r *Repo) RootDir() string { return r.Dir }

// Root resolves the repository top level containing dir.
func Root(ctx context.Context, dir string) (string, error) {
	probe := &Repo{Dir: dir, GitTimeout: 30 * time.Second}
	out, err := probe.gitOutput(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not inside a git repository: %s", dir)
	}
	return strings.TrimSpace(out), nil
}

// EnsureBranch creates branch if missing and returns its name. An existing
// local branch is reused wherever it points; a remote-tracking branch is
// materialized locally; otherwise the branch is created from fromRef
// (HEAD when empty).
func (r *Repo) EnsureBranch(ctx context.Context, name, fromRef string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("branch name is empty")
	}
	if err := r.git(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name); err == nil {
		return name, nil
	}
	if err := r.git(ctx, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+name); err == nil {
		if err := r.git(ctx, "branch", name, "origin/"+name); err != nil {
			return "", err
		}
		return name, nil
	}
	if fromRef == "" {
		fromRef = "HEAD"
	}
	if err := r.git(ctx, "branch", name, fromRef); err != nil {
		return "", err
	}
	return name, nil
}

// EnsureWorktree creates (or reuses) the worktree for an idea on the given
// branch and returns a Repo for it. The path is .worktrees/<ideaName> under
// the main checkout.
func (r *Repo) EnsureWorktree(ctx context.Context, ideaName, branch string) (*Repo, error) {
	wtDir := filepath.Join(r.Dir, ".worktrees", ideaName)
	if info, err := os.Stat(wtDir); err == nil && info.IsDir() {
		return r.derived(wtDir, branch), nil
	}

	if err := os.MkdirAll(filepath.Join(r.Dir, ".worktrees"), 0755); err != nil {
		return nil, err
	}
	if _, err := r.EnsureBranch(ctx, branch, ""); err != nil {
		return nil, err
	}
	if err := r.git(ctx, "worktree", "add", wtDir, branch); err != nil {
		return nil, err
	}
	return r.derived(wtDir, branch), nil
}

// EnsureClone creates (or reuses) a full local clone for an idea at
// .isolates/<ideaName>, checked out to branch. Clones give the isolate
// mode a working tree whose object store is independent of the main
// checkout.
func (r *Repo) EnsureClone(ctx context.Context, ideaName, branch string) (*Repo, error) {
	cloneDir := filepath.Join(r.Dir, ".isolates", ideaName)
	if info, err := os.Stat(cloneDir); err == nil && info.IsDir() {
		clone := r.derived(cloneDir, branch)
		if err := clone.Checkout(ctx, branch); err != nil {
			return nil, err
		}
		return clone, nil
	}

	if err := os.MkdirAll(filepath.Join(r.Dir, ".isolates"), 0755); err != nil {
		return nil, err
	}
	if _, err := r.EnsureBranch(ctx, branch, ""); err != nil {
		return nil, err
	}
	if err := r.git(ctx, "clone", "--branch", branch, r.Dir, cloneDir); err != nil {
		return nil, err
	}
	clone := r.derived(cloneDir, branch)

	// Point the clone at the real remote so pushes bypass the main
	// checkout.
	if url, err := r.gitOutput(ctx, "remote", "get-url", "origin"); err == nil {
		url = strings.TrimSpace(url)
		if url != "" {
			if err := clone.git(ctx, "remote", "set-url", "origin", url); err != nil {
				return nil, err
			}
			_ = clone.Fetch(ctx)
		}
	}
	return clone, nil
}

// RemoveClone tears down the isolate clone for an idea. Missing clones
// are ignored.
func (r *Repo) RemoveClone(ideaName string) error {
	cloneDir := filepath.Join(r.Dir, ".isolates", ideaName)
	if err := os.RemoveAll(cloneDir); err != nil {
		return fmt.Errorf("remove clone %s: %w", cloneDir, err)
	}
	return nil
}

// DirtyPaths returns the porcelain status limited to one path prefix.
// Empty output means nothing uncommitted there.
func (r *Repo) DirtyPaths(ctx context.Context, path string) (string, error) {
	out, err := r.gitOutput(ctx, "status", "--porcelain", "--", path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *Repo) derived(dir, branch string) *Repo {
	return &Repo{Dir: dir, Branch: branch, Origin: r, GitTimeout: r.GitTimeout}
}

// Checkout switches the working tree to branch and records it.
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	if err := r.git(ctx, "checkout", "-q", branch); err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}
	r.Branch = branch
	return nil
}

// Push pushes the current branch to origin with upstream tracking. Returns
// false on failure rather than an error: a single push failure is
// recoverable (the remote may have changed underneath) and callers retry
// within their own bounded loops.
func (r *Repo) Push(ctx context.Context) bool {
	return r.git(ctx, "push", "-u", "origin", r.Branch) == nil
}

// HeadSHA returns the commit SHA at HEAD.
func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	out, err := r.gitOutput(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// HeadAdvancedSince reports whether HEAD moved away from sha.
func (r *Repo) HeadAdvancedSince(ctx context.Context, sha string) bool {
	head, err := r.HeadSHA(ctx)
	if err != nil {
		return false
	}
	return head != sha
}

// BranchHasBeenPushed reports whether the current branch exists on origin.
func (r *Repo) BranchHasBeenPushed(ctx context.Context) bool {
	return r.git(ctx, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+r.Branch) == nil
}

// HasUnpushedCommits reports whether the current branch has local commits
// not on its remote-tracking branch. False when the branch was never pushed.
func (r *Repo) HasUnpushedCommits(ctx context.Context) bool {
	if !r.BranchHasBeenPushed(ctx) {
		return false
	}
	out, err := r.gitOutput(ctx, "rev-list", "--count", "origin/"+r.Branch+".."+r.Branch)
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) != "0"
}

// DiffFileAgainstHead returns the working-tree diff of one file versus HEAD.
// Empty output means the file is unchanged.
func (r *Repo) DiffFileAgainstHead(ctx context.Context, path string) (string, error) {
	return r.gitOutput(ctx, "diff", "HEAD", "--", path)
}

// ShowFileAtHead returns the committed content of one file at HEAD.
func (r *Repo) ShowFileAtHead(ctx context.Context, path string) (string, error) {
	return r.gitOutput(ctx, "show", "HEAD:"+path)
}

// HasCIWorkflow reports whether the checkout carries at least one CI
// workflow definition under .github/workflows.
func (r *Repo) HasCIWorkflow() bool {
	entries, err := os.ReadDir(filepath.Join(r.Dir, ".github", "workflows"))
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml") {
			return true
		}
	}
	return false
}

// Fetch updates remote-tracking refs.
func (r *Repo) Fetch(ctx context.Context) error {
	return r.git(ctx, "fetch", "origin", "--prune")
}

// IsDirty reports whether the working tree has uncommitted changes, with
// the porcelain status output for diagnostics.
func (r *Repo) IsDirty(ctx context.Context) (bool, string) {
	out, err := r.gitOutput(ctx, "status", "--porcelain")
	if err != nil {
		return false, ""
	}
	out = strings.TrimSpace(out)
	return out != "", out
}
