package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/silver2dream/ai-implement-kit/internal/agent"
	"github.com/silver2dream/ai-implement-kit/internal/forge"
	"github.com/silver2dream/ai-implement-kit/internal/plan"
)

// fakeRepo is an in-memory Repository double.
type fakeRepo struct {
	dir    string
	branch string

	head       int // bumped by "commits"
	pushed     bool
	unpushed   bool
	pushFails  int // remaining Push calls that fail
	hasCI      bool
	planDiff   string
	headFiles  map[string]string
	pushCalls  int
	fetchCalls int
}

func newFakeRepo(dir string) *fakeRepo {
	return &fakeRepo{dir: dir, branch: "idea", headFiles: map[string]string{}}
}

func (r *fakeRepo) commit() { r.head++ }

func (r *fakeRepo) EnsureBranch(ctx context.Context, name, fromRef string) (string, error) {
	return name, nil
}
func (r *fakeRepo) Checkout(ctx context.Context, branch string) error {
	r.branch = branch
	return nil
}
func (r *fakeRepo) Push(ctx context.Context) bool {
	r.pushCalls++
	if r.pushFails > 0 {
		r.pushFails--
		return false
	}
	r.pushed = true
	r.unpushed = false
	return true
}
func (r *fakeRepo) Fetch(ctx context.Context) error { r.fetchCalls++; return nil }
func (r *fakeRepo) HeadSHA(ctx context.Context) (string, error) {
	return "sha-" + strconv.Itoa(r.head), nil
}
func (r *fakeRepo) HeadAdvancedSince(ctx context.Context, sha string) bool {
	return sha != "sha-"+strconv.Itoa(r.head)
}
func (r *fakeRepo) BranchHasBeenPushed(ctx context.Context) bool { return r.pushed }
func (r *fakeRepo) HasUnpushedCommits(ctx context.Context) bool  { return r.unpushed }
func (r *fakeRepo) DiffFileAgainstHead(ctx context.Context, path string) (string, error) {
	return r.planDiff, nil
}
func (r *fakeRepo) ShowFileAtHead(ctx context.Context, path string) (string, error) {
	content, ok := r.headFiles[path]
	if !ok {
		return "", fmt.Errorf("path %s not at HEAD", path)
	}
	return content, nil
}
func (r *fakeRepo) HasCIWorkflow() bool   { return r.hasCI }
func (r *fakeRepo) CurrentBranch() string { return r.branch }
func (r *fakeRepo) RootDir() string       { return r.dir }

// fakeForge is an in-memory Forge double.
type fakeForge struct {
	prNumber  int // existing PR for FindPR; 0 means none
	nextPR    int // number assigned by CreateDraftPR
	created   int
	draft     bool
	readied   bool
	runs      [][]forge.FailingRun // consumed per WorkflowRunsForCommit call
	waits     []bool               // consumed per WaitForWorkflowCompletion call
	logs      string
	comments  []forge.ReviewComment
	reviews   []forge.Review
	convo     []forge.ConversationComment
	waitCalls int
}

func (f *fakeForge) FindPR(ctx context.Context, branch string) (int, error) {
	return f.prNumber, nil
}
func (f *fakeForge) CreateDraftPR(ctx context.Context, branch, title, body, base string) (int, error) {
	f.created++
	f.draft = true
	f.prNumber = f.nextPR
	return f.nextPR, nil
}
func (f *fakeForge) IsPRDraft(ctx context.Context, number int) (bool, error) { return f.draft, nil }
func (f *fakeForge) MarkPRReady(ctx context.Context, number int) error {
	f.draft = false
	f.readied = true
	return nil
}
func (f *fakeForge) PRURL(ctx context.Context, number int) (string, error) {
	return fmt.Sprintf("https://example.com/pull/%d", number), nil
}
func (f *fakeForge) WorkflowRunsForCommit(ctx context.Context, branch, sha string) ([]forge.FailingRun, error) {
	if len(f.runs) == 0 {
		return nil, nil
	}
	runs := f.runs[0]
	f.runs = f.runs[1:]
	return runs, nil
}
func (f *fakeForge) WorkflowFailureLogs(ctx context.Context, runID string) (string, error) {
	return f.logs, nil
}
func (f *fakeForge) WaitForWorkflowCompletion(ctx context.Context, branch, sha string, timeout time.Duration) (bool, *forge.FailingRun, error) {
	f.waitCalls++
	if len(f.waits) == 0 {
		return true, nil, nil
	}
	passed := f.waits[0]
	f.waits = f.waits[1:]
	if passed {
		return true, nil, nil
	}
	return false, &forge.FailingRun{ID: "1", Name: "ci", Conclusion: "failure"}, nil
}
func (f *fakeForge) ReviewComments(ctx context.Context, number int) ([]forge.ReviewComment, error) {
	return f.comments, nil
}
func (f *fakeForge) Reviews(ctx context.Context, number int) ([]forge.Review, error) {
	return f.reviews, nil
}
func (f *fakeForge) ConversationComments(ctx context.Context, number int) ([]forge.ConversationComment, error) {
	return f.convo, nil
}

// fakePlan is an in-memory Plan double.
type fakePlan struct {
	tasks []fakeTask
}

type fakeTask struct {
	plan.Task
	done bool
}

func (p *fakePlan) NextTask() (*plan.Task, error) {
	for i := range p.tasks {
		if !p.tasks[i].done {
			t := p.tasks[i].Task
			return &t, nil
		}
	}
	return nil, nil
}
func (p *fakePlan) IsCompleted(thread, number int) (bool, error) {
	for i := range p.tasks {
		if p.tasks[i].Thread == thread && p.tasks[i].Number == number {
			return p.tasks[i].done, nil
		}
	}
	return false, nil
}
func (p *fakePlan) complete(thread, number int) {
	for i := range p.tasks {
		if p.tasks[i].Thread == thread && p.tasks[i].Number == number {
			p.tasks[i].done = true
		}
	}
}

// fakeAgent runs a callback per invocation.
type fakeAgent struct {
	calls  int
	onCall func(call int, opts agent.Options) *agent.Invocation
}

func (a *fakeAgent) Invoke(ctx context.Context, opts agent.Options) (*agent.Invocation, error) {
	a.calls++
	if a.onCall == nil {
		return &agent.Invocation{ExitCode: 0, Stdout: agent.SuccessMarker}, nil
	}
	return a.onCall(a.calls, opts), nil
}

func succeedInvocation() *agent.Invocation {
	return &agent.Invocation{ExitCode: 0, Stdout: agent.SuccessMarker}
}

func failInvocation() *agent.Invocation {
	return &agent.Invocation{ExitCode: 1, Diagnostics: []string{"agent gave up"}}
}

// fakeWorkspace hands out a prepared Repository.
type fakeWorkspace struct {
	repo    Repository
	removed bool
}

func (w *fakeWorkspace) Worktree(ctx context.Context, ideaName, branch string) (Repository, error) {
	return w.repo, nil
}
func (w *fakeWorkspace) Clone(ctx context.Context, ideaName, branch string) (Repository, error) {
	return w.repo, nil
}
func (w *fakeWorkspace) RemoveClone(ideaName string) error {
	w.removed = true
	return nil
}
