// Package forge queries pull requests and CI workflow runs through the gh
// CLI. The engine never speaks the forge API directly; every call here is a
// black-box subprocess with bounded retry.
package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/silver2dream/ai-implement-kit/internal/ghutil"
)

// Client provides PR and workflow-run operations via the gh CLI.
type Client struct {
	Dir     string // repository directory gh commands run against
	Timeout time.Duration
	Retry   ghutil.RetryConfig

	// PollInterval is the sleep between workflow-completion polls.
	PollInterval time.Duration
}

// NewClient creates a forge client for the repository at dir.
func NewClient(dir string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		Dir:          dir,
		Timeout:      timeout,
		Retry:        ghutil.DefaultRetryConfig(),
		PollInterval: 10 * time.Second,
	}
}

// FailingRun is a snapshot of one CI workflow run. Never persisted:
// re-fetched each retry iteration so it always reflects remote truth.
type FailingRun struct {
	ID         string `json:"databaseId"`
	Name       string `json:"name"`
	Conclusion string `json:"conclusion"`
	Status     string `json:"status"`
	HeadSHA    string `json:"headSha"`
}

func (c *Client) gh(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	return ghutil.RunDir(ctx, c.Retry, c.Dir, "gh", args...)
}

// FindPR returns the open PR number for branch, or 0 when none exists.
func (c *Client) FindPR(ctx context.Context, branch string) (int, error) {
	out, err := c.gh(ctx, "pr", "list", "--head", branch, "--json", "number", "--limit", "1")
	if err != nil {
		return 0, fmt.Errorf("gh pr list: %s", firstLine(out))
	}
	var prs []struct {
		Number int `json:"number"`
	}
	if err := json.Unmarshal(out, &prs); err != nil {
		return 0, fmt.Errorf("parse pr list: %w", err)
	}
	if len(prs) == 0 {
		return 0, nil
	}
	return prs[0].Number, nil
}

// CreateDraftPR opens a draft pull request and returns its number.
func (c *Client) CreateDraftPR(ctx context.Context, branch, title, body, base string) (int, error) {
	out, err := c.gh(ctx, "pr", "create", "--draft",
		"--head", branch, "--base", base,
		"--title", title, "--body", body)
	if err != nil {
		return 0, fmt.Errorf("gh pr create: %s", firstLine(out))
	}
	// gh prints the PR URL; the number is its last path segment.
	url := strings.TrimSpace(string(out))
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		if n, convErr := strconv.Atoi(url[idx+1:]); convErr == nil {
			return n, nil
		}
	}
	// Fall back to a lookup when the output was not a clean URL.
	return c.FindPR(ctx, branch)
}

// IsPRDraft reports whether the PR is still in draft state.
func (c *Client) IsPRDraft(ctx context.Context, number int) (bool, error) {
	out, err := c.gh(ctx, "pr", "view", strconv.Itoa(number), "--json", "isDraft", "-q", ".isDraft")
	if err != nil {
		return false, fmt.Errorf("gh pr view: %s", firstLine(out))
	}
	return strings.TrimSpace(string(out)) == "true", nil
}

// MarkPRReady promotes a draft PR to ready-for-review.
func (c *Client) MarkPRReady(ctx context.Context, number int) error {
	if out, err := c.gh(ctx, "pr", "ready", strconv.Itoa(number)); err != nil {
		return fmt.Errorf("gh pr ready: %s", firstLine(out))
	}
	return nil
}

// PRURL returns the web URL of a pull request.
func (c *Client) PRURL(ctx context.Context, number int) (string, error) {
	out, err := c.gh(ctx, "pr", "view", strconv.Itoa(number), "--json", "url", "-q", ".url")
	if err != nil {
		return "", fmt.Errorf("gh pr view: %s", firstLine(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// WorkflowRunsForCommit lists workflow runs for a branch head commit,
// newest first.
func (c *Client) WorkflowRunsForCommit(ctx context.Context, branch, sha string) ([]FailingRun, error) {
	out, err := c.gh(ctx, "run", "list",
		"--branch", branch, "--commit", sha,
		"--json", "databaseId,name,conclusion,status,headSha", "--limit", "20")
	if err != nil {
		return nil, fmt.Errorf("gh run list: %s", firstLine(out))
	}
	var raw []struct {
		DatabaseID int64  `json:"databaseId"`
		Name       string `json:"name"`
		Conclusion string `json:"conclusion"`
		Status     string `json:"status"`
		HeadSHA    string `json:"headSha"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse run list: %w", err)
	}
	runs := make([]FailingRun, 0, len(raw))
	for _, r := range raw {
		runs = append(runs, FailingRun{
			ID:         strconv.FormatInt(r.DatabaseID, 10),
			Name:       r.Name,
			Conclusion: r.Conclusion,
			Status:     r.Status,
			HeadSHA:    r.HeadSHA,
		})
	}
	return runs, nil
}

// WorkflowFailureLogs fetches the failed-step logs of one workflow run.
func (c *Client) WorkflowFailureLogs(ctx context.Context, runID string) (string, error) {
	out, err := c.gh(ctx, "run", "view", runID, "--log-failed")
	if err != nil {
		return "", fmt.Errorf("gh run view: %s", firstLine(out))
	}
	return string(out), nil
}

// WaitForWorkflowCompletion polls until every run for (branch, sha) has
// completed or the timeout elapses. Returns (allPassed, firstFailingRun).
// No runs at all counts as passed: a repository without CI has nothing to
// wait for.
func (c *Client) WaitForWorkflowCompletion(ctx context.Context, branch, sha string, timeout time.Duration) (bool, *FailingRun, error) {
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		runs, err := c.WorkflowRunsForCommit(ctx, branch, sha)
		if err != nil {
			return false, nil, err
		}

		pending := false
		for i := range runs {
			switch runs[i].Status {
			case "completed":
				if runs[i].Conclusion == "failure" {
					return false, &runs[i], nil
				}
			default:
				pending = true
			}
		}
		if !pending {
			return true, nil, nil
		}

		if time.Now().After(deadline) {
			return false, nil, fmt.Errorf("timed out after %v waiting for workflow runs on %s", timeout, branch)
		}
		select {
		case <-time.After(c.PollInterval):
		case <-ctx.Done():
			return false, nil, ctx.Err()
		}
	}
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(bytes.TrimSpace(out)))
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if s == "" {
		s = "command failed"
	}
	return s
}
