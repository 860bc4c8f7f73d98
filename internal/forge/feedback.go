package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// ReviewComment is one inline review comment on a pull request.
type ReviewComment struct {
	ID     string
	Path   string
	Line   int
	Author string
	Body   string
}

// Review is one review decision (APPROVED, CHANGES_REQUESTED, COMMENTED).
type Review struct {
	ID     string
	Author string
	State  string
	Body   string
}

// ConversationComment is one top-level comment on the PR conversation.
type ConversationComment struct {
	ID     string
	Author string
	Body   string
}

// ReviewComments lists inline review comments on a PR.
func (c *Client) ReviewComments(ctx context.Context, number int) ([]ReviewComment, error) {
	out, err := c.gh(ctx, "api", fmt.Sprintf("repos/{owner}/{repo}/pulls/%d/comments", number))
	if err != nil {
		return nil, fmt.Errorf("gh api pull comments: %s", firstLine(out))
	}
	var raw []struct {
		ID   int64  `json:"id"`
		Path string `json:"path"`
		Line int    `json:"line"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		Body string `json:"body"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse pull comments: %w", err)
	}
	comments := make([]ReviewComment, 0, len(raw))
	for _, r := range raw {
		comments = append(comments, ReviewComment{
			ID:     strconv.FormatInt(r.ID, 10),
			Path:   r.Path,
			Line:   r.Line,
			Author: r.User.Login,
			Body:   r.Body,
		})
	}
	return comments, nil
}

// Reviews lists review decisions on a PR.
func (c *Client) Reviews(ctx context.Context, number int) ([]Review, error) {
	out, err := c.gh(ctx, "api", fmt.Sprintf("repos/{owner}/{repo}/pulls/%d/reviews", number))
	if err != nil {
		return nil, fmt.Errorf("gh api reviews: %s", firstLine(out))
	}
	var raw []struct {
		ID   int64 `json:"id"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		State string `json:"state"`
		Body  string `json:"body"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse reviews: %w", err)
	}
	reviews := make([]Review, 0, len(raw))
	for _, r := range raw {
		reviews = append(reviews, Review{
			ID:     strconv.FormatInt(r.ID, 10),
			Author: r.User.Login,
			State:  r.State,
			Body:   r.Body,
		})
	}
	return reviews, nil
}

// ConversationComments lists top-level conversation comments on a PR.
func (c *Client) ConversationComments(ctx context.Context, number int) ([]ConversationComment, error) {
	out, err := c.gh(ctx, "api", fmt.Sprintf("repos/{owner}/{repo}/issues/%d/comments", number))
	if err != nil {
		return nil, fmt.Errorf("gh api issue comments: %s", firstLine(out))
	}
	var raw []struct {
		ID   int64 `json:"id"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		Body string `json:"body"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse issue comments: %w", err)
	}
	comments := make([]ConversationComment, 0, len(raw))
	for _, r := range raw {
		comments = append(comments, ConversationComment{
			ID:     strconv.FormatInt(r.ID, 10),
			Author: r.User.Login,
			Body:   r.Body,
		})
	}
	return comments, nil
}
