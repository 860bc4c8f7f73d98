package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/silver2dream/ai-implement-kit/internal/forge"
	"github.com/silver2dream/ai-implement-kit/internal/trace"
)

// processReviews fetches reviewer feedback not yet triaged and drives
// the agent to address it. No-op unless a PR is known and the branch
// has been pushed. Returns didWork=true when feedback was handled so
// the outer loop re-polls instead of assuming one pass suffices.
func (s *Session) processReviews(ctx context.Context) (bool, error) {
	if s.PRNumber == 0 || !s.Repo.BranchHasBeenPushed(ctx) {
		return false, nil
	}

	comments, err := s.Forge.ReviewComments(ctx, s.PRNumber)
	if err != nil {
		return false, err
	}
	reviews, err := s.Forge.Reviews(ctx, s.PRNumber)
	if err != nil {
		return false, err
	}
	conversation, err := s.Forge.ConversationComments(ctx, s.PRNumber)
	if err != nil {
		return false, err
	}

	var newComments []forge.ReviewComment
	for _, c := range comments {
		if !s.State.HasComment(c.ID) {
			newComments = append(newComments, c)
		}
	}
	var newReviews []forge.Review
	for _, r := range reviews {
		// Approvals with no body carry nothing actionable.
		if s.State.HasReview(r.ID) {
			continue
		}
		if r.State == "APPROVED" && strings.TrimSpace(r.Body) == "" {
			s.State.MarkReview(r.ID)
			continue
		}
		newReviews = append(newReviews, r)
	}
	var newConversation []forge.ConversationComment
	for _, c := range conversation {
		if !s.State.HasConversation(c.ID) {
			newConversation = append(newConversation, c)
		}
	}

	if len(newComments) == 0 && len(newReviews) == 0 && len(newConversation) == 0 {
		return false, nil
	}

	fmt.Printf("Processing reviewer feedback: %d comments, %d reviews, %d conversation items\n",
		len(newComments), len(newReviews), len(newConversation))
	s.emit(trace.ComponentReview, trace.TypeReviewSweep, trace.LevelInfo, trace.WithPR(s.PRNumber),
		trace.WithData(map[string]any{
			"comments": len(newComments), "reviews": len(newReviews), "conversation": len(newConversation),
		}))

	prompt := feedbackPrompt(newComments, newReviews, newConversation)
	opts := s.agentOptions(prompt, "review-feedback")
	opts.Interactive = false
	inv, err := s.Agent.Invoke(ctx, opts)
	if err != nil {
		return false, err
	}
	if !inv.Succeeded(false) {
		return false, fmt.Errorf("agent failed to address reviewer feedback (exit %d): %s",
			inv.ExitCode, strings.Join(inv.Diagnostics, "; "))
	}

	// Only after a successful run do the IDs become processed, so an
	// interrupted fix re-triages the same feedback next time.
	for _, c := range newComments {
		s.State.MarkComment(c.ID)
	}
	for _, r := range newReviews {
		s.State.MarkReview(r.ID)
	}
	for _, c := range newConversation {
		s.State.MarkConversation(c.ID)
	}
	if err := s.State.Save(); err != nil {
		return true, err
	}
	return true, nil
}

// feedbackPrompt folds all unprocessed feedback into one triage block.
func feedbackPrompt(comments []forge.ReviewComment, reviews []forge.Review, conversation []forge.ConversationComment) string {
	b := strings.Builder{}
	b.WriteString("The pull request received reviewer feedback. Triage each item below:\n")
	b.WriteString("address actionable requests with code changes and commit them; note any item\n")
	b.WriteString("you deliberately decline with a one-line reason.\n")
	b.WriteString("When done, print " + successMarker + " and stop.\n\n")

	if len(reviews) > 0 {
		b.WriteString("Reviews:\n")
		for _, r := range reviews {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", r.State, r.Author, strings.TrimSpace(r.Body))
		}
		b.WriteString("\n")
	}
	if len(comments) > 0 {
		b.WriteString("Inline comments:\n")
		for _, c := range comments {
			fmt.Fprintf(&b, "- %s:%d (%s): %s\n", c.Path, c.Line, c.Author, strings.TrimSpace(c.Body))
		}
		b.WriteString("\n")
	}
	if len(conversation) > 0 {
		b.WriteString("Conversation:\n")
		for _, c := range conversation {
			fmt.Fprintf(&b, "- %s: %s\n", c.Author, strings.TrimSpace(c.Body))
		}
	}
	return b.String()
}
