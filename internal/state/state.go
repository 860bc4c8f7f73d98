// Package state persists engine progress across process restarts.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WorkflowState is the durable record of an idea's implementation progress.
// The processed ID slices are append-only sets: an ID is never recorded
// twice and never removed, so re-running with the same remote feedback
// produces no duplicate triage.
type WorkflowState struct {
	SliceNumber              int      `json:"slice_number"`
	ProcessedCommentIDs      []string `json:"processed_comment_ids"`
	ProcessedReviewIDs       []string `json:"processed_review_ids"`
	ProcessedConversationIDs []string `json:"processed_conversation_ids"`

	path string
}

// Path returns the state file location for an idea directory and name.
func Path(ideaDir, ideaName string) string {
	return filepath.Join(ideaDir, ideaName+"-wt-state.json")
}

// Load reads the state file, creating defaults when it does not exist and
// default-filling fields absent from a partially written file.
func Load(ideaDir, ideaName string) (*WorkflowState, error) {
	s := &WorkflowState{
		SliceNumber: 1,
		path:        Path(ideaDir, ideaName),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.fillDefaults()
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow state: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse workflow state %s: %w", s.path, err)
	}
	s.fillDefaults()
	return s, nil
}

func (s *WorkflowState) fillDefaults() {
	if s.SliceNumber < 1 {
		s.SliceNumber = 1
	}
	if s.ProcessedCommentIDs == nil {
		s.ProcessedCommentIDs = []string{}
	}
	if s.ProcessedReviewIDs == nil {
		s.ProcessedReviewIDs = []string{}
	}
	if s.ProcessedConversationIDs == nil {
		s.ProcessedConversationIDs = []string{}
	}
}

// Save writes the state atomically: temp file in the same directory, then
// rename. Callers save explicitly after mutations, and eagerly on interrupt.
func (s *WorkflowState) Save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".wt-state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write workflow state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close workflow state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace workflow state: %w", err)
	}
	return nil
}

// HasComment reports whether a review comment ID was already processed.
func (s *WorkflowState) HasComment(id string) bool { return contains(s.ProcessedCommentIDs, id) }

// HasReview reports whether a review ID was already processed.
func (s *WorkflowState) HasReview(id string) bool { return contains(s.ProcessedReviewIDs, id) }

// HasConversation reports whether a conversation comment ID was already
// processed.
func (s *WorkflowState) HasConversation(id string) bool {
	return contains(s.ProcessedConversationIDs, id)
}

// MarkComment records a review comment ID. Duplicate marks are ignored.
func (s *WorkflowState) MarkComment(id string) {
	s.ProcessedCommentIDs = appendUnique(s.ProcessedCommentIDs, id)
}

// MarkReview records a review ID. Duplicate marks are ignored.
func (s *WorkflowState) MarkReview(id string) {
	s.ProcessedReviewIDs = appendUnique(s.ProcessedReviewIDs, id)
}

// MarkConversation records a conversation comment ID. Duplicate marks are
// ignored.
func (s *WorkflowState) MarkConversation(id string) {
	s.ProcessedConversationIDs = appendUnique(s.ProcessedConversationIDs, id)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func appendUnique(ids []string, id string) []string {
	if contains(ids, id) {
		return ids
	}
	return append(ids, id)
}
