package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir, "my-idea")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.SliceNumber != 1 {
		t.Errorf("SliceNumber = %d, want 1", s.SliceNumber)
	}
	if s.ProcessedCommentIDs == nil || s.ProcessedReviewIDs == nil || s.ProcessedConversationIDs == nil {
		t.Error("ID sets should be initialized, not nil")
	}
}

func TestLoadDefaultFillsPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "my-idea")
	// Only slice_number present; the rest must default-fill.
	if err := os.WriteFile(path, []byte(`{"slice_number": 4}`), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir, "my-idea")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.SliceNumber != 4 {
		t.Errorf("SliceNumber = %d, want 4", s.SliceNumber)
	}
	if s.ProcessedCommentIDs == nil {
		t.Error("ProcessedCommentIDs should default to empty slice")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir, "my-idea")
	if err != nil {
		t.Fatal(err)
	}
	s.SliceNumber = 3
	s.MarkComment("100")
	s.MarkReview("200")
	s.MarkConversation("300")
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(dir, "my-idea")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.SliceNumber != 3 {
		t.Errorf("SliceNumber = %d, want 3", loaded.SliceNumber)
	}
	if !loaded.HasComment("100") || !loaded.HasReview("200") || !loaded.HasConversation("300") {
		t.Error("processed IDs lost across save/load")
	}

	// Save must not leave temp files behind.
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.Name() != filepath.Base(Path(dir, "my-idea")) {
			t.Errorf("unexpected file left in state dir: %s", e.Name())
		}
	}
}

func TestMarkIsAppendOnly(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir, "idea")
	if err != nil {
		t.Fatal(err)
	}

	s.MarkComment("1")
	s.MarkComment("1")
	s.MarkComment("2")
	if len(s.ProcessedCommentIDs) != 2 {
		t.Errorf("ProcessedCommentIDs = %v, want two unique IDs", s.ProcessedCommentIDs)
	}
	if !s.HasComment("1") || !s.HasComment("2") {
		t.Error("marked IDs should be queryable")
	}
	if s.HasComment("3") {
		t.Error("unmarked ID should not be present")
	}
}

func TestSaveFileIsValidJSON(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir, "idea")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(Path(dir, "idea"))
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("state file is not valid JSON: %v", err)
	}
	if _, ok := parsed["slice_number"]; !ok {
		t.Error("state file missing slice_number field")
	}
}
