package plan

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePlan = `# Plan

## Thread 1: Setup

- [x] 1.1 Initialize project
  Create the module skeleton.
- [ ] 1.2 Add README
  Write an overview.
  Include usage examples.

## Thread 2: Features

- [ ] 2.1 Implement cache
`

func TestParse(t *testing.T) {
	doc := Parse(samplePlan)

	if got := doc.TaskCount(); got != 3 {
		t.Fatalf("TaskCount = %d, want 3", got)
	}
	if got := doc.Remaining(); got != 2 {
		t.Errorf("Remaining = %d, want 2", got)
	}

	if !doc.IsCompleted(1, 1) {
		t.Error("task 1.1 should be completed")
	}
	if doc.IsCompleted(1, 2) {
		t.Error("task 1.2 should not be completed")
	}
	if doc.IsCompleted(9, 9) {
		t.Error("unknown task should report not completed")
	}
}

func TestNextTask(t *testing.T) {
	doc := Parse(samplePlan)

	next := doc.NextTask()
	if next == nil {
		t.Fatal("expected a next task")
	}
	if next.Thread != 1 || next.Number != 2 {
		t.Errorf("next task = %d.%d, want 1.2", next.Thread, next.Number)
	}
	if next.Title != "Add README" {
		t.Errorf("title = %q, want %q", next.Title, "Add README")
	}

	finished := Parse("- [x] 1.1 Done\n")
	if finished.NextTask() != nil {
		t.Error("finished plan should have no next task")
	}
}

func TestTaskBody(t *testing.T) {
	doc := Parse(samplePlan)
	next := doc.NextTask()
	if next == nil {
		t.Fatal("expected a next task")
	}
	want := "  Write an overview.\n  Include usage examples."
	if next.Body != want {
		t.Errorf("body = %q, want %q", next.Body, want)
	}
}

func TestRender(t *testing.T) {
	task := Task{Thread: 1, Number: 2, Title: "Add README", Body: "  details"}
	got := task.Render()
	want := "Task 1.2: Add README\n  details\n"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestCompletedTransitions(t *testing.T) {
	t.Run("detects incomplete to complete flip", func(t *testing.T) {
		old := Parse("- [ ] 1.1 First\n- [ ] 1.2 Second\n")
		cur := Parse("- [x] 1.1 First\n- [ ] 1.2 Second\n")

		got := CompletedTransitions(old, cur)
		if len(got) != 1 {
			t.Fatalf("transitions = %d, want 1", len(got))
		}
		if got[0].Thread != 1 || got[0].Number != 1 {
			t.Errorf("transition = %d.%d, want 1.1", got[0].Thread, got[0].Number)
		}
	})

	t.Run("identical plans yield nothing", func(t *testing.T) {
		old := Parse(samplePlan)
		cur := Parse(samplePlan)
		if got := CompletedTransitions(old, cur); len(got) != 0 {
			t.Errorf("transitions = %d, want 0", len(got))
		}
	})

	t.Run("already complete tasks are ignored", func(t *testing.T) {
		old := Parse("- [x] 1.1 First\n")
		cur := Parse("- [x] 1.1 First\n")
		if got := CompletedTransitions(old, cur); len(got) != 0 {
			t.Errorf("transitions = %d, want 0", len(got))
		}
	})
}

func TestFileReloadsOnEveryQuery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.md")
	if err := os.WriteFile(path, []byte("- [ ] 1.1 First\n"), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFile(path)
	done, err := f.IsCompleted(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Fatal("task should start incomplete")
	}

	// The agent checks the box between queries.
	if err := os.WriteFile(path, []byte("- [x] 1.1 First\n"), 0644); err != nil {
		t.Fatal(err)
	}
	done, err = f.IsCompleted(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Error("completion should be visible without re-opening the file handle")
	}

	next, err := f.NextTask()
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Errorf("expected no next task, got %d.%d", next.Thread, next.Number)
	}
}
