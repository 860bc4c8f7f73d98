// Package plan parses implementation plan documents: markdown checklists of
// numbered tasks grouped into threads. The engine consumes plans through the
// narrow collaborator contract (next incomplete task, completion queries)
// and never mutates them; the coding agent owns the checkboxes.
package plan

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Task is one plan entry the engine hands to the coding agent.
type Task struct {
	Thread int
	Number int
	Title  string
	// Body holds the indented detail lines under the checkbox, verbatim.
	Body string
}

// Render returns the human-readable block used as the agent prompt.
func (t *Task) Render() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "Task %d.%d: %s\n", t.Thread, t.Number, t.Title)
	if t.Body != "" {
		b.WriteString(t.Body)
		if !strings.HasSuffix(t.Body, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Document is a parsed plan file.
type Document struct {
	Path  string
	tasks []parsedTask
}

type parsedTask struct {
	Task
	Completed bool
}

// Task lines: - [ ] 1.2 Title or - [x] 1.2 Title
var taskLineRe = regexp.MustCompile(`^\s*-\s*\[([ xX])\]\s*(\d+)\.(\d+)\s+(.+)$`)

// Parse parses plan content.
func Parse(content string) *Document {
	doc := &Document{}
	lines := strings.Split(content, "\n")

	var current *parsedTask
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.Body = strings.TrimRight(body.String(), "\n")
			doc.tasks = append(doc.tasks, *current)
			current = nil
		}
		body.Reset()
	}

	for _, line := range lines {
		if matches := taskLineRe.FindStringSubmatch(line); matches != nil {
			flush()
			thread := atoi(matches[2])
			number := atoi(matches[3])
			current = &parsedTask{
				Task: Task{
					Thread: thread,
					Number: number,
					Title:  strings.TrimSpace(matches[4]),
				},
				Completed: matches[1] == "x" || matches[1] == "X",
			}
			continue
		}
		if current != nil {
			trimmed := strings.TrimRight(line, "\r")
			// Detail lines are indented; a flush happens at the next
			// checkbox or heading.
			if strings.HasPrefix(trimmed, "  ") || trimmed == "" {
				body.WriteString(trimmed)
				body.WriteString("\n")
				continue
			}
			flush()
		}
	}
	flush()

	return doc
}

// Read parses the plan file at path.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	doc := Parse(string(data))
	doc.Path = path
	return doc, nil
}

// NextTask returns the first incomplete task in document order, or nil when
// the plan is finished.
func (d *Document) NextTask() *Task {
	for i := range d.tasks {
		if !d.tasks[i].Completed {
			t := d.tasks[i].Task
			return &t
		}
	}
	return nil
}

// IsCompleted reports whether task (thread, number) is checked off.
// Unknown tasks report false.
func (d *Document) IsCompleted(thread, number int) bool {
	for i := range d.tasks {
		if d.tasks[i].Thread == thread && d.tasks[i].Number == number {
			return d.tasks[i].Completed
		}
	}
	return false
}

// Tasks returns all parsed tasks in document order with completion flags.
func (d *Document) Tasks() []Task {
	out := make([]Task, len(d.tasks))
	for i := range d.tasks {
		out[i] = d.tasks[i].Task
	}
	return out
}

// TaskCount returns the number of tasks in the plan.
func (d *Document) TaskCount() int { return len(d.tasks) }

// Remaining returns the number of incomplete tasks.
func (d *Document) Remaining() int {
	n := 0
	for i := range d.tasks {
		if !d.tasks[i].Completed {
			n++
		}
	}
	return n
}

// CompletedTransitions compares two versions of the same plan pairwise in
// document order and returns the tasks that are incomplete in old but
// complete in new. This is the commit-recovery detection primitive: a prior
// run that marked a task done but crashed before committing leaves exactly
// such a transition between HEAD and the working tree.
func CompletedTransitions(old, new *Document) []Task {
	var out []Task
	for i := range new.tasks {
		cur := &new.tasks[i]
		if !cur.Completed {
			continue
		}
		for j := range old.tasks {
			prev := &old.tasks[j]
			if prev.Thread == cur.Thread && prev.Number == cur.Number {
				if !prev.Completed {
					out = append(out, cur.Task)
				}
				break
			}
		}
	}
	return out
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
