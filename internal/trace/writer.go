package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventWriter appends events to a JSONL session file. Safe for
// concurrent use. Each write is flushed to disk so a crash loses at
// most the event in flight.
type EventWriter struct {
	mu   sync.Mutex
	file *os.File
	path string
	seq  int
}

// SessionPath returns the event file for a session under the idea
// directory.
func SessionPath(ideaDir, session string) string {
	return filepath.Join(ideaDir, ".implkit", "events", session+".jsonl")
}

// NewSession derives a session name from the current time.
func NewSession() string {
	return time.Now().UTC().Format("20060102-150405")
}

// NewEventWriter opens (or creates) the event file at path, resuming
// the sequence counter from the last recorded event.
func NewEventWriter(path string) (*EventWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event dir: %w", err)
	}

	seq, err := lastSeq(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event file: %w", err)
	}

	return &EventWriter{file: f, path: path, seq: seq}, nil
}

// Emit records one event and returns it with its assigned sequence
// number. Write failures are returned but callers generally treat
// tracing as best effort.
func (w *EventWriter) Emit(component, eventType, level string, opts ...Option) (*Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	e := NewEvent(w.seq, component, eventType, level, opts...)

	line, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("write event: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return nil, fmt.Errorf("sync event file: %w", err)
	}
	return e, nil
}

// Path returns the file this writer appends to.
func (w *EventWriter) Path() string {
	return w.path
}

// Close closes the underlying file.
func (w *EventWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// lastSeq scans an existing event file for the highest sequence number.
// A missing file starts the counter at zero.
func lastSeq(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open event file: %w", err)
	}
	defer f.Close()

	seq := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // tolerate a torn trailing line
		}
		if e.Seq > seq {
			seq = e.Seq
		}
	}
	return seq, nil
}
