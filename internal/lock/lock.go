// Package lock provides per-idea single-instance protection via a lock
// file, so two engine runs cannot drive the same idea concurrently.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Info describes the lock holder.
type Info struct {
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
	Hostname  string    `json:"hostname"`
}

// Lock guards one idea directory. Acquire is atomic via O_EXCL; a lock
// left behind by a dead process is taken over.
type Lock struct {
	path     string
	acquired bool
}

// Path returns the engine lock file for an idea directory.
func Path(ideaDir string) string {
	return filepath.Join(ideaDir, ".implkit", "engine.lock")
}

// New creates a Lock for the given lock file path.
func New(path string) *Lock {
	return &Lock{path: path}
}

// ProcessAlive reports whether a process with the given PID is still
// running. Exposed for offline status inspection.
func ProcessAlive(pid int) bool {
	return processAlive(pid)
}

// Acquire takes the lock, removing a stale one first. Returns an error
// naming the live holder when another run owns the idea.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("create lock file: %w", err)
		}

		info, readErr := l.readInfo()
		if readErr == nil && processAlive(info.PID) {
			return fmt.Errorf("another run holds this idea (PID %d, started %s)",
				info.PID, info.StartTime.Format(time.RFC3339))
		}

		// Unreadable or stale lock: remove and retry once.
		os.Remove(l.path)
		return l.acquireOnce()
	}

	return l.seal(f)
}

// acquireOnce retries without recursing so two racers cannot loop.
func (l *Lock) acquireOnce() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			info, _ := l.readInfo()
			if info != nil && processAlive(info.PID) {
				return fmt.Errorf("another run holds this idea (PID %d, started %s)",
					info.PID, info.StartTime.Format(time.RFC3339))
			}
			return fmt.Errorf("lock file exists and could not be acquired")
		}
		return fmt.Errorf("create lock file: %w", err)
	}
	return l.seal(f)
}

// seal writes the holder info and marks the lock acquired.
func (l *Lock) seal(f *os.File) error {
	if err := writeInfo(f); err != nil {
		f.Close()
		os.Remove(l.path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("close lock file: %w", err)
	}
	l.acquired = true
	return nil
}

// Release removes the lock file. Releasing an unacquired lock is a
// no-op.
func (l *Lock) Release() error {
	if !l.acquired {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	l.acquired = false
	return nil
}

// IsStale reports whether the lock file names a dead process.
func (l *Lock) IsStale() bool {
	info, err := l.readInfo()
	if err != nil {
		return false
	}
	return !processAlive(info.PID)
}

func (l *Lock) readInfo() (*Info, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func writeInfo(f *os.File) error {
	hostname, _ := os.Hostname()
	info := Info{
		PID:       os.Getpid(),
		StartTime: time.Now(),
		Hostname:  hostname,
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock info: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write lock info: %w", err)
	}
	return nil
}
