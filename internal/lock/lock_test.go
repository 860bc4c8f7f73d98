package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	path := Path(t.TempDir())

	l := New(path)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock file missing after acquire: %v", err)
	}

	// The file records this process as the holder.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("lock file is not valid JSON: %v", err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("lock PID = %d, want %d", info.PID, os.Getpid())
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file should be gone after release")
	}
}

func TestSecondAcquireFails(t *testing.T) {
	path := Path(t.TempDir())

	first := New(path)
	if err := first.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer first.Release()

	// Same live PID holds it.
	second := New(path)
	if err := second.Acquire(); err == nil {
		t.Error("second acquire should fail while holder is alive")
	}
}

func TestStaleLockIsTakenOver(t *testing.T) {
	path := Path(t.TempDir())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}

	// A dead process left the lock behind. PID 1<<22 exceeds any real
	// pid on test systems.
	stale, _ := json.Marshal(Info{PID: 1 << 22, StartTime: time.Now(), Hostname: "gone"})
	if err := os.WriteFile(path, stale, 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(path)
	if !l.IsStale() {
		t.Error("lock with dead holder should report stale")
	}
	if err := l.Acquire(); err != nil {
		t.Fatalf("stale lock should be taken over: %v", err)
	}
	defer l.Release()
}

func TestCorruptLockIsTakenOver(t *testing.T) {
	path := Path(t.TempDir())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(path)
	if err := l.Acquire(); err != nil {
		t.Fatalf("unreadable lock should be taken over: %v", err)
	}
	defer l.Release()
}

func TestReleaseWithoutAcquireIsNoop(t *testing.T) {
	l := New(Path(t.TempDir()))
	if err := l.Release(); err != nil {
		t.Errorf("Release on unacquired lock: %v", err)
	}
}
