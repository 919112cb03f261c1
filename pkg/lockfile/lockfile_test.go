package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestAcquireAndRelease verifies the basic functionality of acquiring and releasing a lock.
func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)

	lock, err := Acquire(context.Background(), dir, "analyze")
	if err != nil {
		t.Fatalf("expected to acquire lock, but got error: %v", err)
	}

	content, err := readContent(lockPath)
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	if content.Command != "analyze" || content.PID != int64(os.Getpid()) || content.Token == "" {
		t.Errorf("unexpected lock content: %+v", content)
	}

	lock.Release()

	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatal("lock file was not removed after releasing lock")
	}
}

// TestContention ensures that a second run cannot acquire an active lock.
func TestContention(t *testing.T) {
	dir := t.TempDir()

	lock1, err := Acquire(context.Background(), dir, "analyze")
	if err != nil {
		t.Fatalf("first run failed to acquire lock: %v", err)
	}
	defer lock1.Release()

	_, err = Acquire(context.Background(), dir, "deploy")
	if err == nil {
		t.Fatal("second run unexpectedly acquired an active lock")
	}

	var lockErr *ErrLockActive
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected error of type *ErrLockActive, but got %T: %v", err, err)
	}
	if lockErr.Command != "analyze" {
		t.Errorf("expected lock error to report command 'analyze', but got '%s'", lockErr.Command)
	}
}

func writeLock(t *testing.T, path string, c LockContent) {
	t.Helper()
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

// TestStaleLockTakeover verifies that a stale lock is taken over.
func TestStaleLockTakeover(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)
	writeLock(t, lockPath, LockContent{
		PID:        12345,
		Hostname:   "stale-host",
		Command:    "analyze",
		LastUpdate: time.Now().Add(-(staleTimeout + time.Minute)),
		Token:      "stale",
	})

	lock, err := Acquire(context.Background(), dir, "deploy")
	if err != nil {
		t.Fatalf("expected to take over stale lock, got: %v", err)
	}
	defer lock.Release()

	content, err := readContent(lockPath)
	if err != nil {
		t.Fatal(err)
	}
	if content.Token == "stale" || content.Command != "deploy" {
		t.Errorf("lock was not taken over: %+v", content)
	}
}

func TestCorruptLockIsTakenOver(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LockFileName), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(context.Background(), dir, "analyze")
	if err != nil {
		t.Fatalf("expected corrupt lock to be taken over, got: %v", err)
	}
	lock.Release()
}

func TestHeartbeatRefreshesLock(t *testing.T) {
	origInterval := heartbeatInterval
	heartbeatInterval = 20 * time.Millisecond
	t.Cleanup(func() { heartbeatInterval = origInterval })

	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)

	lock, err := Acquire(context.Background(), dir, "analyze")
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	first, err := readContent(lockPath)
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(30 * time.Millisecond)
		current, err := readContent(lockPath)
		if err == nil && current.LastUpdate.After(first.LastUpdate) {
			return
		}
	}
	t.Fatal("heartbeat did not refresh the lock file")
}

func TestReleaseIdempotency(t *testing.T) {
	lock, err := Acquire(context.Background(), t.TempDir(), "analyze")
	if err != nil {
		t.Fatal(err)
	}
	lock.Release()
	lock.Release()
}

func TestAcquireCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Acquire(ctx, t.TempDir(), "analyze"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReadContentCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readContent(path); !errors.Is(err, ErrCorruptLockFile) {
		t.Errorf("expected ErrCorruptLockFile for empty file, got %v", err)
	}
}
