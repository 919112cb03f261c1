// Package lockfile guards a directory against concurrent runs with a JSON
// lock file that the owner refreshes periodically. A lock that has not been
// refreshed within the stale timeout is taken over.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paulschiretz/pgl-deploy/pkg/plog"
	"github.com/paulschiretz/pgl-deploy/pkg/util"
)

// LockFileName is created in the guarded directory. The '~' prefix marks it
// as temporary.
const LockFileName = ".~pgl-deploy.lock"

// LockContent is the JSON stored in the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	Command    string    `json:"command"`
	LastUpdate time.Time `json:"lastUpdate"`
	// Token identifies one acquisition; it settles takeover races.
	Token string `json:"token"`
}

// ErrLockActive is returned when another process holds a fresh lock.
type ErrLockActive struct {
	PID       int64
	Hostname  string
	Command   string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("lock is active, held by PID %d on host '%s' (%s), last updated %s ago",
		e.PID, e.Hostname, e.Command, e.TimeSince.Truncate(time.Second))
}

// ErrLostRace is returned when another process won a stale lock takeover.
var ErrLostRace = errors.New("lost race during stale lock takeover")

// ErrCorruptLockFile means the lock file is empty or not valid JSON.
var ErrCorruptLockFile = errors.New("lock file is corrupt or empty")

// These are vars to allow modification during testing.
var (
	heartbeatInterval = 30 * time.Second
	staleTimeout      = 3 * heartbeatInterval
	retryPause        = 100 * time.Millisecond
)

// Lock is a held lock. Release it when done.
type Lock struct {
	path string

	mu      sync.Mutex
	content LockContent
	held    bool
	stop    context.CancelFunc
	done    chan struct{}
}

// Acquire takes the lock in dir for command. ctx bounds the acquisition,
// not the lifetime of the lock. An active lock held by someone else yields
// *ErrLockActive.
func Acquire(ctx context.Context, dir, command string) (*Lock, error) {
	lockPath := filepath.Join(dir, LockFileName)
	const maxAttempts = 3

	for range maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := newContent(command)
		if err != nil {
			return nil, err
		}

		err = createExclusive(lockPath, content)
		if err == nil {
			return start(lockPath, content), nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to access lock file: %w", err)
		}

		existing, readErr := readContent(lockPath)
		switch {
		case errors.Is(readErr, os.ErrNotExist):
			// Released between our create and read.
			continue
		case errors.Is(readErr, ErrCorruptLockFile):
			plog.Warn("Found corrupt lock file, treating as stale", "path", lockPath, "error", readErr)
		case readErr != nil:
			return nil, readErr
		default:
			if age := time.Since(existing.LastUpdate); age < staleTimeout {
				return nil, &ErrLockActive{
					PID:       existing.PID,
					Hostname:  existing.Hostname,
					Command:   existing.Command,
					TimeSince: age,
				}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", existing.PID, "host", existing.Hostname)
		}

		if err := takeover(lockPath, content); err != nil {
			if errors.Is(err, ErrLostRace) {
				plog.Debug("Lock takeover race lost, retrying acquisition")
			} else {
				plog.Warn("Failed to take over lock, retrying", "error", err)
			}
			time.Sleep(retryPause)
			continue
		}
		return start(lockPath, content), nil
	}

	return nil, fmt.Errorf("failed to acquire lock after %d attempts (contention)", maxAttempts)
}

func newContent(command string) (LockContent, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return LockContent{}, fmt.Errorf("failed to read hostname: %w", err)
	}
	return LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		Command:    command,
		LastUpdate: time.Now().UTC(),
		Token:      uuid.NewString(),
	}, nil
}

// createExclusive creates the lock file only if it does not exist yet.
func createExclusive(lockPath string, content LockContent) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return err
	}
	werr := json.NewEncoder(f).Encode(content)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(lockPath)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// takeover replaces a stale lock and verifies by reading it back.
func takeover(lockPath string, content LockContent) error {
	if err := writeAtomic(lockPath, content); err != nil {
		return err
	}
	got, err := readContent(lockPath)
	if err != nil {
		return fmt.Errorf("failed to read back lock file after takeover: %w", err)
	}
	if got.Token != content.Token {
		return ErrLostRace
	}
	return nil
}

func start(lockPath string, content LockContent) *Lock {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Lock{
		path:    lockPath,
		content: content,
		held:    true,
		stop:    cancel,
		done:    make(chan struct{}),
	}
	go l.heartbeat(ctx)
	plog.Debug("Lock acquired", "path", lockPath)
	return l
}

func (l *Lock) heartbeat(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			l.content.LastUpdate = time.Now().UTC()
			content := l.content
			l.mu.Unlock()
			if err := writeAtomic(l.path, content); err != nil {
				plog.Warn("Heartbeat failed to update lock file", "error", err)
			}
		}
	}
}

// Release stops the heartbeat and removes the lock file. It is safe to call
// more than once.
func (l *Lock) Release() {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return
	}
	l.held = false
	l.mu.Unlock()

	l.stop()
	<-l.done

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
		return
	}
	plog.Debug("Lock released", "path", l.path)
}

// writeAtomic writes content to a temp file in the same directory and
// renames it over lockPath, so readers never see a partial file.
func writeAtomic(lockPath string, content LockContent) error {
	tmp, err := os.CreateTemp(filepath.Dir(lockPath), filepath.Base(lockPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp lock file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp lock file: %w", err)
	}
	if err := os.Rename(tmp.Name(), lockPath); err != nil {
		return fmt.Errorf("failed to rename temp file to lock file: %w", err)
	}
	return nil
}

// readContent reads the lock file, retrying briefly on empty or partial
// content.
func readContent(lockPath string) (LockContent, error) {
	var lastErr error
	for range 3 {
		data, err := os.ReadFile(lockPath)
		if err != nil {
			return LockContent{}, err
		}
		var content LockContent
		if len(data) == 0 {
			lastErr = errors.New("lock file is empty")
		} else if lastErr = json.Unmarshal(data, &content); lastErr == nil {
			return content, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return LockContent{}, fmt.Errorf("%w: %v", ErrCorruptLockFile, lastErr)
}
