package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockFileName is the advisory write lock of a project index directory.
const lockFileName = "index.lock"

// lockRetryDelay is the polling interval while waiting for the lock.
const lockRetryDelay = 50 * time.Millisecond

// FileLock is a cross-process advisory lock on a project index directory.
// It serializes indexing passes; searches never take it.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock for the index directory dir.
func NewFileLock(dir string) *FileLock {
	lockPath := filepath.Join(dir, lockFileName)
	return &FileLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if it's held elsewhere.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// TryLockWait retries TryLock until it succeeds, wait elapses or ctx ends.
// It reports false without error when the lock stayed held.
func (l *FileLock) TryLockWait(ctx context.Context, wait time.Duration) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	acquired, err := l.flock.TryLockContext(waitCtx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if waitCtx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. It is safe to call on an unlocked FileLock.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked returns true if this FileLock holds the lock.
func (l *FileLock) IsLocked() bool {
	return l.locked
}

// isHeld reports whether some other holder has the lock on dir. It never
// creates the directory.
func isHeld(dir string) bool {
	path := filepath.Join(dir, lockFileName)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	probe := flock.New(path)
	acquired, err := probe.TryLock()
	if err != nil {
		return false
	}
	if acquired {
		_ = probe.Unlock()
		return false
	}
	return true
}
