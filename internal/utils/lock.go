package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockFileSuffix = ".lock"

// DBLock serializes writers of one SQLite database across processes,
// so an overlapping cron tick and a manual run never interleave.
type DBLock struct {
	lock *flock.Flock
	path string
}

// NewDBLock creates a lock file next to the database.
func NewDBLock(dbPath string) (*DBLock, error) {
	absPath, err := GetAbsDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute db path: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &DBLock{lock: flock.New(lockPath), path: lockPath}, nil
}

// Lock acquires the lock, waiting for another writer if needed.
func (l *DBLock) Lock() error {
	return l.LockContext(context.Background())
}

// LockContext acquires the lock or gives up when ctx is done.
func (l *DBLock) LockContext(ctx context.Context) error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	if locked {
		return nil
	}

	Log.Warnf("Another rivalscope run is writing to the database, waiting for it to finish...")
	locked, err = l.lock.TryLockContext(ctx, 500*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock on %s", l.path)
	}
	return nil
}

// Unlock releases the lock. Releasing a lock that was never taken is a no-op.
func (l *DBLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// GetAbsDBPath resolves the database path, defaulting to the user config dir.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "rivalscope", "rivalscope.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}
