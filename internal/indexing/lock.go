package indexing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process is rebuilding the same index.
var ErrLocked = errors.New("index is locked by another job")

// acquireLock takes an exclusive, non-blocking lock on dir/<name>.lock.
func acquireLock(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lockPath := filepath.Join(dir, name+".lock")
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lockFile.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("index %q: %w", name, ErrLocked)
		}
		return nil, fmt.Errorf("failed to acquire lock for index %q: %w", name, err)
	}
	return lockFile, nil
}

// releaseLock releases the lock. The lock file is left in place so a waiting
// job never locks an unlinked inode.
func releaseLock(lockFile *os.File) error {
	if lockFile == nil {
		return nil
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_UN); err != nil {
		lockFile.Close()
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return lockFile.Close()
}
