package utils

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process holds the run lock.
var ErrLocked = errors.New("another hairpin run is in progress")

// FileLock is an exclusive advisory lock on a file.
type FileLock struct {
	file *os.File
}

// TryLock takes an exclusive non-blocking flock on path, creating the file if needed.
func TryLock(path string) (*FileLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		CloseOrWarn(file)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	return &FileLock{file: file}, nil
}

// Unlock releases the lock. The lock file itself is left in place.
func (l *FileLock) Unlock() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		CloseOrWarn(l.file)
		return err
	}
	return l.file.Close()
}
