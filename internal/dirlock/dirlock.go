// Package dirlock provides the exclusive, advisory, non-blocking file lock
// used for both the store directory's ".lock" and the manifest's
// "manifest.lock" (spec.md §5): a second opener on the same file fails
// fast rather than blocking.
package dirlock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock is a held exclusive advisory lock on a zero-byte file.
type Lock struct {
	file *os.File
	path string
}

// Acquire creates (if needed) and exclusively locks the file at path,
// returning the held Lock. If another process (or the same process,
// through another Lock) already holds it, ErrLocked wraps the underlying
// EWOULDBLOCK.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dirlock: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrLocked, path, err)
	}

	return &Lock{file: f, path: path}, nil
}

// ErrLocked wraps a failed lock acquisition caused by contention.
var ErrLocked = errLocked{}

type errLocked struct{}

func (errLocked) Error() string { return "dirlock: already locked" }

// Release unlocks and removes the lock file. Safe to call once; matches
// the teacher/prototype convention of unlocking then deleting on close.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	removeErr := os.Remove(l.path)
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("dirlock: unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("dirlock: close %s: %w", l.path, closeErr)
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("dirlock: remove %s: %w", l.path, removeErr)
	}
	return nil
}
