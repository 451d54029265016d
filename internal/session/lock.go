package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrSessionLocked is returned when another run holds the session.
var ErrSessionLocked = errors.New("session is already running")

// Lock is an advisory per-session file lock.
type Lock struct {
	path string
	lock *flock.Flock
}

// AcquireLock takes the lock at path without blocking.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionLocked, path)
	}
	return &Lock{path: path, lock: l}, nil
}

// Release unlocks. The lock file stays so concurrent acquirers never race
// on a deleted inode.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return l.lock.Unlock()
}

func (l *Lock) Path() string {
	return l.path
}
