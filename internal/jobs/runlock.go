package jobs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"songfactory/internal/config"
)

// RunLock is the cross-process lock held while a run mutates the catalog.
type RunLock struct {
	lock *flock.Flock
}

// AcquireRunLock takes the state directory run lock without blocking. A lock
// held by another runner or process reports ErrAlreadyRunning.
func AcquireRunLock(cfg *config.Config) (*RunLock, error) {
	path := cfg.RunLockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s is held by another process)", ErrAlreadyRunning, path)
	}
	return &RunLock{lock: lock}, nil
}

// Release drops the lock. It is safe on a nil RunLock.
func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
