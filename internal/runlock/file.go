package runlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is an advisory lock on a local file. It only excludes processes
// on the same host.
type FileLock struct {
	lock *flock.Flock
}

// NewFileLock creates a lock on path. The file is created on first Lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{lock: flock.New(path)}
}

// Lock takes the flock. A held flock cannot be lost, so ctx is returned as is.
func (l *FileLock) Lock(ctx context.Context) (context.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(l.lock.Path()), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", l.lock.Path(), err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return ctx, nil
}

func (l *FileLock) Unlock(context.Context) error {
	if !l.lock.Locked() {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("unlocking %s: %w", l.lock.Path(), err)
	}
	return nil
}

func (l *FileLock) Close() error {
	return l.lock.Close()
}
