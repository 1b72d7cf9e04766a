// Package runlock keeps two Initialize or Reconcile runs against the same
// store from overlapping.
package runlock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLocked is returned by Lock when another process holds the lock.
	ErrLocked = errors.New("another run holds the lock")

	// ErrLeaseLost is the cause of the lock context's cancellation when a
	// lease could not be renewed.
	ErrLeaseLost = errors.New("run lock lease lost")
)

// Locker is a non-blocking mutual exclusion lock across processes.
type Locker interface {
	// Lock acquires the lock or returns ErrLocked without waiting. The
	// returned context is derived from ctx and is cancelled with cause
	// ErrLeaseLost if the lock is lost before Unlock. Work done under the
	// lock should use it.
	Lock(ctx context.Context) (context.Context, error)

	// Unlock releases a held lock. Releasing a lock that is not held is a no-op.
	Unlock(ctx context.Context) error

	// Close releases any resources the Locker holds.
	Close() error
}

// NopLocker never blocks. Use when the store enforces exclusion itself or in tests.
type NopLocker struct{}

func (NopLocker) Lock(ctx context.Context) (context.Context, error) { return ctx, nil }
func (NopLocker) Unlock(context.Context) error                      { return nil }
func (NopLocker) Close() error                                      { return nil }

// keepAlive calls refresh every interval until stop is called. When refresh
// fails the returned context is cancelled with ErrLeaseLost wrapping the
// failure. stop waits for the refresh loop to exit.
func keepAlive(ctx context.Context, interval time.Duration, refresh func(context.Context) error) (context.Context, func()) {
	leaseCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	quit := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-leaseCtx.Done():
				return
			case <-ticker.C:
				if err := refresh(leaseCtx); err != nil {
					cancel(errors.Join(ErrLeaseLost, err))
					return
				}
			}
		}
	}()

	stop := func() {
		close(quit)
		<-done
		cancel(nil)
	}
	return leaseCtx, stop
}
