// Package lock serializes access to the chat client across the components
// of one process.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout is returned when the lock could not be acquired in time.
var ErrTimeout = errors.New("lock: acquire timed out")

// ExclusiveAccess is held while a component drives the client.
type ExclusiveAccess interface {
	Acquire(ctx context.Context) error
	Release()
}

// Local is an in-process ExclusiveAccess.
type Local struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

var (
	_ ExclusiveAccess = (*Local)(nil)
	_ ExclusiveAccess = Noop{}
)

// NewLocal returns a lock that waits at most timeout per Acquire. A zero
// timeout waits as long as the context allows.
func NewLocal(timeout time.Duration) *Local {
	return &Local{sem: semaphore.NewWeighted(1), timeout: timeout}
}

// Acquire blocks until the lock is held, the timeout passes or ctx ends.
func (l *Local) Acquire(ctx context.Context) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, l.timeout)
		}
		return err
	}
	return nil
}

// TryAcquire takes the lock only if it is free.
func (l *Local) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release gives the lock back.
func (l *Local) Release() {
	l.sem.Release(1)
}

// Noop never blocks.
type Noop struct{}

func (Noop) Acquire(context.Context) error { return nil }
func (Noop) Release()                      {}

// With runs fn while holding l.
func With(ctx context.Context, l ExclusiveAccess, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}
