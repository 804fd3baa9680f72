// Package lock serializes work that must not overlap, such as two dispatch
// runs, or a dispatch run and the rescheduling of an event.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DispatchKey is held by every dispatch run that writes delivery records and
// by every mutation that purges them.
const DispatchKey = "dispatch:ledger"

var (
	ErrNotAcquired = errors.New("lock not acquired")
	ErrNotHeld     = errors.New("lock was not held or already expired")
)

type Locker interface {
	// Lock blocks until the key is acquired or ctx is done.
	Lock(ctx context.Context, key string) (Handle, error)
}

type Handle interface {
	Unlock(ctx context.Context) error
}

// With runs fn while holding key. fn's error wins over an unlock error.
func With(ctx context.Context, l Locker, key string, fn func(ctx context.Context) error) error {
	h, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}

	fnErr := fn(ctx)
	unlockErr := h.Unlock(context.WithoutCancel(ctx))
	if fnErr != nil {
		return fnErr
	}
	return unlockErr
}

// LocalLocker only serializes callers within one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: map[string]chan struct{}{}}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Handle, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return &localHandle{slot: ch}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
	}
}

type localHandle struct {
	once sync.Once
	slot chan struct{}
}

func (h *localHandle) Unlock(context.Context) error {
	released := false
	h.once.Do(func() {
		<-h.slot
		released = true
	})
	if !released {
		return ErrNotHeld
	}
	return nil
}
