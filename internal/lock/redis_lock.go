package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix         = "drama-notifier:lock:"
	defaultExpiry     = 60 * time.Second
	defaultRetryDelay = 250 * time.Millisecond
	maxLockTries      = 1000
)

// RedisLocker serializes callers across instances sharing one Redis. Held
// locks are extended in the background every half expiry until unlocked, so
// a long dispatch run keeps its lock.
type RedisLocker struct {
	rs         *redsync.Redsync
	expiry     time.Duration
	retryDelay time.Duration
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(rdb redis.UniversalClient, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &RedisLocker{
		rs:         redsync.New(goredis.NewPool(rdb)),
		expiry:     expiry,
		retryDelay: defaultRetryDelay,
	}
}

func (l *RedisLocker) WithRetryDelay(d time.Duration) *RedisLocker {
	l.retryDelay = d
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Handle, error) {
	m := l.rs.NewMutex(keyPrefix+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(maxLockTries),
		redsync.WithRetryDelay(l.retryDelay),
	)

	if err := m.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, err)
	}

	h := &redisHandle{
		mutex: m,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go h.keepAlive(l.expiry / 2)
	return h, nil
}

type redisHandle struct {
	mutex *redsync.Mutex
	once  sync.Once
	stop  chan struct{}
	done  chan struct{}
}

func (h *redisHandle) keepAlive(every time.Duration) {
	defer close(h.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			if ok, err := h.mutex.ExtendContext(context.Background()); err != nil || !ok {
				slog.Warn("lock extend failed", "key", h.mutex.Name(), "error", err)
			}
		}
	}
}

func (h *redisHandle) Unlock(ctx context.Context) error {
	err := ErrNotHeld
	h.once.Do(func() {
		close(h.stop)
		<-h.done

		ok, uerr := h.mutex.UnlockContext(ctx)
		switch {
		case uerr != nil && !errors.Is(uerr, redsync.ErrLockAlreadyExpired):
			err = fmt.Errorf("unlock %s: %w", h.mutex.Name(), uerr)
		case !ok:
			err = ErrNotHeld
		default:
			err = nil
		}
	})
	return err
}
