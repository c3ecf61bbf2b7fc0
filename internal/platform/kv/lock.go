package kv

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when a lock could not be acquired because another
// holder owns it.
var ErrLockHeld = errors.New("lock already held")

const lockRetryInterval = 100 * time.Millisecond

// Locker provides named mutual-exclusion locks with automatic expiry. Each
// acquisition is tagged with a random token so only the holder can release it.
type Locker struct {
	store Store
}

func NewLocker(store Store) *Locker {
	return &Locker{store: store}
}

// Acquire attempts to take the named lock for ttl. When maxWait is positive
// the call retries until the lock is obtained or maxWait elapses; otherwise a
// single attempt is made. On success it returns the holder token needed to
// release the lock.
func (l *Locker) Acquire(ctx context.Context, name string, ttl, maxWait time.Duration) (string, error) {
	key := "lock:" + name
	token := uuid.NewString()
	deadline := time.Now().Add(maxWait)

	for {
		ok, err := l.store.SetNX(ctx, key, token, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if maxWait <= 0 || time.Now().After(deadline) {
			return "", ErrLockHeld
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// Release frees the named lock if token still matches the holder. Releasing
// with a stale token is a no-op and reports false.
func (l *Locker) Release(ctx context.Context, name, token string) (bool, error) {
	return l.store.CompareAndDelete(ctx, "lock:"+name, token)
}
