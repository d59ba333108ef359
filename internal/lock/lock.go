// Package lock provides named, TTL-bounded, non-blocking locks for periodic jobs.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLocked is returned when the lock is held by another owner.
var ErrLocked = errors.New("lock: already held")

// ReleaseFunc releases a held lock. Releasing an expired lock is a no-op.
type ReleaseFunc func(ctx context.Context) error

// Locker acquires named locks without waiting.
type Locker interface {
	// TryLock acquires key for at most ttl. Returns ErrLocked if it is held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}
