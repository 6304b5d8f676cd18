package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker provides cross-instance concurrency control. It lets the
// session manager serialize access to a session ID across replicas; it does
// not replicate state.
type DistributedLocker interface {
	// Lock acquires a lock for the given key, blocking until acquired or the
	// context is canceled. The returned UnlockFunc MUST be called to release
	// the lock; the TTL bounds how long a crashed holder can wedge the key.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
