package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concierge-sh/concierge/pkg/adapters/redis"
)

func newTestLocker(t *testing.T) (*redis.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return redis.NewLocker(client, "concierge:"), mr
}

func TestLocker_AcquireAndRelease(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("concierge:lock:s1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("concierge:lock:s1"))
}

func TestLocker_ContendedLockTimesOut(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)
	defer func() { _ = unlock(ctx) }()

	shortCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(shortCtx, "s1", time.Minute)
	assert.ErrorIs(t, err, redis.ErrLockAcquire)
}

func TestLocker_StaleUnlockIsSafe(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)

	// Simulate expiry plus re-acquisition by another holder.
	mr.Del("concierge:lock:s1")
	require.NoError(t, mr.Set("concierge:lock:s1", "other-token"))

	require.NoError(t, unlock(ctx))
	got, err := mr.Get("concierge:lock:s1")
	require.NoError(t, err)
	assert.Equal(t, "other-token", got, "stale unlock must not delete another holder's lock")
}
