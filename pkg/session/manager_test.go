package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/concierge-sh/concierge/pkg/adapters/memory"
	"github.com/concierge-sh/concierge/pkg/ports"
	"github.com/concierge-sh/concierge/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_WithLockSerializesOneSession(t *testing.T) {
	m := session.NewManager(memory.NewStore())
	ctx := context.Background()

	const workers = 20
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(ctx, "session-1", func(ctx context.Context) error {
				// Unguarded read-modify-write: only safe if WithLock serializes.
				v := counter
				time.Sleep(time.Millisecond)
				counter = v + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestManager_DifferentSessionsRunConcurrently(t *testing.T) {
	m := session.NewManager(memory.NewStore())
	ctx := context.Background()

	release := make(chan struct{})
	holding := make(chan struct{})

	go func() {
		_ = m.WithLock(ctx, "session-a", func(ctx context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding

	// While session-a is held, session-b must proceed.
	done := make(chan struct{})
	go func() {
		_ = m.WithLock(ctx, "session-b", func(ctx context.Context) error {
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("independent session blocked by another session's lock")
	}
	close(release)
}

func TestManager_CreateAndDelete(t *testing.T) {
	store := memory.NewStore()
	m := session.NewManager(store)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "s1", "stock_exchange", "browse"))

	ids, err := m.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "s1")

	deleted, err := m.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestManager_NilStoreIsEphemeral(t *testing.T) {
	m := session.NewManager(nil)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "s1", "wf", "start"))
	deleted, err := m.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Nil(t, m.Store())
}

type fakeLocker struct {
	mu      sync.Mutex
	locked  map[string]bool
	acquire int
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked == nil {
		f.locked = make(map[string]bool)
	}
	f.locked[key] = true
	f.acquire++
	return func(ctx context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.locked, key)
		return nil
	}, nil
}

func TestManager_DistributedLockerIsUsed(t *testing.T) {
	locker := &fakeLocker{}
	m := session.NewManager(memory.NewStore(), session.WithLocker(locker))

	err := m.WithLock(context.Background(), "s1", func(ctx context.Context) error {
		locker.mu.Lock()
		defer locker.mu.Unlock()
		assert.True(t, locker.locked["s1"], "distributed lock held during fn")
		return nil
	})
	require.NoError(t, err)

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Equal(t, 1, locker.acquire)
	assert.False(t, locker.locked["s1"], "distributed lock released after fn")
}
