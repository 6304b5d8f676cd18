package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/concierge-sh/concierge/internal/logging"
	"github.com/concierge-sh/concierge/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu     sync.Mutex
	refs   int
	unlock ports.UnlockFunc
}

// Manager serializes access per session ID. The orchestration core mutates
// unguarded state (cursor, local data, pending transition, history), so each
// inbound action for a session must run to completion before the next is
// accepted; different sessions proceed concurrently. Reference counting
// garbage-collects locks for idle sessions.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL bounds how long a crashed holder can wedge a session lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for deferred errors.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager over the given persistence store.
// The store may be nil for purely ephemeral sessions.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after
// unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the session's lock, acquiring the
// distributed lock first when one is configured.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Store returns the underlying state store, which may be nil.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// Create registers the session in the store under the session lock.
// No-op without a store.
func (m *Manager) Create(ctx context.Context, sessionID, workflowName, initialStage string) error {
	if m.store == nil {
		return nil
	}
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Create(ctx, sessionID, workflowName, initialStage)
	})
}

// Delete removes the session from the store under the session lock.
func (m *Manager) Delete(ctx context.Context, sessionID string) (bool, error) {
	if m.store == nil {
		return false, nil
	}
	var deleted bool
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		deleted, err = m.store.Delete(ctx, sessionID)
		return err
	})
	return deleted, err
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.List(ctx)
}
