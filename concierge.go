package concierge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/concierge-sh/concierge/internal/logging"
	"github.com/concierge-sh/concierge/internal/runtime"
	"github.com/concierge-sh/concierge/pkg/domain"
	"github.com/concierge-sh/concierge/pkg/ports"
	"github.com/concierge-sh/concierge/pkg/session"
)

// Engine is the high-level entry point for the Concierge library. It shares
// one read-only workflow definition across all sessions; each session gets
// its own cloned instance, orchestrator, and dispatcher. All access is
// serialized per session ID.
type Engine struct {
	workflow *domain.Workflow
	sessions *session.Manager
	store    ports.StateStore
	locker   ports.DistributedLocker
	logger   *slog.Logger

	mu     sync.RWMutex
	active map[string]*runtime.Dispatcher
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore enables durable session state backed by the given store.
func WithStore(store ports.StateStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLocker enables distributed session locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// New creates an engine for one workflow definition. The definition is
// validated once and never mutated afterwards.
func New(workflow *domain.Workflow, opts ...Option) (*Engine, error) {
	if workflow == nil {
		return nil, errors.New("workflow is required")
	}
	if err := workflow.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow %q: %w", workflow.Name, err)
	}

	e := &Engine{
		workflow: workflow,
		logger:   logging.NewNop(),
		active:   make(map[string]*runtime.Dispatcher),
	}
	for _, opt := range opts {
		opt(e)
	}

	managerOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(e.locker))
	}
	e.sessions = session.NewManager(e.store, managerOpts...)
	return e, nil
}

// Workflow returns the shared workflow definition.
func (e *Engine) Workflow() *domain.Workflow {
	return e.workflow
}

// CreateSession starts a new session and returns its generated ID along with
// the initial handshake message describing the entry stage.
func (e *Engine) CreateSession(ctx context.Context) (string, string, error) {
	sessionID := uuid.NewString()

	d, err := e.spawn(sessionID)
	if err != nil {
		return "", "", err
	}

	if err := e.sessions.Create(ctx, sessionID, e.workflow.Name, d.Orchestrator().CurrentStage().Name); err != nil {
		return "", "", fmt.Errorf("failed to create session: %w", err)
	}

	e.mu.Lock()
	e.active[sessionID] = d
	e.mu.Unlock()

	e.logger.Info("session created",
		"session_id", sessionID,
		"workflow", e.workflow.Name,
		"stage", d.Orchestrator().CurrentStage().Name,
	)
	return sessionID, d.InitialMessage(), nil
}

// Handle processes one raw action envelope for a session and returns the
// rendered continuation message. Sessions known to the store but not resident
// in memory are rehydrated transparently.
func (e *Engine) Handle(ctx context.Context, sessionID string, raw []byte) (string, error) {
	var out string
	err := e.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		d, err := e.resident(ctx, sessionID)
		if err != nil {
			return err
		}
		out = d.Process(ctx, raw)
		return nil
	})
	return out, err
}

// Info returns a read-only snapshot of a session.
func (e *Engine) Info(ctx context.Context, sessionID string) (domain.SessionInfo, error) {
	var info domain.SessionInfo
	err := e.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		d, err := e.resident(ctx, sessionID)
		if err != nil {
			return err
		}
		info = d.Orchestrator().Info()
		return nil
	})
	return info, err
}

// EndSession terminates a session, removes its durable state, and returns
// the termination message.
func (e *Engine) EndSession(ctx context.Context, sessionID string) (string, error) {
	e.mu.Lock()
	d, resident := e.active[sessionID]
	delete(e.active, sessionID)
	e.mu.Unlock()

	deleted, err := e.sessions.Delete(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !resident && !deleted {
		return "", fmt.Errorf("%w: %q", domain.ErrSessionNotFound, sessionID)
	}

	if d == nil {
		d = runtime.NewDispatcher(runtime.NewOrchestrator(sessionID, e.workflow))
	}
	e.logger.Info("session terminated", "session_id", sessionID)
	return d.TerminationMessage(), nil
}

// Sessions lists known session IDs: resident ones plus any stored ones.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)

	e.mu.RLock()
	for id := range e.active {
		seen[id] = true
	}
	e.mu.RUnlock()

	stored, err := e.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range stored {
		seen[id] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids, nil
}

// History returns the persisted snapshot history of a session. Requires a
// configured store.
func (e *Engine) History(ctx context.Context, sessionID string) ([]domain.Snapshot, error) {
	if e.store == nil {
		return nil, errors.New("no state store configured")
	}
	return e.store.History(ctx, sessionID)
}

// spawn builds the per-session machinery around a fresh workflow clone.
func (e *Engine) spawn(sessionID string) (*runtime.Dispatcher, error) {
	opts := []runtime.OrchestratorOption{runtime.WithLogger(e.logger)}
	if e.store != nil {
		opts = append(opts, runtime.WithStore(e.store))
	}
	orch := runtime.NewOrchestrator(sessionID, e.workflow, opts...)
	return runtime.NewDispatcher(orch, runtime.WithDispatcherLogger(e.logger)), nil
}

// resident returns the in-memory dispatcher for a session, rehydrating it
// from the store when the session exists there but not in memory. Caller
// must hold the session lock.
func (e *Engine) resident(ctx context.Context, sessionID string) (*runtime.Dispatcher, error) {
	e.mu.RLock()
	d, ok := e.active[sessionID]
	e.mu.RUnlock()
	if ok {
		return d, nil
	}

	if e.store == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrSessionNotFound, sessionID)
	}

	d, err := e.spawn(sessionID)
	if err != nil {
		return nil, err
	}
	if err := d.Orchestrator().Rehydrate(ctx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.active[sessionID] = d
	e.mu.Unlock()

	e.logger.Info("session rehydrated", "session_id", sessionID)
	return d, nil
}
