// Package memory provides an in-memory ports.StateStore, suitable for tests
// and single-process deployments without durability requirements.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/concierge-sh/concierge/pkg/domain"
)

type record struct {
	workflowName string
	currentStage string
	global       map[string]any
	stageStates  map[string]map[string]any
	version      int64
	history      []domain.Snapshot
}

// Store implements ports.StateStore in memory. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]*record
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string]*record)}
}

// Create registers a new session.
func (s *Store) Create(ctx context.Context, sessionID, workflowName, initialStage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sessionID]; exists {
		return domain.ErrSessionExists
	}
	r := &record{
		workflowName: workflowName,
		currentStage: initialStage,
		global:       make(map[string]any),
		stageStates:  map[string]map[string]any{initialStage: {}},
	}
	s.data[sessionID] = r
	s.snapshotLocked(sessionID, r)
	return nil
}

// GlobalState returns a copy of the session's global data.
func (s *Store) GlobalState(ctx context.Context, sessionID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return copyMap(r.global), nil
}

// MergeGlobal merges fields into the session's global data.
func (s *Store) MergeGlobal(ctx context.Context, sessionID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	for k, v := range fields {
		r.global[k] = v
	}
	s.snapshotLocked(sessionID, r)
	return nil
}

// StageState returns a copy of one stage's local data.
func (s *Store) StageState(ctx context.Context, sessionID, stage string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return copyMap(r.stageStates[stage]), nil
}

// MergeStage merges fields into one stage's local data.
func (s *Store) MergeStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if r.stageStates[stage] == nil {
		r.stageStates[stage] = make(map[string]any)
	}
	for k, v := range fields {
		r.stageStates[stage][k] = v
	}
	s.snapshotLocked(sessionID, r)
	return nil
}

// ReplaceStage replaces one stage's local data wholesale.
func (s *Store) ReplaceStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.stageStates[stage] = copyMap(fields)
	s.snapshotLocked(sessionID, r)
	return nil
}

// SetCurrentStage moves the session's cursor.
func (s *Store) SetCurrentStage(ctx context.Context, sessionID, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.currentStage = stage
	if r.stageStates[stage] == nil {
		r.stageStates[stage] = make(map[string]any)
	}
	s.snapshotLocked(sessionID, r)
	return nil
}

// CurrentStage returns the session's workflow name and cursor.
func (s *Store) CurrentStage(ctx context.Context, sessionID string) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[sessionID]
	if !ok {
		return "", "", domain.ErrSessionNotFound
	}
	return r.workflowName, r.currentStage, nil
}

// History returns the session's snapshot history.
func (s *Store) History(ctx context.Context, sessionID string) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return append([]domain.Snapshot(nil), r.history...), nil
}

// Delete removes the session and its history.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.data[sessionID]
	delete(s.data, sessionID)
	return ok, nil
}

// List returns all stored session IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

// snapshotLocked appends a versioned snapshot. Caller holds the write lock.
func (s *Store) snapshotLocked(sessionID string, r *record) {
	r.version++
	stageStates := make(map[string]map[string]any, len(r.stageStates))
	for stage, fields := range r.stageStates {
		stageStates[stage] = copyMap(fields)
	}
	r.history = append(r.history, domain.Snapshot{
		SessionID:    sessionID,
		WorkflowName: r.workflowName,
		CurrentStage: r.currentStage,
		Global:       copyMap(r.global),
		StageStates:  stageStates,
		Version:      r.version,
		At:           time.Now().UTC(),
	})
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
