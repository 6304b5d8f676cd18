package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/concierge-sh/concierge/pkg/domain"
)

// record is the persisted session document.
type record struct {
	WorkflowName string                    `json:"workflow_name"`
	CurrentStage string                    `json:"current_stage"`
	Global       map[string]any            `json:"global_state"`
	StageStates  map[string]map[string]any `json:"stage_states"`
	Version      int64                     `json:"version"`
}

// Store implements ports.StateStore using Redis. Each session is one JSON
// document plus a list of versioned snapshots; a ZSET indexes session IDs
// for listing with lazy expiry cleanup.
//
// Merge operations are read-modify-write; the session layer's per-session
// lock makes that safe.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "concierge:session:",
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) historyKey(sessionID string) string {
	return s.prefix + sessionID + ":history"
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Create registers a new session document.
func (s *Store) Create(ctx context.Context, sessionID, workflowName, initialStage string) error {
	exists, err := s.client.Exists(ctx, s.key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check session existence: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %q", domain.ErrSessionExists, sessionID)
	}

	rec := &record{
		WorkflowName: workflowName,
		CurrentStage: initialStage,
		Global:       map[string]any{},
		StageStates:  map[string]map[string]any{initialStage: {}},
	}
	return s.save(ctx, sessionID, rec)
}

// GlobalState returns the session's global data.
func (s *Store) GlobalState(ctx context.Context, sessionID string) (map[string]any, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return rec.Global, nil
}

// MergeGlobal merges fields into the session's global data.
func (s *Store) MergeGlobal(ctx context.Context, sessionID string, fields map[string]any) error {
	return s.update(ctx, sessionID, func(rec *record) {
		for k, v := range fields {
			rec.Global[k] = v
		}
	})
}

// StageState returns the local data recorded for one stage.
func (s *Store) StageState(ctx context.Context, sessionID, stage string) (map[string]any, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if fields, ok := rec.StageStates[stage]; ok {
		return fields, nil
	}
	return map[string]any{}, nil
}

// MergeStage merges fields into one stage's local data.
func (s *Store) MergeStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	return s.update(ctx, sessionID, func(rec *record) {
		current := rec.StageStates[stage]
		if current == nil {
			current = make(map[string]any)
		}
		for k, v := range fields {
			current[k] = v
		}
		rec.StageStates[stage] = current
	})
}

// ReplaceStage replaces one stage's local data wholesale.
func (s *Store) ReplaceStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	return s.update(ctx, sessionID, func(rec *record) {
		replaced := make(map[string]any, len(fields))
		for k, v := range fields {
			replaced[k] = v
		}
		rec.StageStates[stage] = replaced
	})
}

// SetCurrentStage moves the session's cursor.
func (s *Store) SetCurrentStage(ctx context.Context, sessionID, stage string) error {
	return s.update(ctx, sessionID, func(rec *record) {
		rec.CurrentStage = stage
	})
}

// CurrentStage returns the session's cursor and workflow name.
func (s *Store) CurrentStage(ctx context.Context, sessionID string) (string, string, error) {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	return rec.WorkflowName, rec.CurrentStage, nil
}

// History returns the ordered snapshot history.
func (s *Store) History(ctx context.Context, sessionID string) ([]domain.Snapshot, error) {
	exists, err := s.client.Exists(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check session existence: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %q", domain.ErrSessionNotFound, sessionID)
	}

	raw, err := s.client.LRange(ctx, s.historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	snapshots := make([]domain.Snapshot, 0, len(raw))
	for _, item := range raw {
		var snap domain.Snapshot
		if err := json.Unmarshal([]byte(item), &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// Delete removes the session document, its history, and its index entry.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	pipe := s.client.Pipeline()
	del := pipe.Del(ctx, s.key(sessionID), s.historyKey(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return del.Val() > 0, nil
}

// List returns active sessions from the ZSET index, lazily pruning expired
// entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) load(ctx context.Context, sessionID string) (*record, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, fmt.Errorf("%w: %q", domain.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if rec.Global == nil {
		rec.Global = make(map[string]any)
	}
	if rec.StageStates == nil {
		rec.StageStates = make(map[string]map[string]any)
	}
	return &rec, nil
}

// update applies a mutation and persists the bumped version plus a snapshot.
func (s *Store) update(ctx context.Context, sessionID string, mutate func(*record)) error {
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	mutate(rec)
	return s.save(ctx, sessionID, rec)
}

// save writes the document, appends a snapshot, and refreshes the index.
func (s *Store) save(ctx context.Context, sessionID string, rec *record) error {
	rec.Version++

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	snap, err := json.Marshal(domain.Snapshot{
		SessionID:    sessionID,
		WorkflowName: rec.WorkflowName,
		CurrentStage: rec.CurrentStage,
		Global:       rec.Global,
		StageStates:  rec.StageStates,
		Version:      rec.Version,
		At:           time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Score = Now + TTL. If TTL = 0, score is far enough in the future to
	// never be pruned.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(sessionID), data, s.ttl)
	pipe.RPush(ctx, s.historyKey(sessionID), snap)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.historyKey(sessionID), s.ttl)
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: sessionID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}
