// Package postgres provides the PostgreSQL-backed state store for
// production deployments. Each mutation bumps the session's version and
// appends a row to state_history.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/concierge-sh/concierge/pkg/domain"
)

// Store implements ports.StateStore using PostgreSQL via pgx. Merge
// operations run inside a transaction; per-session serialization at the
// engine boundary keeps them free of write conflicts.
type Store struct {
	db *pgxpool.Pool
}

// New creates a Store backed by the given pgx connection pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Connect opens a connection pool from a DSN and returns a store over it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return New(pool), nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

// Create registers a new session row and its first history snapshot.
func (s *Store) Create(ctx context.Context, sessionID, workflowName, initialStage string) error {
	stageStates, _ := json.Marshal(map[string]map[string]any{initialStage: {}})

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`INSERT INTO workflow_sessions (session_id, workflow_name, current_stage, global_state, stage_states)
		 VALUES ($1, $2, $3, '{}'::jsonb, $4::jsonb)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, workflowName, initialStage, stageStates,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", domain.ErrSessionExists, sessionID)
	}

	if err := snapshot(ctx, tx, sessionID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GlobalState returns the session's global data.
func (s *Store) GlobalState(ctx context.Context, sessionID string) (map[string]any, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT global_state FROM workflow_sessions WHERE session_id = $1`, sessionID,
	).Scan(&raw)
	if err != nil {
		return nil, wrapNotFound(err, sessionID)
	}
	return decodeMap(raw)
}

// MergeGlobal merges fields into the session's global data.
func (s *Store) MergeGlobal(ctx context.Context, sessionID string, fields map[string]any) error {
	return s.mutate(ctx, sessionID, func(rec *sessionRow) {
		for k, v := range fields {
			rec.global[k] = v
		}
	})
}

// StageState returns one stage's local data. An unwritten stage reads as an
// empty map.
func (s *Store) StageState(ctx context.Context, sessionID, stage string) (map[string]any, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT stage_states FROM workflow_sessions WHERE session_id = $1`, sessionID,
	).Scan(&raw)
	if err != nil {
		return nil, wrapNotFound(err, sessionID)
	}

	stageStates, err := decodeStages(raw)
	if err != nil {
		return nil, err
	}
	if fields, ok := stageStates[stage]; ok {
		return fields, nil
	}
	return map[string]any{}, nil
}

// MergeStage merges fields into one stage's local data.
func (s *Store) MergeStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	return s.mutate(ctx, sessionID, func(rec *sessionRow) {
		current := rec.stages[stage]
		if current == nil {
			current = make(map[string]any)
		}
		for k, v := range fields {
			current[k] = v
		}
		rec.stages[stage] = current
	})
}

// ReplaceStage replaces one stage's local data wholesale.
func (s *Store) ReplaceStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	return s.mutate(ctx, sessionID, func(rec *sessionRow) {
		replaced := make(map[string]any, len(fields))
		for k, v := range fields {
			replaced[k] = v
		}
		rec.stages[stage] = replaced
	})
}

// SetCurrentStage moves the session's cursor.
func (s *Store) SetCurrentStage(ctx context.Context, sessionID, stage string) error {
	return s.mutate(ctx, sessionID, func(rec *sessionRow) {
		rec.currentStage = stage
		if _, ok := rec.stages[stage]; !ok {
			rec.stages[stage] = map[string]any{}
		}
	})
}

// CurrentStage returns the session's cursor and workflow name.
func (s *Store) CurrentStage(ctx context.Context, sessionID string) (string, string, error) {
	var workflowName, stage string
	err := s.db.QueryRow(ctx,
		`SELECT workflow_name, current_stage FROM workflow_sessions WHERE session_id = $1`, sessionID,
	).Scan(&workflowName, &stage)
	if err != nil {
		return "", "", wrapNotFound(err, sessionID)
	}
	return workflowName, stage, nil
}

// History returns the ordered snapshot history for a session.
func (s *Store) History(ctx context.Context, sessionID string) ([]domain.Snapshot, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM workflow_sessions WHERE session_id = $1)`, sessionID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check session existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", domain.ErrSessionNotFound, sessionID)
	}

	rows, err := s.db.Query(ctx,
		`SELECT workflow_name, current_stage, global_state, stage_states, version, timestamp
		 FROM state_history
		 WHERE session_id = $1
		 ORDER BY version ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	var history []domain.Snapshot
	for rows.Next() {
		var snap domain.Snapshot
		var global, stages []byte
		if err := rows.Scan(&snap.WorkflowName, &snap.CurrentStage, &global, &stages, &snap.Version, &snap.At); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.SessionID = sessionID
		if snap.Global, err = decodeMap(global); err != nil {
			return nil, err
		}
		if snap.StageStates, err = decodeStages(stages); err != nil {
			return nil, err
		}
		history = append(history, snap)
	}
	return history, rows.Err()
}

// Delete removes the session row and its history.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `DELETE FROM workflow_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM state_history WHERE session_id = $1`, sessionID); err != nil {
		return false, fmt.Errorf("failed to delete history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// List returns the IDs of all stored sessions.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT session_id FROM workflow_sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// sessionRow is the mutable in-transaction view of one session.
type sessionRow struct {
	currentStage string
	global       map[string]any
	stages       map[string]map[string]any
}

// mutate loads the session inside a transaction, applies the change, bumps
// the version, and appends a history snapshot.
func (s *Store) mutate(ctx context.Context, sessionID string, apply func(*sessionRow)) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var rec sessionRow
	var global, stages []byte
	err = tx.QueryRow(ctx,
		`SELECT current_stage, global_state, stage_states FROM workflow_sessions WHERE session_id = $1 FOR UPDATE`,
		sessionID,
	).Scan(&rec.currentStage, &global, &stages)
	if err != nil {
		return wrapNotFound(err, sessionID)
	}
	if rec.global, err = decodeMap(global); err != nil {
		return err
	}
	if rec.stages, err = decodeStages(stages); err != nil {
		return err
	}

	apply(&rec)

	newGlobal, err := json.Marshal(rec.global)
	if err != nil {
		return fmt.Errorf("failed to marshal global state: %w", err)
	}
	newStages, err := json.Marshal(rec.stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stage states: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE workflow_sessions
		 SET current_stage = $1,
		     global_state = $2::jsonb,
		     stage_states = $3::jsonb,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE session_id = $4`,
		rec.currentStage, newGlobal, newStages, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if err := snapshot(ctx, tx, sessionID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// snapshot copies the session's current row into state_history.
func snapshot(ctx context.Context, tx pgx.Tx, sessionID string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO state_history (session_id, workflow_name, current_stage, global_state, stage_states, version)
		 SELECT session_id, workflow_name, current_stage, global_state, stage_states, version
		 FROM workflow_sessions
		 WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to snapshot session: %w", err)
	}
	return nil
}

func wrapNotFound(err error, sessionID string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %q", domain.ErrSessionNotFound, sessionID)
	}
	return fmt.Errorf("postgres query failed: %w", err)
}

func decodeMap(raw []byte) (map[string]any, error) {
	m := make(map[string]any)
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode jsonb: %w", err)
	}
	return m, nil
}

func decodeStages(raw []byte) (map[string]map[string]any, error) {
	m := make(map[string]map[string]any)
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode jsonb: %w", err)
	}
	return m, nil
}
