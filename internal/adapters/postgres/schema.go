package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS workflow_sessions (
    session_id    TEXT PRIMARY KEY,
    workflow_name TEXT NOT NULL,
    current_stage TEXT NOT NULL,
    global_state  JSONB NOT NULL DEFAULT '{}',
    stage_states  JSONB NOT NULL DEFAULT '{}',
    version       BIGINT NOT NULL DEFAULT 1,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS state_history (
    id            BIGSERIAL PRIMARY KEY,
    session_id    TEXT NOT NULL,
    workflow_name TEXT NOT NULL,
    current_stage TEXT NOT NULL,
    global_state  JSONB NOT NULL DEFAULT '{}',
    stage_states  JSONB NOT NULL DEFAULT '{}',
    version       BIGINT NOT NULL,
    timestamp     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_state_history_session ON state_history(session_id);
`

// CreateSchema creates the session tables if they don't exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the session tables.
func (s *Store) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS state_history, workflow_sessions CASCADE;`)
	return err
}
