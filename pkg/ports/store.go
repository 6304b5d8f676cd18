package ports

import (
	"context"

	"github.com/concierge-sh/concierge/pkg/domain"
)

// StateStore persists session state for durable execution. The engine is
// store-agnostic: it only requires these operations to be atomic per session
// and to offer last-write-wins merge semantics.
//
// Implementations must return domain.ErrSessionNotFound for unknown session
// IDs and domain.ErrSessionExists when creating a duplicate.
type StateStore interface {
	// Create registers a new session with empty global data and an empty
	// stage-state map seeded for the initial stage.
	Create(ctx context.Context, sessionID, workflowName, initialStage string) error

	// GlobalState returns the session's global data.
	GlobalState(ctx context.Context, sessionID string) (map[string]any, error)

	// MergeGlobal merges fields into the session's global data.
	MergeGlobal(ctx context.Context, sessionID string, fields map[string]any) error

	// StageState returns the local data recorded for one stage. A stage that
	// was never written returns an empty map, not an error.
	StageState(ctx context.Context, sessionID, stage string) (map[string]any, error)

	// MergeStage merges fields into one stage's local data.
	MergeStage(ctx context.Context, sessionID, stage string, fields map[string]any) error

	// ReplaceStage replaces one stage's local data wholesale, as happens when
	// a transition installs propagated data in the destination.
	ReplaceStage(ctx context.Context, sessionID, stage string, fields map[string]any) error

	// SetCurrentStage moves the session's cursor.
	SetCurrentStage(ctx context.Context, sessionID, stage string) error

	// CurrentStage returns the session's cursor and workflow name.
	CurrentStage(ctx context.Context, sessionID string) (workflowName, stage string, err error)

	// History returns the ordered snapshot history taken after each mutation.
	History(ctx context.Context, sessionID string) ([]domain.Snapshot, error)

	// Delete removes the session and its history. Returns true when a
	// session was actually removed.
	Delete(ctx context.Context, sessionID string) (bool, error)

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)
}
