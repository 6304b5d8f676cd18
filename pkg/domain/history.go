package domain

import "time"

// HistoryEntryType discriminates the kinds of recorded actions.
type HistoryEntryType string

const (
	HistoryOperation  HistoryEntryType = "operation"
	HistoryTransition HistoryEntryType = "transition"
)

// HistoryEntry is one executed action in a session's strictly ordered,
// append-only log. Operation calls and committed transitions are recorded;
// rejected transitions, errors, handshakes and data supplies are not.
type HistoryEntry struct {
	Type HistoryEntryType `json:"type"`

	// Operation entries.
	Stage     string         `json:"stage,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Result    any            `json:"result,omitempty"`

	// Transition entries.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	At time.Time `json:"at"`
}

// SessionInfo is a read-only snapshot of a session for introspection.
type SessionInfo struct {
	SessionID     string         `json:"session_id"`
	Workflow      string         `json:"workflow"`
	CurrentStage  string         `json:"current_stage"`
	Operations    []string       `json:"available_operations"`
	Transitions   []string       `json:"can_transition_to"`
	StateSummary  map[string]int `json:"state_summary"`
	HistoryLength int            `json:"history_length"`
}

// Snapshot is one persisted version of a session's state, taken after every
// mutation. Stores keep an ordered snapshot history per session.
type Snapshot struct {
	SessionID    string                    `json:"session_id"`
	WorkflowName string                    `json:"workflow_name"`
	CurrentStage string                    `json:"current_stage"`
	Global       map[string]any            `json:"global_state"`
	StageStates  map[string]map[string]any `json:"stage_states"`
	Version      int64                     `json:"version"`
	At           time.Time                 `json:"timestamp"`
}
