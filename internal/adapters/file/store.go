// Package file provides a filesystem-backed ports.StateStore. Sessions are
// stored as JSON documents in a configured directory, one file per session
// plus a sibling history file. Suitable for single-host deployments that
// need durability without a database.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/concierge-sh/concierge/pkg/domain"
)

const historySuffix = ".history.json"

// document is the on-disk shape of one session.
type document struct {
	WorkflowName string                    `json:"workflow_name"`
	CurrentStage string                    `json:"current_stage"`
	Global       map[string]any            `json:"global_state"`
	StageStates  map[string]map[string]any `json:"stage_states"`
	Version      int64                     `json:"version"`
}

// Store implements ports.StateStore on the local filesystem. A process-wide
// mutex serializes mutations; cross-process coordination is out of scope and
// should use the redis or postgres adapters instead.
type Store struct {
	mu       sync.Mutex
	basePath string
}

// New creates a Store rooted at basePath. An empty basePath defaults to
// ".concierge/sessions".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".concierge", "sessions")
	}
	return &Store{basePath: basePath}
}

func (s *Store) docPath(sessionID string) string {
	return filepath.Join(s.basePath, sessionID+".json")
}

func (s *Store) historyPath(sessionID string) string {
	return filepath.Join(s.basePath, sessionID+historySuffix)
}

// Create registers a new session.
func (s *Store) Create(ctx context.Context, sessionID, workflowName, initialStage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.docPath(sessionID)); err == nil {
		return domain.ErrSessionExists
	}
	doc := &document{
		WorkflowName: workflowName,
		CurrentStage: initialStage,
		Global:       map[string]any{},
		StageStates:  map[string]map[string]any{initialStage: {}},
	}
	return s.save(sessionID, doc)
}

// GlobalState returns the session's global data.
func (s *Store) GlobalState(ctx context.Context, sessionID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	return doc.Global, nil
}

// MergeGlobal merges fields into the session's global data.
func (s *Store) MergeGlobal(ctx context.Context, sessionID string, fields map[string]any) error {
	return s.update(sessionID, func(doc *document) {
		for k, v := range fields {
			doc.Global[k] = v
		}
	})
}

// StageState returns the local data recorded for one stage.
func (s *Store) StageState(ctx context.Context, sessionID, stage string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if doc.StageStates[stage] == nil {
		return map[string]any{}, nil
	}
	return doc.StageStates[stage], nil
}

// MergeStage merges fields into one stage's local data.
func (s *Store) MergeStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	return s.update(sessionID, func(doc *document) {
		if doc.StageStates[stage] == nil {
			doc.StageStates[stage] = make(map[string]any)
		}
		for k, v := range fields {
			doc.StageStates[stage][k] = v
		}
	})
}

// ReplaceStage replaces one stage's local data wholesale.
func (s *Store) ReplaceStage(ctx context.Context, sessionID, stage string, fields map[string]any) error {
	return s.update(sessionID, func(doc *document) {
		replaced := make(map[string]any, len(fields))
		for k, v := range fields {
			replaced[k] = v
		}
		doc.StageStates[stage] = replaced
	})
}

// SetCurrentStage moves the session's cursor.
func (s *Store) SetCurrentStage(ctx context.Context, sessionID, stage string) error {
	return s.update(sessionID, func(doc *document) {
		doc.CurrentStage = stage
		if doc.StageStates[stage] == nil {
			doc.StageStates[stage] = make(map[string]any)
		}
	})
}

// CurrentStage returns the session's workflow name and cursor.
func (s *Store) CurrentStage(ctx context.Context, sessionID string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(sessionID)
	if err != nil {
		return "", "", err
	}
	return doc.WorkflowName, doc.CurrentStage, nil
}

// History returns the ordered snapshot history.
func (s *Store) History(ctx context.Context, sessionID string) ([]domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(sessionID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.historyPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to read session history: %w", err)
	}
	var history []domain.Snapshot
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session history: %w", err)
	}
	return history, nil
}

// Delete removes the session document and its history.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.docPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete session file: %w", err)
	}
	if err := os.Remove(s.historyPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return true, fmt.Errorf("failed to delete session history: %w", err)
	}
	return true, nil
}

// List returns all stored session IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, historySuffix) || filepath.Ext(name) != ".json" {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(name, ".json"))
	}
	return sessions, nil
}

// load reads a session document. Callers hold the mutex.
func (s *Store) load(sessionID string) (*document, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}
	data, err := os.ReadFile(s.docPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session file: %w", err)
	}
	if doc.Global == nil {
		doc.Global = map[string]any{}
	}
	if doc.StageStates == nil {
		doc.StageStates = map[string]map[string]any{}
	}
	return &doc, nil
}

// update applies fn to the session document and persists the result along
// with a history snapshot.
func (s *Store) update(sessionID string, fn func(*document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(sessionID)
	if err != nil {
		return err
	}
	fn(doc)
	return s.save(sessionID, doc)
}

// save bumps the version, writes the document atomically, and appends a
// snapshot to the history file. Callers hold the mutex.
func (s *Store) save(sessionID string, doc *document) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}

	doc.Version++

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.writeAtomic(s.docPath(sessionID), sessionID, data); err != nil {
		return err
	}
	return s.appendSnapshot(sessionID, doc)
}

// appendSnapshot records the post-mutation state in the history file.
func (s *Store) appendSnapshot(sessionID string, doc *document) error {
	var history []domain.Snapshot
	if data, err := os.ReadFile(s.historyPath(sessionID)); err == nil {
		if err := json.Unmarshal(data, &history); err != nil {
			return fmt.Errorf("failed to unmarshal session history: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read session history: %w", err)
	}

	stageStates := make(map[string]map[string]any, len(doc.StageStates))
	for stage, fields := range doc.StageStates {
		copied := make(map[string]any, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		stageStates[stage] = copied
	}
	global := make(map[string]any, len(doc.Global))
	for k, v := range doc.Global {
		global[k] = v
	}

	history = append(history, domain.Snapshot{
		SessionID:    sessionID,
		WorkflowName: doc.WorkflowName,
		CurrentStage: doc.CurrentStage,
		Global:       global,
		StageStates:  stageStates,
		Version:      doc.Version,
		At:           time.Now().UTC(),
	})

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal session history: %w", err)
	}
	return s.writeAtomic(s.historyPath(sessionID), sessionID, data)
}

// writeAtomic writes data to a temporary file in the same directory, fsyncs
// it, and renames it over the destination. The same-directory temp file keeps
// the rename on one filesystem.
func (s *Store) writeAtomic(destPath, sessionID string, data []byte) error {
	tmpFile, err := os.CreateTemp(s.basePath, "tmp-"+sessionID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}
