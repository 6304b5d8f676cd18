package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/concierge-sh/concierge/internal/logging"
	"github.com/concierge-sh/concierge/pkg/domain"
	"github.com/concierge-sh/concierge/pkg/ports"
)

// Orchestrator drives one session's workflow instance. It owns the session's
// global data, the append-only action history, and the single outstanding
// pending-transition slot.
//
// The orchestrator mutates unguarded state; the session layer must serialize
// calls per session ID.
type Orchestrator struct {
	sessionID string
	workflow  *domain.Workflow

	global  *domain.State
	history []domain.HistoryEntry
	pending string

	store  ports.StateStore
	logger *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithStore enables best-effort write-through persistence. Mutations are
// mirrored to the store after each action; a store failure is logged and does
// not fail the action.
func WithStore(store ports.StateStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator clones the workflow definition for exclusive use by this
// session and places the cursor on the graph root.
func NewOrchestrator(sessionID string, definition *domain.Workflow, opts ...OrchestratorOption) *Orchestrator {
	wf := definition.Clone()
	wf.Initialize()

	o := &Orchestrator{
		sessionID: sessionID,
		workflow:  wf,
		global:    domain.NewState(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SessionID returns the owning session's ID.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Workflow returns the session's private workflow instance.
func (o *Orchestrator) Workflow() *domain.Workflow {
	return o.workflow
}

// Global returns the session's global data container.
func (o *Orchestrator) Global() *domain.State {
	return o.global
}

// CurrentStage returns the stage the cursor points at.
func (o *Orchestrator) CurrentStage() *domain.Stage {
	return o.workflow.Cursor()
}

// History returns the ordered log of executed actions.
func (o *Orchestrator) History() []domain.HistoryEntry {
	return append([]domain.HistoryEntry(nil), o.history...)
}

// PendingTransition returns the stage name of the outstanding deferred
// transition, or "" when none is pending.
func (o *Orchestrator) PendingTransition() string {
	return o.pending
}

// ExecuteOperation runs a named operation from the current stage. Operation
// failures are converted to ErrorResult and never propagate; only successful
// executions are appended to history.
func (o *Orchestrator) ExecuteOperation(ctx context.Context, name string, args map[string]any) domain.Result {
	current := o.workflow.Cursor()
	output, err := o.workflow.Invoke(ctx, current.Name, name, args)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownOperation) {
			return domain.ErrorResult{
				Message: fmt.Sprintf("unknown operation %q in stage %q; available: %v",
					name, current.Name, current.OperationNames()),
			}
		}
		return domain.ErrorResult{Message: err.Error()}
	}

	o.history = append(o.history, domain.HistoryEntry{
		Type:      domain.HistoryOperation,
		Stage:     current.Name,
		Operation: name,
		Args:      args,
		Result:    output,
		At:        time.Now().UTC(),
	})
	o.persistStage(ctx, current)

	return domain.OperationResult{Operation: name, Output: output}
}

// ExecuteTransition attempts to move the cursor to the named stage.
//
// An undeclared edge yields ErrorResult carrying the legal destinations. A
// legal edge with unsatisfied prerequisites records the target as the pending
// transition and yields StateInputRequiredResult without mutating anything.
// Otherwise the transition commits atomically and is appended to history.
func (o *Orchestrator) ExecuteTransition(ctx context.Context, to string) domain.Result {
	current := o.workflow.Cursor()

	missing, err := o.workflow.ValidateTransition(current.Name, to, o.global)
	if err != nil {
		var invalid *domain.InvalidTransitionError
		if errors.As(err, &invalid) {
			return domain.ErrorResult{Message: invalid.Error(), Allowed: invalid.Allowed}
		}
		return domain.ErrorResult{Message: err.Error()}
	}

	if len(missing) > 0 {
		o.pending = to
		return domain.StateInputRequiredResult{
			TargetStage: to,
			Message:     fmt.Sprintf("transition to %q requires additional data", to),
			Missing:     missing,
		}
	}

	target, err := o.workflow.CommitTransition(to)
	if err != nil {
		return domain.ErrorResult{Message: err.Error()}
	}
	o.pending = ""

	o.history = append(o.history, domain.HistoryEntry{
		Type: domain.HistoryTransition,
		From: current.Name,
		To:   target.Name,
		At:   time.Now().UTC(),
	})
	o.persistTransition(ctx, target)

	return domain.TransitionResult{From: current.Name, To: target.Name}
}

// SupplyData merges caller-supplied fields into the current stage's local
// data. Global data is never touched, and a pending transition is not
// retried; the caller re-issues the transition action.
func (o *Orchestrator) SupplyData(ctx context.Context, data map[string]any) {
	current := o.workflow.Cursor()
	current.Local().Merge(data)

	if o.store != nil {
		if err := o.store.MergeStage(ctx, o.sessionID, current.Name, data); err != nil {
			o.logger.Warn("failed to persist supplied data",
				"session_id", o.sessionID, "stage", current.Name, "err", err)
		}
	}
}

// MergeGlobal merges fields into the session's global data.
func (o *Orchestrator) MergeGlobal(ctx context.Context, data map[string]any) {
	o.global.Merge(data)

	if o.store != nil {
		if err := o.store.MergeGlobal(ctx, o.sessionID, data); err != nil {
			o.logger.Warn("failed to persist global data",
				"session_id", o.sessionID, "err", err)
		}
	}
}

// Info returns a read-only snapshot of the session. No side effects.
func (o *Orchestrator) Info() domain.SessionInfo {
	current := o.workflow.Cursor()

	summary := make(map[string]int, o.global.Len())
	for _, field := range o.global.Fields() {
		v, _ := o.global.Get(field)
		summary[field] = len(fmt.Sprint(v))
	}

	return domain.SessionInfo{
		SessionID:     o.sessionID,
		Workflow:      o.workflow.Name,
		CurrentStage:  current.Name,
		Operations:    current.OperationNames(),
		Transitions:   o.workflow.NextStages(),
		StateSummary:  summary,
		HistoryLength: len(o.history),
	}
}

// Rehydrate restores cursor position, global data, and stage-local data from
// the configured store. The in-memory action history starts empty; the store
// keeps its own snapshot history.
func (o *Orchestrator) Rehydrate(ctx context.Context) error {
	if o.store == nil {
		return nil
	}

	workflowName, stage, err := o.store.CurrentStage(ctx, o.sessionID)
	if err != nil {
		return err
	}
	if workflowName != o.workflow.Name {
		return fmt.Errorf("session %q belongs to workflow %q, not %q",
			o.sessionID, workflowName, o.workflow.Name)
	}

	global, err := o.store.GlobalState(ctx, o.sessionID)
	if err != nil {
		return err
	}
	o.global = domain.NewStateFrom(global)

	for _, name := range o.workflow.StageNames() {
		fields, err := o.store.StageState(ctx, o.sessionID, name)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			continue
		}
		s, err := o.workflow.Stage(name)
		if err != nil {
			return err
		}
		s.SetLocal(domain.NewStateFrom(fields))
	}

	return o.workflow.Restore(stage)
}

// persistStage mirrors one stage's local data to the store.
func (o *Orchestrator) persistStage(ctx context.Context, stage *domain.Stage) {
	if o.store == nil {
		return
	}
	if err := o.store.ReplaceStage(ctx, o.sessionID, stage.Name, stage.Local().Snapshot()); err != nil {
		o.logger.Warn("failed to persist stage data",
			"session_id", o.sessionID, "stage", stage.Name, "err", err)
	}
}

// persistTransition mirrors a committed transition: the destination's
// propagated data and the new cursor position.
func (o *Orchestrator) persistTransition(ctx context.Context, target *domain.Stage) {
	if o.store == nil {
		return
	}
	if err := o.store.ReplaceStage(ctx, o.sessionID, target.Name, target.Local().Snapshot()); err != nil {
		o.logger.Warn("failed to persist stage data",
			"session_id", o.sessionID, "stage", target.Name, "err", err)
	}
	if err := o.store.SetCurrentStage(ctx, o.sessionID, target.Name); err != nil {
		o.logger.Warn("failed to persist cursor",
			"session_id", o.sessionID, "stage", target.Name, "err", err)
	}
}
