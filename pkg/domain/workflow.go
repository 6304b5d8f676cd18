package domain

import (
	"context"
	"fmt"
)

// Edge identifies a directed transition between two stages.
type Edge struct {
	From string
	To   string
}

// Workflow is the stage graph: a set of stages, directed transition edges, a
// per-edge propagation policy, and a movable cursor denoting the active
// stage.
//
// A Workflow value carries per-session mutable state (cursor and stage-local
// data). Share a definition across sessions by cloning it once per session;
// never share one instance between sessions.
type Workflow struct {
	Name        string
	Description string

	stages  map[string]*Stage
	order   []string
	initial string
	cursor  *Stage

	incoming    map[string][]string
	propagation map[Edge]Propagation
}

// NewWorkflow creates an empty workflow definition.
func NewWorkflow(name, description string) *Workflow {
	return &Workflow{
		Name:        name,
		Description: description,
		stages:      make(map[string]*Stage),
		incoming:    make(map[string][]string),
		propagation: make(map[Edge]Propagation),
	}
}

// AddStage registers a stage. The first stage added, or one explicitly marked
// initial, becomes the default entry point. The reverse-edge index is
// recomputed on every registration.
func (w *Workflow) AddStage(stage *Stage, asInitial bool) error {
	if _, exists := w.stages[stage.Name]; exists {
		return fmt.Errorf("%w: %q in workflow %q", ErrDuplicateStage, stage.Name, w.Name)
	}
	w.stages[stage.Name] = stage
	w.order = append(w.order, stage.Name)
	if asInitial || w.initial == "" {
		w.initial = stage.Name
	}
	w.rebuildIncoming()
	return nil
}

// SetPropagation assigns the policy applied when committing the from->to
// edge. Edges without an explicit policy propagate everything.
func (w *Workflow) SetPropagation(from, to string, p Propagation) {
	w.propagation[Edge{From: from, To: to}] = p
}

// PropagationFor returns the policy for an edge, defaulting to full
// propagation when none was declared.
func (w *Workflow) PropagationFor(from, to string) Propagation {
	if p, ok := w.propagation[Edge{From: from, To: to}]; ok {
		return p
	}
	return PropagateAll()
}

// rebuildIncoming derives the reverse-edge index from the stages' outgoing
// lists. Targets not registered (yet) are skipped; Validate catches them.
func (w *Workflow) rebuildIncoming() {
	w.incoming = make(map[string][]string, len(w.stages))
	for name := range w.stages {
		w.incoming[name] = nil
	}
	for _, name := range w.order {
		for _, target := range w.stages[name].Transitions {
			if _, ok := w.stages[target]; ok {
				w.incoming[target] = append(w.incoming[target], name)
			}
		}
	}
}

// Validate checks the graph invariant: every transition target named by a
// stage must exist as a stage in this workflow.
func (w *Workflow) Validate() error {
	if len(w.stages) == 0 {
		return fmt.Errorf("workflow %q has no stages", w.Name)
	}
	for _, name := range w.order {
		for _, target := range w.stages[name].Transitions {
			if _, ok := w.stages[target]; !ok {
				return fmt.Errorf("stage %q: transition target %q: %w", name, target, ErrUnknownStage)
			}
		}
	}
	for edge := range w.propagation {
		if _, ok := w.stages[edge.From]; !ok {
			return fmt.Errorf("propagation edge source %q: %w", edge.From, ErrUnknownStage)
		}
		if _, ok := w.stages[edge.To]; !ok {
			return fmt.Errorf("propagation edge target %q: %w", edge.To, ErrUnknownStage)
		}
	}
	return nil
}

// Initialize resets every stage's local data, recomputes the reverse-edge
// index, and places the cursor on the graph root: the unique stage with zero
// incoming edges. When no unique root exists the first-registered stage is
// used. Deterministic given a fixed registration order.
func (w *Workflow) Initialize() {
	for _, stage := range w.stages {
		stage.ResetLocal()
	}
	w.rebuildIncoming()

	var roots []string
	for _, name := range w.order {
		if len(w.incoming[name]) == 0 {
			roots = append(roots, name)
		}
	}

	entry := w.initial
	if len(roots) == 1 {
		entry = roots[0]
	} else if entry == "" && len(w.order) > 0 {
		entry = w.order[0]
	}
	w.cursor = w.stages[entry]
}

// Cursor returns the active stage. Nil before Initialize.
func (w *Workflow) Cursor() *Stage {
	return w.cursor
}

// InitialStage returns the configured entry stage name.
func (w *Workflow) InitialStage() string {
	return w.initial
}

// Stage looks a stage up by name.
func (w *Workflow) Stage(name string) (*Stage, error) {
	stage, ok := w.stages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in workflow %q", ErrUnknownStage, name, w.Name)
	}
	return stage, nil
}

// StageNames returns all stage names in registration order.
func (w *Workflow) StageNames() []string {
	names := make([]string, len(w.order))
	copy(names, w.order)
	return names
}

// NextStages returns the legal destinations from the cursor.
func (w *Workflow) NextStages() []string {
	if w.cursor == nil {
		return nil
	}
	return append([]string(nil), w.cursor.Transitions...)
}

// PreviousStages returns the stages that can transition into the cursor.
func (w *Workflow) PreviousStages() []string {
	if w.cursor == nil {
		return nil
	}
	return append([]string(nil), w.incoming[w.cursor.Name]...)
}

// ValidateTransition checks the from->to edge without mutating anything.
//
// It returns *InvalidTransitionError when the edge is not declared, and
// ErrUnknownStage when either name is unregistered. On a legal edge it
// returns the destination's missing prerequisite fields: those absent from
// global data and not carried over by the edge's propagation policy applied
// to the source's local data. An empty result means the transition may be
// committed.
func (w *Workflow) ValidateTransition(from, to string, global *State) ([]string, error) {
	source, err := w.Stage(from)
	if err != nil {
		return nil, err
	}
	target, err := w.Stage(to)
	if err != nil {
		return nil, err
	}
	if !source.CanTransitionTo(to) {
		return nil, &InvalidTransitionError{
			From:    from,
			To:      to,
			Allowed: append([]string(nil), source.Transitions...),
		}
	}
	policy := w.PropagationFor(from, to)
	return target.MissingPrerequisites(global, source.Local(), policy), nil
}

// CommitTransition applies the edge's propagation policy to the source's
// local data, installs the resulting container as the destination's local
// data, and moves the cursor. Only call after ValidateTransition returned no
// missing fields; either cursor and destination data change together or
// nothing changes. The source stage's own data is left untouched.
func (w *Workflow) CommitTransition(to string) (*Stage, error) {
	target, err := w.Stage(to)
	if err != nil {
		return nil, err
	}
	if w.cursor != nil {
		policy := w.PropagationFor(w.cursor.Name, to)
		target.SetLocal(policy.Apply(w.cursor.Local()))
	} else {
		target.ResetLocal()
	}
	w.cursor = target
	return target, nil
}

// Restore places the cursor on a stage without applying any propagation
// policy or touching stage data. Used when rehydrating a persisted session.
func (w *Workflow) Restore(name string) error {
	stage, err := w.Stage(name)
	if err != nil {
		return err
	}
	w.cursor = stage
	return nil
}

// Invoke executes an operation registered in the named stage against that
// stage's local data. Failures raised by the operation body (including
// panics) are wrapped in *OperationError; they never corrupt workflow state.
func (w *Workflow) Invoke(ctx context.Context, stageName, operationName string, args map[string]any) (output any, err error) {
	stage, err := w.Stage(stageName)
	if err != nil {
		return nil, err
	}
	op, ok := stage.Operation(operationName)
	if !ok {
		return nil, fmt.Errorf("%w: %q in stage %q", ErrUnknownOperation, operationName, stageName)
	}

	defer func() {
		if r := recover(); r != nil {
			err = &OperationError{
				Stage:     stageName,
				Operation: operationName,
				Err:       fmt.Errorf("panic: %v", r),
			}
		}
	}()

	output, opErr := op.Handler(ctx, stage.Local(), args)
	if opErr != nil {
		return nil, &OperationError{Stage: stageName, Operation: operationName, Err: opErr}
	}
	return output, nil
}

// StageMetadata describes one stage for introspection and visualization.
type StageMetadata struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Operations    []*Operation   `json:"-"`
	Data          map[string]any `json:"data"`
	Transitions   []string       `json:"transitions"`
	Prerequisites [][]string     `json:"prerequisites,omitempty"`
}

// StageMetadata returns the metadata of a stage by name.
func (w *Workflow) StageMetadata(name string) (StageMetadata, error) {
	stage, err := w.Stage(name)
	if err != nil {
		return StageMetadata{}, err
	}
	return StageMetadata{
		Name:          stage.Name,
		Description:   stage.Description,
		Operations:    stage.Operations(),
		Data:          stage.Local().Snapshot(),
		Transitions:   append([]string(nil), stage.Transitions...),
		Prerequisites: stage.Prerequisites,
	}, nil
}

// Clone returns an independent instance of the workflow definition with
// fresh stage-local data and no cursor. The shared definition stays
// read-only; each session works on its own clone.
func (w *Workflow) Clone() *Workflow {
	c := NewWorkflow(w.Name, w.Description)
	for _, name := range w.order {
		// Error impossible: source map has unique names.
		_ = c.AddStage(w.stages[name].Clone(), name == w.initial)
	}
	for edge, p := range w.propagation {
		c.SetPropagation(edge.From, edge.To, p)
	}
	return c
}
