package domain

// Stage is a named mode of interaction: a logical grouping of operations and
// local data, analogous to a page in a web application. All operations within
// a stage share its local state.
//
// The stage name is its identity within a workflow.
type Stage struct {
	Name        string
	Description string

	// Transitions lists the legal destination stage names, in declaration order.
	Transitions []string

	// Prerequisites lists field-name sets that must be satisfied (by global
	// data or by propagated source data) before this stage may be entered.
	Prerequisites [][]string

	operations map[string]*Operation
	order      []string

	local *State

	parent    *Stage
	substages map[string]*Stage
}

// NewStage creates a stage with no operations and empty local data.
func NewStage(name, description string) *Stage {
	return &Stage{
		Name:        name,
		Description: description,
		operations:  make(map[string]*Operation),
		local:       NewState(),
		substages:   make(map[string]*Stage),
	}
}

// AddOperation registers an operation on this stage. Registering the same
// name twice replaces the earlier definition. Returns the stage for chaining.
func (s *Stage) AddOperation(op *Operation) *Stage {
	if _, exists := s.operations[op.Name]; !exists {
		s.order = append(s.order, op.Name)
	}
	s.operations[op.Name] = op
	return s
}

// Operation looks up an operation by name.
func (s *Stage) Operation(name string) (*Operation, bool) {
	op, ok := s.operations[name]
	return op, ok
}

// Operations returns the stage's operations in registration order.
func (s *Stage) Operations() []*Operation {
	ops := make([]*Operation, 0, len(s.order))
	for _, name := range s.order {
		ops = append(ops, s.operations[name])
	}
	return ops
}

// OperationNames returns the registered operation names in registration order.
func (s *Stage) OperationNames() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Local returns the stage's local data container.
func (s *Stage) Local() *State {
	return s.local
}

// SetLocal replaces the stage's local data wholesale. Used when committing a
// transition into this stage.
func (s *Stage) SetLocal(state *State) {
	if state == nil {
		state = NewState()
	}
	s.local = state
}

// ResetLocal clears the stage's local data.
func (s *Stage) ResetLocal() {
	s.local = NewState()
}

// CanTransitionTo reports whether target is a legal destination.
func (s *Stage) CanTransitionTo(target string) bool {
	for _, t := range s.Transitions {
		if t == target {
			return true
		}
	}
	return false
}

// MissingPrerequisites computes which prerequisite fields would still be
// absent after entering this stage: a field is satisfied if it is present in
// global data, or if the edge's propagation policy would carry it over from
// the source stage's local data.
func (s *Stage) MissingPrerequisites(global *State, source *State, policy Propagation) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, set := range s.Prerequisites {
		for _, field := range set {
			if seen[field] {
				continue
			}
			seen[field] = true
			if global != nil && global.Has(field) {
				continue
			}
			if policy.Satisfies(field, source) {
				continue
			}
			missing = append(missing, field)
		}
	}
	return missing
}

// AddSubstage attaches a child stage. The hierarchy is purely informational;
// transition logic only considers top-level workflow stages.
func (s *Stage) AddSubstage(sub *Stage) *Stage {
	sub.parent = s
	s.substages[sub.Name] = sub
	return s
}

// Parent returns the parent stage, or nil for a top-level stage.
func (s *Stage) Parent() *Stage {
	return s.parent
}

// Substage looks up a child stage by name.
func (s *Stage) Substage(name string) (*Stage, bool) {
	sub, ok := s.substages[name]
	return sub, ok
}

// Clone returns a deep copy of the stage with fresh, empty local data.
// Operation definitions are shared; they are immutable after registration.
func (s *Stage) Clone() *Stage {
	c := NewStage(s.Name, s.Description)
	c.Transitions = append([]string(nil), s.Transitions...)
	for _, set := range s.Prerequisites {
		c.Prerequisites = append(c.Prerequisites, append([]string(nil), set...))
	}
	for _, name := range s.order {
		c.AddOperation(s.operations[name])
	}
	for name, sub := range s.substages {
		clone := sub.Clone()
		clone.parent = c
		c.substages[name] = clone
	}
	return c
}
