package dsl

import (
	"context"

	"github.com/concierge-sh/concierge/pkg/domain"
)

// StageBuilder provides a fluent API for configuring a stage.
type StageBuilder struct {
	stage   *domain.Stage
	builder *Builder
}

// Initial marks this stage as the workflow's explicit entry point.
func (s *StageBuilder) Initial() *StageBuilder {
	s.builder.initial = s.stage.Name
	return s
}

// Operation registers a fully specified operation on this stage.
func (s *StageBuilder) Operation(op *domain.Operation) *StageBuilder {
	s.stage.AddOperation(op)
	return s
}

// Handle registers an operation from its parts. Argument specs are optional;
// use Operation for full control over the declared shape.
func (s *StageBuilder) Handle(name, description string, handler func(ctx context.Context, state *domain.State, args map[string]any) (any, error), args ...domain.ArgSpec) *StageBuilder {
	s.stage.AddOperation(&domain.Operation{
		Name:        name,
		Description: description,
		Args:        args,
		Handler:     handler,
	})
	return s
}

// Goes adds an unconditional transition edge to the target stage. The edge
// propagates all source data unless a policy is set with GoesWith or GoesClean.
func (s *StageBuilder) Goes(target string) *StageBuilder {
	s.stage.Transitions = append(s.stage.Transitions, target)
	return s
}

// GoesWith adds a transition edge propagating only the named fields.
func (s *StageBuilder) GoesWith(target string, fields ...string) *StageBuilder {
	s.Goes(target)
	s.builder.propagation[domain.Edge{From: s.stage.Name, To: target}] = domain.PropagateFields(fields...)
	return s
}

// GoesClean adds a transition edge propagating nothing.
func (s *StageBuilder) GoesClean(target string) *StageBuilder {
	s.Goes(target)
	s.builder.propagation[domain.Edge{From: s.stage.Name, To: target}] = domain.PropagateNone()
	return s
}

// Requires declares a prerequisite field set that must be satisfied before
// this stage may be entered.
func (s *StageBuilder) Requires(fields ...string) *StageBuilder {
	s.stage.Prerequisites = append(s.stage.Prerequisites, fields)
	return s
}

// Substage attaches an informational child stage.
func (s *StageBuilder) Substage(sub *domain.Stage) *StageBuilder {
	s.stage.AddSubstage(sub)
	return s
}

// Builder returns the owning workflow builder, for chaining back after
// configuring a stage.
func (s *StageBuilder) Builder() *Builder {
	return s.builder
}

// Build returns the underlying domain.Stage. This is primarily used by the
// Builder, but exposed for advanced usage.
func (s *StageBuilder) Build() *domain.Stage {
	return s.stage
}
