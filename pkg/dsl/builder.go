package dsl

import (
	"fmt"

	"github.com/concierge-sh/concierge/pkg/domain"
)

// Builder manages the workflow construction. Stages are registered in the
// order they are first added, which also determines the root fallback.
type Builder struct {
	name        string
	description string

	stages map[string]*StageBuilder
	order  []string

	initial     string
	propagation map[domain.Edge]domain.Propagation
}

// New creates a new workflow builder.
func New(name, description string) *Builder {
	return &Builder{
		name:        name,
		description: description,
		stages:      make(map[string]*StageBuilder),
		propagation: make(map[domain.Edge]domain.Propagation),
	}
}

// Stage creates a new stage in the workflow. If the stage already exists, it
// returns the existing builder.
func (b *Builder) Stage(name, description string) *StageBuilder {
	if sb, ok := b.stages[name]; ok {
		return sb
	}
	sb := &StageBuilder{
		stage:   domain.NewStage(name, description),
		builder: b,
	}
	b.stages[name] = sb
	b.order = append(b.order, name)
	return sb
}

// Build compiles and validates the workflow definition.
func (b *Builder) Build() (*domain.Workflow, error) {
	wf := domain.NewWorkflow(b.name, b.description)
	for _, name := range b.order {
		if err := wf.AddStage(b.stages[name].stage, name == b.initial); err != nil {
			return nil, fmt.Errorf("failed to add stage: %w", err)
		}
	}
	for edge, p := range b.propagation {
		wf.SetPropagation(edge.From, edge.To, p)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}
