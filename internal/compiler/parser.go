// Package compiler turns declarative workflow definitions (YAML or JSON)
// into domain workflows. Operation handlers cannot live in a definition
// file; they are resolved by name against a registry supplied at compile
// time.
package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/concierge-sh/concierge/pkg/domain"
	"github.com/concierge-sh/concierge/pkg/schema"
)

// Definition is the file representation of a workflow.
type Definition struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	Initial     string            `yaml:"initial,omitempty" json:"initial,omitempty"`
	Stages      []StageDefinition `yaml:"stages" json:"stages"`
}

// StageDefinition describes one stage and its outgoing edges.
type StageDefinition struct {
	Name          string                 `yaml:"name" json:"name"`
	Description   string                 `yaml:"description" json:"description"`
	Operations    []OperationDefinition  `yaml:"operations,omitempty" json:"operations,omitempty"`
	Transitions   []TransitionDefinition `yaml:"transitions,omitempty" json:"transitions,omitempty"`
	Prerequisites [][]string             `yaml:"prerequisites,omitempty" json:"prerequisites,omitempty"`
}

// OperationDefinition names one operation of a stage. The short form is a
// bare name; the long form adds a description and typed argument
// declarations, which callers see in the continuation context and which the
// capture registry enforces.
type OperationDefinition struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Args        []domain.ArgSpec `yaml:"args,omitempty" json:"args,omitempty"`
}

// UnmarshalYAML accepts a scalar (the operation name) or a mapping.
func (o *OperationDefinition) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&o.Name)
	}
	type plain OperationDefinition
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	if p.Name == "" {
		return fmt.Errorf("operation definition missing name")
	}
	*o = OperationDefinition(p)
	return nil
}

// UnmarshalJSON mirrors the YAML behavior for JSON definitions.
func (o *OperationDefinition) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		o.Name = name
		return nil
	}
	type plain OperationDefinition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Name == "" {
		return fmt.Errorf("operation definition missing name")
	}
	*o = OperationDefinition(p)
	return nil
}

// TransitionDefinition describes one edge. Propagate accepts the string
// "all" or "none", or an explicit field list.
type TransitionDefinition struct {
	To        string        `yaml:"to" json:"to"`
	Propagate PropagateSpec `yaml:"propagate,omitempty" json:"propagate,omitempty"`
}

// PropagateSpec is the flexible YAML/JSON form of a propagation policy.
type PropagateSpec struct {
	Mode   domain.PropagationMode
	Fields []string
	set    bool
}

// UnmarshalYAML accepts a scalar ("all"/"none") or a sequence of field names.
func (p *PropagateSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var mode string
		if err := value.Decode(&mode); err != nil {
			return err
		}
		return p.fromMode(mode)
	case yaml.SequenceNode:
		var fields []string
		if err := value.Decode(&fields); err != nil {
			return err
		}
		p.Mode = domain.PropagationFields
		p.Fields = fields
		p.set = true
		return nil
	default:
		return fmt.Errorf("propagate must be %q, %q, or a field list", "all", "none")
	}
}

// UnmarshalJSON mirrors the YAML behavior for JSON definitions.
func (p *PropagateSpec) UnmarshalJSON(data []byte) error {
	var mode string
	if err := json.Unmarshal(data, &mode); err == nil {
		return p.fromMode(mode)
	}
	var fields []string
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("propagate must be %q, %q, or a field list", "all", "none")
	}
	p.Mode = domain.PropagationFields
	p.Fields = fields
	p.set = true
	return nil
}

func (p *PropagateSpec) fromMode(mode string) error {
	switch domain.PropagationMode(mode) {
	case domain.PropagationAll:
		p.Mode = domain.PropagationAll
	case domain.PropagationNone:
		p.Mode = domain.PropagationNone
	default:
		return fmt.Errorf("unknown propagation mode %q", mode)
	}
	p.set = true
	return nil
}

// policy converts a PropagateSpec to a domain policy. Unset values propagate all.
func (p PropagateSpec) policy() domain.Propagation {
	if !p.set {
		return domain.PropagateAll()
	}
	switch p.Mode {
	case domain.PropagationNone:
		return domain.PropagateNone()
	case domain.PropagationFields:
		return domain.PropagateFields(p.Fields...)
	default:
		return domain.PropagateAll()
	}
}

// Parse decodes a definition from raw bytes. JSON input is detected by the
// file extension at Load time; Parse itself assumes YAML, which is a strict
// superset here.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("workflow definition missing name")
	}
	if len(def.Stages) == 0 {
		return nil, fmt.Errorf("workflow %q defines no stages", def.Name)
	}
	return &def, nil
}

// Load reads and parses a definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow definition: %w", err)
	}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		var def Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
		}
		return &def, nil
	}
	return Parse(data)
}

// Compile builds a validated workflow from a definition, resolving operation
// names against the registry. Every named operation must be present.
func Compile(def *Definition, registry map[string]*domain.Operation) (*domain.Workflow, error) {
	wf := domain.NewWorkflow(def.Name, def.Description)

	for _, sd := range def.Stages {
		stage := domain.NewStage(sd.Name, sd.Description)
		for _, od := range sd.Operations {
			op, ok := registry[od.Name]
			if !ok {
				return nil, fmt.Errorf("stage %q: %w: %q", sd.Name, domain.ErrUnknownOperation, od.Name)
			}
			if od.Description != "" || len(od.Args) > 0 {
				if _, err := schema.ForArgs(od.Args); err != nil {
					return nil, fmt.Errorf("stage %q operation %q: %w", sd.Name, od.Name, err)
				}
				enriched := *op
				if od.Description != "" {
					enriched.Description = od.Description
				}
				if len(od.Args) > 0 {
					enriched.Args = od.Args
				}
				op = &enriched
			}
			stage.AddOperation(op)
		}
		for _, td := range sd.Transitions {
			stage.Transitions = append(stage.Transitions, td.To)
		}
		for _, set := range sd.Prerequisites {
			stage.Prerequisites = append(stage.Prerequisites, append([]string(nil), set...))
		}
		if err := wf.AddStage(stage, sd.Name == def.Initial); err != nil {
			return nil, err
		}
	}

	for _, sd := range def.Stages {
		for _, td := range sd.Transitions {
			wf.SetPropagation(sd.Name, td.To, td.Propagate.policy())
		}
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}
