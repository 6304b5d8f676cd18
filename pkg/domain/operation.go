package domain

import "context"

// OperationFunc is the implementation of an operation. It receives the owning
// stage's local state and the caller-supplied arguments, and returns a
// JSON-compatible result or an error.
type OperationFunc func(ctx context.Context, state *State, args map[string]any) (any, error)

// ArgSpec declares one argument of an operation.
type ArgSpec struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"` // "string", "number", "boolean", "object", "array"
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Operation is a named, described unit of work bound to exactly one stage.
// Operations are immutable after registration.
type Operation struct {
	Name        string
	Description string

	// Args declares the accepted argument names and types. Declarations are
	// surfaced to the caller in the continuation context; they are not
	// enforced at execution time.
	Args []ArgSpec

	// Output optionally declares the result shape (field name -> type).
	Output map[string]string

	// Handler executes the operation.
	Handler OperationFunc
}
