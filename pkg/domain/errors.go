package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownStage is returned when a stage name is not registered in the workflow.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrUnknownOperation is returned when an operation name is not registered in a stage.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrDuplicateStage is returned when registering a stage name twice in one workflow.
	ErrDuplicateStage = errors.New("duplicate stage")

	// ErrSessionNotFound is returned when a session ID cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session whose ID is already in use.
	ErrSessionExists = errors.New("session already exists")

	// ErrFieldNotFound is returned by typed state reads for absent fields.
	ErrFieldNotFound = errors.New("field not found")

	// ErrFieldType is returned by typed state reads when the stored value has
	// a different type than requested.
	ErrFieldType = errors.New("field type mismatch")
)

// InvalidTransitionError reports a transition attempt along an edge that does
// not exist in the workflow. It carries the legal destinations so the caller
// can be told what it may do instead.
type InvalidTransitionError struct {
	From    string
	To      string
	Allowed []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %q to %q (allowed: %s)",
		e.From, e.To, strings.Join(e.Allowed, ", "))
}

// OperationError wraps a failure raised inside an operation body. It is
// always local to one call and never corrupts cursor or history.
type OperationError struct {
	Stage     string
	Operation string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %q in stage %q failed: %v", e.Operation, e.Stage, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
