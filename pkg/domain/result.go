package domain

// Result is the outcome of one dispatched action. Exactly one variant is
// produced per action; the dispatcher matches exhaustively on the concrete
// type when rendering.
type Result interface {
	isResult()
}

// OperationResult reports a successfully executed operation.
type OperationResult struct {
	Operation string `json:"operation"`
	Output    any    `json:"output,omitempty"`
}

// TransitionResult reports a committed stage transition.
type TransitionResult struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ErrorResult reports a failed action. Allowed carries the legal destination
// list when the failure was an illegal transition attempt.
type ErrorResult struct {
	Message string   `json:"message"`
	Allowed []string `json:"allowed,omitempty"`
}

// StateInputRequiredResult signals a deferred transition: the edge is legal
// but prerequisite fields are missing. It is recoverable: the caller
// supplies the missing data and re-issues the same transition. No state has
// been mutated when this result is produced.
type StateInputRequiredResult struct {
	TargetStage string   `json:"target_stage"`
	Message     string   `json:"message"`
	Missing     []string `json:"missing"`
}

func (OperationResult) isResult()          {}
func (TransitionResult) isResult()         {}
func (ErrorResult) isResult()              {}
func (StateInputRequiredResult) isResult() {}
