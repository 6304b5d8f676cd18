package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/concierge-sh/concierge/internal/logging"
	"github.com/concierge-sh/concierge/pkg/domain"
)

// Dispatcher is the protocol layer for one session: it parses inbound action
// envelopes, routes them to the orchestrator, and renders every outcome
// (including parse failures and unknown actions) as a continuation message.
// A raw fault never reaches the caller.
type Dispatcher struct {
	orch   *Orchestrator
	logger *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger for per-action debug records.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher wraps an orchestrator with the action protocol.
func NewDispatcher(orch *Orchestrator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		orch:   orch,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Orchestrator returns the wrapped orchestrator.
func (d *Dispatcher) Orchestrator() *Orchestrator {
	return d.orch
}

// Process handles one raw action envelope and always returns a rendered
// message. It never returns an error: malformed input and failed actions are
// rendered as error responses with a fresh context block attached.
func (d *Dispatcher) Process(ctx context.Context, raw []byte) string {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return d.renderError(err.Error())
	}
	if err := env.Validate(); err != nil {
		return d.renderError(err.Error())
	}

	d.logger.Debug("dispatching action",
		"session_id", d.orch.SessionID(), "action", env.Action)

	switch env.Action {
	case ActionHandshake:
		return d.InitialMessage()

	case ActionOperationCall:
		result := d.orch.ExecuteOperation(ctx, env.Tool, env.Args)
		return RenderResponse(RenderResult(result), d.orch.Workflow())

	case ActionTransition:
		result := d.orch.ExecuteTransition(ctx, env.Stage)
		return RenderResponse(RenderResult(result), d.orch.Workflow())

	case ActionDataSupply:
		d.orch.SupplyData(ctx, env.Data)
		msg := fmt.Sprintf("Stage data updated for stage %q.", d.orch.CurrentStage().Name)
		if pending := d.orch.PendingTransition(); pending != "" {
			msg += "\nRe-issue the pending transition when ready:\n" + transitionCallFormat(pending)
		}
		return RenderResponse(msg, d.orch.Workflow())

	default:
		// Envelope.Validate rejects unknown actions first.
		return d.renderError(fmt.Sprintf("unknown action %q", env.Action))
	}
}

// InitialMessage renders the handshake response for the current stage. It
// performs no state change.
func (d *Dispatcher) InitialMessage() string {
	wf := d.orch.Workflow()
	msg := fmt.Sprintf("Connected to workflow %q. Current stage: %q.",
		wf.Name, d.orch.CurrentStage().Name)
	return RenderResponse(msg, wf)
}

// TerminationMessage renders the final message for an ended session.
func (d *Dispatcher) TerminationMessage() string {
	out, _ := json.Marshal(map[string]string{
		"status":     "terminated",
		"session_id": d.orch.SessionID(),
	})
	return string(out)
}

func (d *Dispatcher) renderError(message string) string {
	return RenderResponse(RenderResult(domain.ErrorResult{Message: message}), d.orch.Workflow())
}
