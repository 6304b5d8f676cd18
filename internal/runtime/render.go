package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/concierge-sh/concierge/pkg/domain"
)

// RenderResponse composes the single text artifact returned to the caller: a
// RESPONSE section with the immediate result, then an ADDITIONAL CONTEXT
// section rebuilt from the post-action state. The context block is the
// caller's only introspection mechanism, so it is regenerated on every
// response.
func RenderResponse(response string, wf *domain.Workflow) string {
	var b strings.Builder
	b.WriteString("RESPONSE:\n")
	b.WriteString(response)
	b.WriteString("\n\nADDITIONAL CONTEXT:\n")
	b.WriteString(renderContext(wf))
	return b.String()
}

// RenderResult produces the RESPONSE-section text for one result.
func RenderResult(result domain.Result) string {
	switch r := result.(type) {
	case domain.OperationResult:
		return fmt.Sprintf("Operation %q executed successfully.\n\nResult:\n%s",
			r.Operation, renderValue(r.Output))

	case domain.TransitionResult:
		return fmt.Sprintf("Transitioned from stage %q to stage %q.", r.From, r.To)

	case domain.ErrorResult:
		msg := "ERROR: " + r.Message
		if len(r.Allowed) > 0 {
			msg += "\nAllowed transitions: " + strings.Join(r.Allowed, ", ")
		}
		return msg

	case domain.StateInputRequiredResult:
		var b strings.Builder
		fmt.Fprintf(&b, "Cannot enter stage %q yet: missing required fields: %s.\n",
			r.TargetStage, strings.Join(r.Missing, ", "))
		b.WriteString("Supply the missing data, then re-issue the same transition:\n")
		fmt.Fprintf(&b, "%s\n", dataSupplyFormat(r.Missing))
		b.WriteString(transitionCallFormat(r.TargetStage))
		return b.String()

	default:
		return fmt.Sprintf("ERROR: unrenderable result type %T", result)
	}
}

// renderContext builds the context block: workflow identity, stage list,
// cursor position, pretty-printed local data, and the exact call format for
// every operation and transition available from the current stage.
func renderContext(wf *domain.Workflow) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Workflow: %s\n", wf.Name)
	if wf.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", wf.Description)
	}
	fmt.Fprintf(&b, "Stages: %s\n", strings.Join(wf.StageNames(), ", "))

	current := wf.Cursor()
	if current == nil {
		b.WriteString("Current stage: (uninitialized)\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Current stage: %s", current.Name)
	if current.Description != "" {
		fmt.Fprintf(&b, " (%s)", current.Description)
	}
	b.WriteString("\n")

	b.WriteString("Current stage data:\n")
	b.WriteString(renderValue(current.Local().Snapshot()))
	b.WriteString("\n")

	ops := current.Operations()
	if len(ops) == 0 {
		b.WriteString("\nAvailable operations: none\n")
	} else {
		b.WriteString("\nAvailable operations:\n")
		for _, op := range ops {
			fmt.Fprintf(&b, "- %s", op.Name)
			if op.Description != "" {
				fmt.Fprintf(&b, ": %s", op.Description)
			}
			b.WriteString("\n")
			fmt.Fprintf(&b, "  %s\n", operationCallFormat(op))
		}
	}

	next := wf.NextStages()
	if len(next) == 0 {
		b.WriteString("\nAvailable transitions: none\n")
	} else {
		b.WriteString("\nAvailable transitions:\n")
		for _, name := range next {
			fmt.Fprintf(&b, "- %s\n", name)
			fmt.Fprintf(&b, "  %s\n", transitionCallFormat(name))
		}
	}

	return b.String()
}

// operationCallFormat renders the exact envelope a caller must send to invoke
// an operation, with argument placeholders in declaration order.
func operationCallFormat(op *domain.Operation) string {
	var args strings.Builder
	args.WriteString("{")
	for i, arg := range op.Args {
		if i > 0 {
			args.WriteString(", ")
		}
		typ := arg.Type
		if typ == "" {
			typ = "any"
		}
		fmt.Fprintf(&args, "%q: \"<%s>\"", arg.Name, typ)
	}
	args.WriteString("}")

	return fmt.Sprintf(`{"action": "operation_call", "tool": %q, "args": %s}`, op.Name, args.String())
}

// transitionCallFormat renders the envelope for a transition to one stage.
func transitionCallFormat(stage string) string {
	return fmt.Sprintf(`{"action": "transition", "stage": %q}`, stage)
}

// dataSupplyFormat renders a data_supply envelope skeleton for the given
// missing fields.
func dataSupplyFormat(fields []string) string {
	var data strings.Builder
	data.WriteString("{")
	for i, field := range fields {
		if i > 0 {
			data.WriteString(", ")
		}
		fmt.Fprintf(&data, "%q: <value>", field)
	}
	data.WriteString("}")

	return fmt.Sprintf(`{"action": "data_supply", "data": %s}`, data.String())
}

// renderValue pretty-prints a value as indented JSON, falling back to
// fmt.Sprint for values JSON cannot represent.
func renderValue(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
