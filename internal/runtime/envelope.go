package runtime

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Action names accepted on the wire.
const (
	ActionHandshake     = "handshake"
	ActionOperationCall = "operation_call"
	ActionTransition    = "transition"
	ActionDataSupply    = "data_supply"
)

// Envelope is the inbound action envelope. Exactly one action per envelope;
// the fields used depend on the action.
type Envelope struct {
	Action string `mapstructure:"action" json:"action"`

	// operation_call
	Tool string         `mapstructure:"tool" json:"tool,omitempty"`
	Args map[string]any `mapstructure:"args" json:"args,omitempty"`

	// transition
	Stage string `mapstructure:"stage" json:"stage,omitempty"`

	// data_supply
	Data map[string]any `mapstructure:"data" json:"data,omitempty"`
}

// DecodeEnvelope parses a raw JSON action envelope. Unknown top-level keys
// are rejected so a misspelled field fails loudly instead of being silently
// dropped.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Envelope{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var env Envelope
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &env,
		ErrorUnused: true,
	})
	if err != nil {
		return Envelope{}, err
	}
	if err := dec.Decode(payload); err != nil {
		return Envelope{}, fmt.Errorf("invalid action envelope: %w", err)
	}

	if env.Action == "" {
		return Envelope{}, fmt.Errorf("missing required field %q", "action")
	}
	return env, nil
}

// Validate checks that the fields required by the envelope's action are set.
func (e Envelope) Validate() error {
	switch e.Action {
	case ActionHandshake:
		return nil
	case ActionOperationCall:
		if e.Tool == "" {
			return fmt.Errorf("operation_call requires %q", "tool")
		}
		return nil
	case ActionTransition:
		if e.Stage == "" {
			return fmt.Errorf("transition requires %q", "stage")
		}
		return nil
	case ActionDataSupply:
		if len(e.Data) == 0 {
			return fmt.Errorf("data_supply requires a non-empty %q object", "data")
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}
}
