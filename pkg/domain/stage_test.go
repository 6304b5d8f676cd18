package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_MissingPrerequisites(t *testing.T) {
	stage := NewStage("transact", "")
	stage.Prerequisites = [][]string{{"symbol", "quantity"}}

	tests := []struct {
		name    string
		global  map[string]any
		source  map[string]any
		policy  Propagation
		missing []string
	}{
		{
			name:    "nothing satisfied",
			policy:  PropagateNone(),
			missing: []string{"symbol", "quantity"},
		},
		{
			name:    "global satisfies all",
			global:  map[string]any{"symbol": "AAPL", "quantity": 10},
			policy:  PropagateNone(),
			missing: nil,
		},
		{
			name:    "policy all satisfies present source fields",
			source:  map[string]any{"symbol": "AAPL"},
			policy:  PropagateAll(),
			missing: []string{"quantity"},
		},
		{
			name:    "field list only satisfies named present fields",
			source:  map[string]any{"symbol": "AAPL", "quantity": 10},
			policy:  PropagateFields("symbol"),
			missing: []string{"quantity"},
		},
		{
			name:    "field list with absent field does not satisfy",
			source:  map[string]any{"symbol": "AAPL"},
			policy:  PropagateFields("symbol", "quantity"),
			missing: []string{"quantity"},
		},
		{
			name:    "global and propagation combine",
			global:  map[string]any{"quantity": 10},
			source:  map[string]any{"symbol": "AAPL"},
			policy:  PropagateFields("symbol"),
			missing: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stage.MissingPrerequisites(NewStateFrom(tt.global), NewStateFrom(tt.source), tt.policy)
			assert.Equal(t, tt.missing, got)
		})
	}
}

func TestStage_MissingPrerequisitesDeduplicates(t *testing.T) {
	stage := NewStage("x", "")
	stage.Prerequisites = [][]string{{"symbol"}, {"symbol", "quantity"}}

	got := stage.MissingPrerequisites(NewState(), NewState(), PropagateNone())
	assert.Equal(t, []string{"symbol", "quantity"}, got)
}

func TestStage_OperationsKeepRegistrationOrder(t *testing.T) {
	stage := NewStage("browse", "")
	stage.AddOperation(&Operation{Name: "search"})
	stage.AddOperation(&Operation{Name: "add_to_cart"})
	stage.AddOperation(&Operation{Name: "search"}) // replacement keeps slot

	assert.Equal(t, []string{"search", "add_to_cart"}, stage.OperationNames())
}

func TestStage_Substages(t *testing.T) {
	parent := NewStage("checkout", "")
	child := NewStage("payment", "")
	parent.AddSubstage(child)

	got, ok := parent.Substage("payment")
	require.True(t, ok)
	assert.Same(t, parent, got.Parent())
}

func TestStage_CloneIsIndependent(t *testing.T) {
	stage := NewStage("browse", "desc")
	stage.Transitions = []string{"transact"}
	stage.Prerequisites = [][]string{{"symbol"}}
	stage.AddOperation(&Operation{Name: "search"})
	stage.Local().Set("last_search", "AAPL")

	clone := stage.Clone()
	assert.Equal(t, 0, clone.Local().Len(), "clone starts with empty local data")

	clone.Transitions[0] = "portfolio"
	assert.Equal(t, "transact", stage.Transitions[0])

	_, ok := clone.Operation("search")
	assert.True(t, ok)
}
