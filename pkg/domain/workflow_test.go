package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStockWorkflow builds the canonical three-stage test graph:
// browse -> {transact, portfolio}, transact -> {portfolio, browse},
// portfolio -> {browse}. Browse is the unique root by registration order,
// but every stage has incoming edges, so the initial flag decides.
func newStockWorkflow(t *testing.T) *Workflow {
	t.Helper()

	browse := NewStage("browse", "Browse and search stocks")
	browse.Transitions = []string{"transact", "portfolio"}
	browse.AddOperation(&Operation{
		Name:        "search",
		Description: "Search for a stock",
		Args:        []ArgSpec{{Name: "symbol", Type: "string", Required: true}},
		Handler: func(ctx context.Context, state *State, args map[string]any) (any, error) {
			symbol, _ := args["symbol"].(string)
			state.Set("last_search", symbol)
			return fmt.Sprintf("Found %s: $150.00", symbol), nil
		},
	})
	browse.AddOperation(&Operation{
		Name:        "add_to_cart",
		Description: "Select a stock and quantity",
		Args: []ArgSpec{
			{Name: "symbol", Type: "string", Required: true},
			{Name: "quantity", Type: "number", Required: true},
		},
		Handler: func(ctx context.Context, state *State, args map[string]any) (any, error) {
			state.Set("symbol", args["symbol"])
			state.Set("quantity", args["quantity"])
			return "added", nil
		},
	})

	transact := NewStage("transact", "Buy or sell stocks")
	transact.Transitions = []string{"portfolio", "browse"}
	transact.Prerequisites = [][]string{{"symbol", "quantity"}}
	transact.AddOperation(&Operation{
		Name:        "buy",
		Description: "Buy the selected stock",
		Handler: func(ctx context.Context, state *State, args map[string]any) (any, error) {
			return map[string]any{"order_id": "ORD123", "status": "bought"}, nil
		},
	})

	portfolio := NewStage("portfolio", "View holdings")
	portfolio.Transitions = []string{"browse"}
	portfolio.AddOperation(&Operation{
		Name:        "view_holdings",
		Description: "View current holdings",
		Handler: func(ctx context.Context, state *State, args map[string]any) (any, error) {
			return "Holdings: AAPL: 10 shares", nil
		},
	})

	w := NewWorkflow("stock_exchange", "Simple stock trading")
	require.NoError(t, w.AddStage(browse, true))
	require.NoError(t, w.AddStage(transact, false))
	require.NoError(t, w.AddStage(portfolio, false))
	w.SetPropagation("browse", "transact", PropagateFields("symbol", "quantity"))
	w.SetPropagation("browse", "portfolio", PropagateNone())
	require.NoError(t, w.Validate())
	return w
}

func TestWorkflow_AddStageDuplicate(t *testing.T) {
	w := NewWorkflow("wf", "")
	require.NoError(t, w.AddStage(NewStage("a", ""), false))
	err := w.AddStage(NewStage("a", ""), false)
	assert.ErrorIs(t, err, ErrDuplicateStage)
}

func TestWorkflow_InitializeUniqueRoot(t *testing.T) {
	// entry -> a -> b: entry is the only stage without incoming edges.
	entry := NewStage("entry", "")
	entry.Transitions = []string{"a"}
	a := NewStage("a", "")
	a.Transitions = []string{"b"}
	b := NewStage("b", "")

	w := NewWorkflow("linear", "")
	// Register out of order and mark a different initial: the unique root
	// must still win.
	require.NoError(t, w.AddStage(a, true))
	require.NoError(t, w.AddStage(b, false))
	require.NoError(t, w.AddStage(entry, false))

	w.Initialize()
	require.NotNil(t, w.Cursor())
	assert.Equal(t, "entry", w.Cursor().Name)
}

func TestWorkflow_InitializeFallsBackToFirstRegistered(t *testing.T) {
	// A cycle: every stage has an incoming edge, so no unique root exists.
	w := newStockWorkflow(t)
	w.Initialize()
	require.NotNil(t, w.Cursor())
	assert.Equal(t, "browse", w.Cursor().Name)
}

func TestWorkflow_InitializeResetsLocalData(t *testing.T) {
	w := newStockWorkflow(t)
	w.Initialize()
	w.Cursor().Local().Set("last_search", "AAPL")

	w.Initialize()
	assert.Equal(t, 0, w.Cursor().Local().Len())
}

func TestWorkflow_ValidateTransition(t *testing.T) {
	w := newStockWorkflow(t)
	w.Initialize()
	global := NewState()

	t.Run("illegal edge", func(t *testing.T) {
		// portfolio is reachable from browse, but browse is not reachable
		// from itself.
		_, err := w.ValidateTransition("browse", "browse", global)
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, []string{"transact", "portfolio"}, invalid.Allowed)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := w.ValidateTransition("browse", "nonexistent", global)
		assert.ErrorIs(t, err, ErrUnknownStage)
	})

	t.Run("missing prerequisites", func(t *testing.T) {
		// Browse holds symbol but not quantity; the edge only propagates
		// declared fields that are present.
		w.Cursor().Local().Set("symbol", "AAPL")
		missing, err := w.ValidateTransition("browse", "transact", global)
		require.NoError(t, err)
		assert.Equal(t, []string{"quantity"}, missing)
	})

	t.Run("satisfied by propagation", func(t *testing.T) {
		w.Cursor().Local().Set("quantity", 10)
		missing, err := w.ValidateTransition("browse", "transact", global)
		require.NoError(t, err)
		assert.Empty(t, missing)
	})

	t.Run("satisfied by global data", func(t *testing.T) {
		w.Initialize()
		g := NewStateFrom(map[string]any{"symbol": "AAPL", "quantity": 10})
		missing, err := w.ValidateTransition("browse", "transact", g)
		require.NoError(t, err)
		assert.Empty(t, missing)
	})

	t.Run("validation never mutates", func(t *testing.T) {
		w.Initialize()
		before := w.Cursor().Name
		_, _ = w.ValidateTransition("browse", "transact", global)
		_, _ = w.ValidateTransition("browse", "browse", global)
		assert.Equal(t, before, w.Cursor().Name)
		transact, _ := w.Stage("transact")
		assert.Equal(t, 0, transact.Local().Len())
	})
}

func TestWorkflow_CommitTransitionPropagation(t *testing.T) {
	t.Run("explicit field list copies the intersection", func(t *testing.T) {
		w := newStockWorkflow(t)
		w.Initialize()
		w.Cursor().Local().Merge(map[string]any{
			"symbol":      "AAPL",
			"quantity":    10,
			"last_search": "AAPL",
		})

		target, err := w.CommitTransition("transact")
		require.NoError(t, err)
		assert.Equal(t, "transact", w.Cursor().Name)
		assert.Equal(t, map[string]any{"symbol": "AAPL", "quantity": 10}, target.Local().Snapshot())

		// Propagation is a copy, not a move.
		browse, _ := w.Stage("browse")
		assert.True(t, browse.Local().Has("last_search"))
	})

	t.Run("none yields empty destination data", func(t *testing.T) {
		w := newStockWorkflow(t)
		w.Initialize()
		w.Cursor().Local().Set("last_search", "AAPL")

		target, err := w.CommitTransition("portfolio")
		require.NoError(t, err)
		assert.Equal(t, 0, target.Local().Len())
	})

	t.Run("default policy copies everything", func(t *testing.T) {
		w := newStockWorkflow(t)
		w.Initialize()
		// transact -> portfolio has no declared policy.
		_, err := w.CommitTransition("transact")
		require.NoError(t, err)
		w.Cursor().Local().Merge(map[string]any{"order_id": "ORD123", "status": "done"})

		target, err := w.CommitTransition("portfolio")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"order_id": "ORD123", "status": "done"}, target.Local().Snapshot())
	})
}

func TestWorkflow_Invoke(t *testing.T) {
	w := newStockWorkflow(t)
	w.Initialize()
	ctx := context.Background()

	t.Run("executes against stage local data", func(t *testing.T) {
		out, err := w.Invoke(ctx, "browse", "search", map[string]any{"symbol": "AAPL"})
		require.NoError(t, err)
		assert.Contains(t, out.(string), "AAPL")

		browse, _ := w.Stage("browse")
		last, ok := browse.Local().Get("last_search")
		require.True(t, ok)
		assert.Equal(t, "AAPL", last)
	})

	t.Run("unknown stage", func(t *testing.T) {
		_, err := w.Invoke(ctx, "nonexistent", "search", nil)
		assert.ErrorIs(t, err, ErrUnknownStage)
	})

	t.Run("unknown operation", func(t *testing.T) {
		_, err := w.Invoke(ctx, "browse", "teleport", nil)
		assert.ErrorIs(t, err, ErrUnknownOperation)
	})

	t.Run("handler error is wrapped", func(t *testing.T) {
		boom := errors.New("market closed")
		stage, _ := w.Stage("browse")
		stage.AddOperation(&Operation{
			Name: "failing",
			Handler: func(ctx context.Context, state *State, args map[string]any) (any, error) {
				return nil, boom
			},
		})

		_, err := w.Invoke(ctx, "browse", "failing", nil)
		var opErr *OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "failing", opErr.Operation)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("panic is recovered and wrapped", func(t *testing.T) {
		stage, _ := w.Stage("browse")
		stage.AddOperation(&Operation{
			Name: "panicking",
			Handler: func(ctx context.Context, state *State, args map[string]any) (any, error) {
				panic("overflow")
			},
		})

		_, err := w.Invoke(ctx, "browse", "panicking", nil)
		var opErr *OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Contains(t, opErr.Error(), "overflow")
	})
}

func TestWorkflow_Clone(t *testing.T) {
	def := newStockWorkflow(t)
	a := def.Clone()
	b := def.Clone()
	a.Initialize()
	b.Initialize()

	a.Cursor().Local().Set("symbol", "AAPL")

	assert.Equal(t, 0, b.Cursor().Local().Len(), "clones must not share local data")
	assert.Nil(t, def.Cursor(), "definition stays uninitialized")

	// Propagation map is copied too.
	missing, err := b.ValidateTransition("browse", "transact", NewState())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"symbol", "quantity"}, missing)
}

func TestWorkflow_PreviousStages(t *testing.T) {
	w := newStockWorkflow(t)
	w.Initialize()
	assert.ElementsMatch(t, []string{"transact", "portfolio"}, w.PreviousStages())
	assert.Equal(t, []string{"transact", "portfolio"}, w.NextStages())
}

func TestWorkflow_ValidateRejectsDanglingTarget(t *testing.T) {
	s := NewStage("a", "")
	s.Transitions = []string{"ghost"}
	w := NewWorkflow("wf", "")
	require.NoError(t, w.AddStage(s, true))
	assert.ErrorIs(t, w.Validate(), ErrUnknownStage)
}
