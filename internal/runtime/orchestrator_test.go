package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/concierge-sh/concierge/internal/runtime"
	"github.com/concierge-sh/concierge/pkg/adapters/memory"
	"github.com/concierge-sh/concierge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStockWorkflow builds the trading workflow used across the runtime
// tests: browse -> transact (propagates symbol and quantity, which transact
// requires) and browse -> portfolio (propagates nothing).
func newStockWorkflow(t *testing.T) *domain.Workflow {
	t.Helper()

	search := &domain.Operation{
		Name:        "search",
		Description: "Search the market for a stock symbol.",
		Args:        []domain.ArgSpec{{Name: "symbol", Type: "string", Required: true}},
		Handler: func(ctx context.Context, state *domain.State, args map[string]any) (any, error) {
			symbol, _ := args["symbol"].(string)
			if symbol == "" {
				return nil, errors.New("symbol is required")
			}
			state.Set("last_search", symbol)
			return map[string]any{"symbol": symbol, "price": 187.32}, nil
		},
	}
	addToCart := &domain.Operation{
		Name:        "add_to_cart",
		Description: "Select a stock and quantity to trade.",
		Args: []domain.ArgSpec{
			{Name: "symbol", Type: "string", Required: true},
			{Name: "quantity", Type: "int", Required: true},
		},
		Handler: func(ctx context.Context, state *domain.State, args map[string]any) (any, error) {
			state.Set("symbol", args["symbol"])
			state.Set("quantity", args["quantity"])
			return "added", nil
		},
	}

	browse := domain.NewStage("browse", "Browse the market.")
	browse.Transitions = []string{"transact", "portfolio"}
	browse.AddOperation(search).AddOperation(addToCart)

	transact := domain.NewStage("transact", "Execute a trade.")
	transact.Transitions = []string{"portfolio"}
	transact.Prerequisites = [][]string{{"symbol", "quantity"}}

	portfolio := domain.NewStage("portfolio", "Review holdings.")

	wf := domain.NewWorkflow("stock_exchange", "Simple stock trading workflow.")
	require.NoError(t, wf.AddStage(browse, false))
	require.NoError(t, wf.AddStage(transact, false))
	require.NoError(t, wf.AddStage(portfolio, false))
	wf.SetPropagation("browse", "transact", domain.PropagateFields("symbol", "quantity"))
	wf.SetPropagation("browse", "portfolio", domain.PropagateNone())
	require.NoError(t, wf.Validate())
	return wf
}

func TestOrchestrator_OperationUpdatesLocalData(t *testing.T) {
	o := runtime.NewOrchestrator("s1", newStockWorkflow(t))
	ctx := context.Background()

	result := o.ExecuteOperation(ctx, "search", map[string]any{"symbol": "AAPL"})

	op, ok := result.(domain.OperationResult)
	require.True(t, ok, "expected OperationResult, got %T", result)
	assert.Equal(t, "search", op.Operation)
	assert.Contains(t, op.Output.(map[string]any), "symbol")
	assert.Equal(t, "AAPL", op.Output.(map[string]any)["symbol"])

	last, ok := o.CurrentStage().Local().Get("last_search")
	require.True(t, ok)
	assert.Equal(t, "AAPL", last)
}

func TestOrchestrator_UnknownOperationListsAvailable(t *testing.T) {
	o := runtime.NewOrchestrator("s1", newStockWorkflow(t))

	result := o.ExecuteOperation(context.Background(), "sell_everything", nil)

	errRes, ok := result.(domain.ErrorResult)
	require.True(t, ok, "expected ErrorResult, got %T", result)
	assert.Contains(t, errRes.Message, "sell_everything")
	assert.Contains(t, errRes.Message, "search")
	assert.Contains(t, errRes.Message, "add_to_cart")
}

func TestOrchestrator_OperationFailureIsContained(t *testing.T) {
	o := runtime.NewOrchestrator("s1", newStockWorkflow(t))

	result := o.ExecuteOperation(context.Background(), "search", map[string]any{})

	errRes, ok := result.(domain.ErrorResult)
	require.True(t, ok)
	assert.Contains(t, errRes.Message, "symbol is required")
	assert.Equal(t, "browse", o.CurrentStage().Name)
	assert.Empty(t, o.History(), "failed operations are not recorded")
}

func TestOrchestrator_IllegalTransitionCarriesAllowed(t *testing.T) {
	o := runtime.NewOrchestrator("s1", newStockWorkflow(t))

	result := o.ExecuteTransition(context.Background(), "browse")

	errRes, ok := result.(domain.ErrorResult)
	require.True(t, ok, "expected ErrorResult, got %T", result)
	assert.ElementsMatch(t, []string{"transact", "portfolio"}, errRes.Allowed)
	assert.Equal(t, "browse", o.CurrentStage().Name)
}

func TestOrchestrator_DeferredTransitionThenSupplyThenRetry(t *testing.T) {
	o := runtime.NewOrchestrator("s1", newStockWorkflow(t))
	ctx := context.Background()

	// Only symbol is present in browse's local data; quantity is missing.
	o.CurrentStage().Local().Set("symbol", "AAPL")

	result := o.ExecuteTransition(ctx, "transact")
	input, ok := result.(domain.StateInputRequiredResult)
	require.True(t, ok, "expected StateInputRequiredResult, got %T", result)
	assert.Equal(t, "transact", input.TargetStage)
	assert.Equal(t, []string{"quantity"}, input.Missing)
	assert.Equal(t, "browse", o.CurrentStage().Name, "deferred transition mutates nothing")
	assert.Equal(t, "transact", o.PendingTransition())

	o.SupplyData(ctx, map[string]any{"quantity": 10})

	retry := o.ExecuteTransition(ctx, "transact")
	tr, ok := retry.(domain.TransitionResult)
	require.True(t, ok, "expected TransitionResult, got %T", retry)
	assert.Equal(t, "browse", tr.From)
	assert.Equal(t, "transact", tr.To)
	assert.Equal(t, "transact", o.CurrentStage().Name)
	assert.Empty(t, o.PendingTransition())

	// Propagation carried exactly the declared fields.
	local := o.CurrentStage().Local()
	sym, _ := local.Get("symbol")
	qty, _ := local.Get("quantity")
	assert.Equal(t, "AAPL", sym)
	assert.Equal(t, 10, qty)
}

func TestOrchestrator_EmptyPrerequisitesTransitionSucceeds(t *testing.T) {
	o := runtime.NewOrchestrator("s1", newStockWorkflow(t))

	result := o.ExecuteTransition(context.Background(), "portfolio")

	tr, ok := result.(domain.TransitionResult)
	require.True(t, ok, "expected TransitionResult, got %T", result)
	assert.Equal(t, "portfolio", tr.To)
	assert.Zero(t, o.CurrentStage().Local().Len(), "propagation policy none leaves destination empty")
}

func TestOrchestrator_SupplyDataLastWriteWins(t *testing.T) {
	o := runtime.NewOrchestrator("s1", newStockWorkflow(t))
	ctx := context.Background()

	o.SupplyData(ctx, map[string]any{"quantity": 5})
	o.SupplyData(ctx, map[string]any{"quantity": 10})

	qty, ok := o.CurrentStage().Local().Get("quantity")
	require.True(t, ok)
	assert.Equal(t, 10, qty)
	assert.Equal(t, 1, o.CurrentStage().Local().Len())
}

func TestOrchestrator_HistoryCountsOnlyOperationsAndCommits(t *testing.T) {
	o := runtime.NewOrchestrator("s1", newStockWorkflow(t))
	ctx := context.Background()

	o.ExecuteOperation(ctx, "search", map[string]any{"symbol": "AAPL"}) // +1
	o.ExecuteOperation(ctx, "nope", nil)                                // error, +0
	o.ExecuteTransition(ctx, "transact")                                // deferred, +0
	o.SupplyData(ctx, map[string]any{"symbol": "AAPL", "quantity": 1})  // +0
	o.ExecuteTransition(ctx, "transact")                                // commit, +1
	o.ExecuteTransition(ctx, "browse")                                  // illegal, +0

	history := o.History()
	require.Len(t, history, 2)
	assert.Equal(t, domain.HistoryOperation, history[0].Type)
	assert.Equal(t, "search", history[0].Operation)
	assert.Equal(t, domain.HistoryTransition, history[1].Type)
	assert.Equal(t, "browse", history[1].From)
	assert.Equal(t, "transact", history[1].To)
}

func TestOrchestrator_Info(t *testing.T) {
	o := runtime.NewOrchestrator("s1", newStockWorkflow(t))
	ctx := context.Background()

	o.MergeGlobal(ctx, map[string]any{"account": "acct-42"})
	o.ExecuteOperation(ctx, "search", map[string]any{"symbol": "AAPL"})

	info := o.Info()
	assert.Equal(t, "s1", info.SessionID)
	assert.Equal(t, "stock_exchange", info.Workflow)
	assert.Equal(t, "browse", info.CurrentStage)
	assert.Equal(t, []string{"search", "add_to_cart"}, info.Operations)
	assert.Equal(t, []string{"transact", "portfolio"}, info.Transitions)
	assert.Equal(t, map[string]int{"account": len("acct-42")}, info.StateSummary)
	assert.Equal(t, 1, info.HistoryLength)
}

func TestOrchestrator_RehydrateFromStore(t *testing.T) {
	store := memory.NewStore()
	wf := newStockWorkflow(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "s1", "stock_exchange", "browse"))

	first := runtime.NewOrchestrator("s1", wf, runtime.WithStore(store))
	first.CurrentStage().Local().Set("symbol", "AAPL")
	first.SupplyData(ctx, map[string]any{"quantity": 3})
	first.MergeGlobal(ctx, map[string]any{"account": "acct-42"})
	result := first.ExecuteTransition(ctx, "transact")
	require.IsType(t, domain.TransitionResult{}, result)

	second := runtime.NewOrchestrator("s1", wf, runtime.WithStore(store))
	require.NoError(t, second.Rehydrate(ctx))

	assert.Equal(t, "transact", second.CurrentStage().Name)
	acct, ok := second.Global().Get("account")
	require.True(t, ok)
	assert.Equal(t, "acct-42", acct)
	qty, ok := second.CurrentStage().Local().Get("quantity")
	require.True(t, ok)
	assert.EqualValues(t, 3, qty)
}

func TestOrchestrator_RehydrateRejectsWorkflowMismatch(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "s1", "another_workflow", "start"))

	o := runtime.NewOrchestrator("s1", newStockWorkflow(t), runtime.WithStore(store))
	err := o.Rehydrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another_workflow")
}
