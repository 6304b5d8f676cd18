package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/concierge-sh/concierge/pkg/domain"
	"github.com/concierge-sh/concierge/pkg/dsl"
)

// demoPrices is the static quote table for the demo workflow.
var demoPrices = map[string]float64{
	"AAPL": 187.32,
	"GOOG": 141.80,
	"MSFT": 378.91,
	"AMZN": 146.22,
}

// demoWorkflow builds the built-in stock exchange demo: browse stocks,
// transact with propagated symbol and quantity, review the portfolio.
func demoWorkflow() (*domain.Workflow, error) {
	b := dsl.New("stock_exchange", "Simple stock trading workflow.")

	b.Stage("browse", "Browse the market and pick a stock to trade.").
		Handle("search", "Search the market for a stock symbol.",
			func(ctx context.Context, state *domain.State, args map[string]any) (any, error) {
				symbol, _ := args["symbol"].(string)
				if symbol == "" {
					return nil, errors.New("symbol is required")
				}
				price, ok := demoPrices[symbol]
				if !ok {
					return nil, fmt.Errorf("unknown symbol %q", symbol)
				}
				state.Set("last_search", symbol)
				return map[string]any{"symbol": symbol, "price": price}, nil
			},
			domain.ArgSpec{Name: "symbol", Type: "string", Required: true},
		).
		Handle("add_to_cart", "Select a stock and quantity to trade.",
			func(ctx context.Context, state *domain.State, args map[string]any) (any, error) {
				symbol, _ := args["symbol"].(string)
				if _, ok := demoPrices[symbol]; !ok {
					return nil, fmt.Errorf("unknown symbol %q", symbol)
				}
				state.Set("symbol", symbol)
				state.Set("quantity", args["quantity"])
				return fmt.Sprintf("%v x %s added to cart", args["quantity"], symbol), nil
			},
			domain.ArgSpec{Name: "symbol", Type: "string", Required: true},
			domain.ArgSpec{Name: "quantity", Type: "int", Required: true},
		).
		GoesWith("transact", "symbol", "quantity").
		GoesClean("portfolio")

	b.Stage("transact", "Execute the prepared trade.").
		Requires("symbol", "quantity").
		Handle("buy", "Buy the selected quantity at the current price.",
			func(ctx context.Context, state *domain.State, args map[string]any) (any, error) {
				symbol, _ := domain.GetAs[string](state, "symbol")
				quantity, _ := state.Get("quantity")
				state.Set("executed", true)
				return map[string]any{
					"status":   "filled",
					"symbol":   symbol,
					"quantity": quantity,
					"price":    demoPrices[symbol],
				}, nil
			},
		).
		Goes("portfolio")

	b.Stage("portfolio", "Review holdings.").
		Handle("holdings", "List current holdings.",
			func(ctx context.Context, state *domain.State, args map[string]any) (any, error) {
				return state.Snapshot(), nil
			},
		)

	return b.Build()
}
