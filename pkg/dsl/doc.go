/*
Package dsl provides a fluent Go builder for programmatically constructing
Concierge workflows.

It allows developers to define stage graphs using a type-safe builder pattern
instead of external YAML files. This is particularly useful for dynamic
workflow generation, unit testing, and leveraging IDE autocompletion.

Example usage:

	wf, err := dsl.New("stock_exchange", "Simple stock trading workflow.").
		Stage("browse", "Browse the market.").
		Handle("search", "Search for a symbol.", searchHandler).
		GoesWith("transact", "symbol", "quantity").
		GoesClean("portfolio").
		Builder().
		Build()
*/
package dsl
