// Package middleware provides composable wrappers around a ports.StateStore:
// field-level encryption at rest and PII masking. Middlewares see every write
// before it reaches the backing store, so they apply uniformly to the memory,
// file, redis, and postgres adapters.
package middleware

import "github.com/concierge-sh/concierge/pkg/ports"

// Middleware wraps a StateStore to add behavior.
type Middleware func(ports.StateStore) ports.StateStore

// Chain applies middlewares to a store, first middleware outermost.
func Chain(store ports.StateStore, mws ...Middleware) ports.StateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
