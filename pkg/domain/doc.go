// Package domain contains the core value types of the concierge engine:
// scoped state containers, operations, stages, the workflow stage graph with
// its propagation policies, the result sum type, and the error taxonomy.
//
// Types here carry no transport, persistence, or rendering concerns; those
// live in adapters. Nothing in this package is safe for concurrent use; the
// session layer serializes all access per session.
package domain
