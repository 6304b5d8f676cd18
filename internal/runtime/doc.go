// Package runtime contains the per-session execution machinery: the
// orchestrator that drives one workflow instance (cursor, history, pending
// transition) and the dispatcher that translates between raw JSON action
// envelopes and rendered continuation messages.
package runtime
