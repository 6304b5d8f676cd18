// Package session enforces the single-writer-per-session rule at the engine
// boundary: a reference-counted in-process lock per session ID, optionally
// paired with a distributed lock for multi-replica deployments.
package session
