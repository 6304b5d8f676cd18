/*
Package ports defines the driven ports (interfaces) of the concierge engine.

These interfaces decouple the orchestration core from external
implementations, allowing sessions to be persisted in memory, Redis, or
PostgreSQL and coordinated across replicas.

# Key Interfaces

  - StateStore: persists per-session global data, stage-local data, the
    cursor, and a versioned snapshot history.
  - DistributedLocker: serializes access to one session across instances.
*/
package ports
