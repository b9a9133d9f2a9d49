// Package store persists roost's entities in SQLite and exposes the
// locking primitives the stator scheduler is built on.
//
// Every schedulable table carries the scheduling triple (state, state_ready,
// state_locked_until) plus an attempts counter and last_error column, covered
// by a composite index so the ready-set scan stays cheap. The store is the
// single source of truth and the only cross-worker coordination mechanism:
// claiming an entity is one compare-and-swap UPDATE, and lock expiry is the
// sole retry path for failed handlers.
//
// Treat this package as the single source of truth for scheduling semantics;
// when you add new entity kinds, update the migration SQL and the kind table
// registry together.
package store
