// Package stator schedules state-machine transitions over entities stored in
// the shared database.
//
// Each schedulable entity kind declares a Graph: a set of named states, the
// handler that runs when an entity sits in each state, and the transitions a
// handler is allowed to request. The Runner polls the store for ready
// entities, claims them with a short-lived lock, and executes the handler for
// their current state. Handlers run at-least-once: a crashed or overrunning
// worker simply lets its lock expire, after which the entity is reclaimed and
// handled again. Handlers must therefore be idempotent.
package stator
