// Package identity manages federated actors, local and remote.
//
// Remote identities are schedulable entities: they sit in the "outdated"
// state until the scheduler fetches their actor document and settles them in
// "updated". Local identities are minted directly in "updated" and never
// scheduled.
package identity
