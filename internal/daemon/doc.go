// Package daemon coordinates the long-running roost process: it enforces
// single-instance execution with a lock file, runs the stator scheduler, and
// serves the HTTP control API plus the federation inbox.
package daemon
