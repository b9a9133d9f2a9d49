// Package logging configures structured slog output for the roost daemon
// and CLI.
//
// It provides typed attribute constructors, standardized field keys shared
// across components, context-derived fields (entity kind, entity id,
// correlation id), and console/JSON handler construction from config.
package logging
