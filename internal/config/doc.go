// Package config loads, normalizes, and validates roost's TOML
// configuration.
//
// Configuration is resolved from an explicit path, ~/.config/roost/config.toml,
// or a project-local roost.toml, in that order. All path fields are expanded
// and absolute after Load returns.
package config
