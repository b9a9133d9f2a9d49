// Package api defines wire-format types and converters for the HTTP API and
// CLI layer. It translates scheduling rows and summaries into
// transport-friendly DTOs so consumers never couple to store internals.
package api
