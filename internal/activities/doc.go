// Package activities implements the post lifecycle: local creation, the
// fan-out pipeline that turns one post into per-recipient deliveries, and
// the inbound Create/Delete activity handlers.
//
// Posts and fan-outs are schedulable entities. A new post fans out exactly
// once (the fan-out handler is idempotent, so at-least-once execution is
// safe); each resulting fan-out is delivered independently, locally to a
// timeline or remotely to an inbox.
package activities
