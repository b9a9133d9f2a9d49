// Package federation is the HTTP boundary to other servers: fetching remote
// actor and object documents, canonicalizing them before interpretation, and
// delivering activity envelopes to remote inboxes.
//
// Every document that crosses the boundary inward passes through a
// Canonicalizer first. The built-in normalizer applies Unicode NFC
// normalization and light field defaulting; full JSON-LD processing is an
// external collaborator and can be plugged in behind the same interface.
package federation
