// Package resource implements the content object store behind the
// resource.* protocol ops and the HTTP sibling server that streams the
// bytes.
//
// Objects are keyed by an opaque rid and ingested with a two-phase
// handshake: Prepare reserves quota and issues an upload ticket, the
// client streams bytes to the ticketed endpoint, and Commit verifies the
// digest and size before the object becomes readable. Metadata lives in
// an in-memory index; the bytes live in a pluggable Blob backend (local
// disk or S3).
//
// A periodic Cleanup keeps the store within its TTL and quota limits,
// evicting least-recently-accessed objects first. Entries mid-upload are
// never evicted.
package resource
