// Package store holds the shared key-value state of the service: OAuth
// credentials per Zoom user, recording bots per meeting, and idempotency
// claims for webhook events.
//
// Each concern has a file backend for single-process deployments and a
// Redis backend for deployments with more than one replica. File backends
// serialize every mutation through a per-path lock and replace the file by
// atomic rename, so concurrent writers in one process never lose updates.
// Redis backends rely on single-command or scripted atomicity instead.
package store
