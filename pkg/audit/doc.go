// Package audit records grant mutation events emitted by the ACL store.
//
// The store reports three event types: acl.grant_created when a (target,
// role) grant row first appears, acl.grant_edited when permissions are
// added to an existing row, and acl.grant_revoked when permissions are
// removed. Emission is a side channel: it happens after the mutation
// commits and never affects its outcome.
//
// Loggers: DBLogger persists to an audit_events table, MemoryLogger keeps
// events in memory for tests, MultiLogger fans out, NopLogger discards.
// Callers can thread a logger and an actor identity through the context
// with WithLogger and WithActor.
package audit
