// Package session is the Redis-backed session registry.
//
// # Binary encoding
//
// Sessions are stored as a compact versioned binary blob (see [Encode]). The
// version byte comes first so the layout can grow without reinterpreting old
// records.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It
// does NOT interpret tokens or decide who may log in. Those decisions belong to
// the Engine.
//
// # What this package must NOT do
//
//   - Import shieldauth or jwt (no upward imports).
//   - Store secrets in [Session] fields.
package session
