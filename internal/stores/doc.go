// Package stores provides the Redis-backed one-time code challenge store.
//
// # Design
//
// Each challenge is a versioned binary record keyed by address with a TTL.
// Consume runs a WATCH/MULTI transaction with retry on contention: a match
// deletes the record, a mismatch increments the attempt counter, and the
// record is deleted once attempts reach the limit. Codes are compared in
// constant time.
//
// This package does not generate codes, throttle requests, or log secrets.
package stores
