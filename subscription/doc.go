// Package subscription applies payment-gateway webhook events to the
// subscription fields of an account.
//
// Every event is authenticated first ([VerifySignature]), then decoded into a
// closed set of event types ([ParseEvent]), then applied by a [Machine] that
// serialises work per external subscription id and writes through a
// conditional update on the [Store].
//
// States move none -> active -> expired. Renewal events re-enter active.
//
// # What this package must NOT do
//
//   - Import shieldauth (the root package wires the Store).
//   - Touch state before the signature has been checked.
package subscription
