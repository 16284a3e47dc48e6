// Package jwt issues and verifies signed bearer tokens carrying account
// identity, role and session id.
//
// The verifier is pinned to the single configured algorithm. Tokens using
// any other algorithm, an unknown kid or a different key fail with
// [ErrBadSignature]. Expiry is mandatory.
package jwt
