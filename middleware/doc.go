// Package middleware adapts Engine validation to net/http.
//
// [Guard] reads the session token from the Authorization header or the
// session cookie, calls Engine.Validate and stores the [shieldauth.AuthResult]
// in the request context. [RequireRole] gates admin routes on top of it.
//
// This package makes no authentication decisions of its own; every
// accept/reject comes from Engine.Validate.
package middleware
