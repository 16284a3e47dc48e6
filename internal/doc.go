// Package internal holds helpers private to shieldauth: random session
// identifiers and numeric one-time codes.
//
// # Sub-packages
//
//   - apierror: HTTP error values mapped from engine error kinds
//   - config: environment configuration for the binaries
//   - httpapi: chi routes over the engine
//   - limiters: OTP request and TOTP failure limiters
//   - logging: slog adapter behind the engine's Logger interface
//   - rate: login throttling primitives
//   - response: JSON envelope helpers
//   - stores: Redis OTP challenge records
package internal
