// Package limiters provides domain-specific Redis rate limiters.
//
// # Limiters
//
//   - [TOTPLimiter]: per-account failure throttle for second-factor codes.
//   - [OTPRequestLimiter]: per-address and per-IP throttle for issuing one-time codes.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import shieldauth or any sibling internal package.
//   - Make policy decisions beyond counting. The engine decides consequences.
package limiters
