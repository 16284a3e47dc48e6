// Package shieldauth manages identity, sessions and subscriptions for the
// creator platform backend: password and federated sign-in, JWT tokens bound
// to Redis sessions, TOTP second factor, one-time codes over email and SMS,
// and the subscription state fed by payment-gateway webhooks.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// shieldauth is the public surface. It exposes [Engine], [Builder], [Config],
// the [AccountStore], [Notifier], [PaymentGateway] and [OTPStore] interfaces,
// and value types. Token signing lives in jwt, credential hashing in password,
// the session registry in session and webhook handling in subscription. Redis
// counters and challenge storage live under internal/.
//
// # Errors
//
// Every error returned by an Engine method matches one of the sentinels in
// errors.go under errors.Is. [KindOf] maps them to a caller-facing
// [ErrorKind]. Credential failures never reveal whether the account exists.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods.
//   - Import any sub-package that re-imports shieldauth.
package shieldauth
