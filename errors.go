package shieldauth

import (
	"errors"

	"github.com/MrEthical07/shieldauth/subscription"
)

var (
	// ErrInvalidInput is returned for missing or malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is the single failure reported for unknown
	// accounts, wrong passwords and password-less accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrLoginRateLimited   = errors.New("login rate limited")
	ErrPasswordPolicy     = errors.New("password policy violation")
	ErrPasswordReuse      = errors.New("new password must be different from current password")

	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	ErrSessionNotFound           = errors.New("session not found")
	ErrSessionCreationFailed     = errors.New("session creation failed")
	ErrSessionBackendUnavailable = errors.New("session backend unavailable")

	ErrOTPNotFound         = errors.New("otp not found")
	ErrOTPExpired          = errors.New("otp expired")
	ErrOTPMismatch         = errors.New("otp mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPRateLimited      = errors.New("otp requests rate limited")
	ErrOTPUnavailable      = errors.New("otp backend unavailable")
	ErrNotificationFailed  = errors.New("notification delivery failed")

	ErrTOTPRequired      = errors.New("totp required")
	ErrTOTPInvalid       = errors.New("invalid totp code")
	ErrTOTPRateLimited   = errors.New("totp attempts rate limited")
	ErrTOTPNotConfigured = errors.New("totp not configured")
	ErrTOTPAlreadyActive = errors.New("totp already enabled")
	ErrTOTPUnavailable   = errors.New("totp backend unavailable")

	ErrInvalidPlan       = errors.New("invalid subscription plan")
	ErrPaymentGateway    = errors.New("payment gateway failure")
	ErrGatewayNotEnabled = errors.New("payment gateway not configured")

	ErrForbidden      = errors.New("forbidden")
	ErrStoreFailure   = errors.New("account store failure")
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorKind is the caller-facing classification of an engine error.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidInput
	KindNotFound
	KindUnauthorized
	KindConflict
	KindExpired
	KindNotificationFailed
	KindRateLimited
	KindForbidden
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindExpired:
		return "expired"
	case KindNotificationFailed:
		return "notification_failed"
	case KindRateLimited:
		return "rate_limited"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrPasswordPolicy, KindInvalidInput},
	{ErrPasswordReuse, KindInvalidInput},
	{ErrInvalidPlan, KindInvalidInput},
	{subscription.ErrMalformedEvent, KindInvalidInput},

	{ErrAccountNotFound, KindNotFound},
	{ErrSessionNotFound, KindNotFound},
	{ErrOTPNotFound, KindNotFound},
	{subscription.ErrUnknownSubscription, KindNotFound},

	{ErrInvalidCredentials, KindUnauthorized},
	{ErrTokenInvalid, KindUnauthorized},
	{ErrOTPMismatch, KindUnauthorized},
	{ErrOTPAttemptsExceeded, KindUnauthorized},
	{ErrTOTPRequired, KindUnauthorized},
	{ErrTOTPInvalid, KindUnauthorized},
	{subscription.ErrInvalidSignature, KindUnauthorized},

	{ErrAccountExists, KindConflict},
	{ErrTOTPAlreadyActive, KindConflict},
	{ErrTOTPNotConfigured, KindConflict},

	{ErrTokenExpired, KindExpired},
	{ErrOTPExpired, KindExpired},

	{ErrNotificationFailed, KindNotificationFailed},

	{ErrLoginRateLimited, KindRateLimited},
	{ErrOTPRateLimited, KindRateLimited},
	{ErrTOTPRateLimited, KindRateLimited},

	{ErrAccountSuspended, KindForbidden},
	{ErrAccountDeactivated, KindForbidden},
	{ErrForbidden, KindForbidden},
}

// KindOf classifies err. Unclassified errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
