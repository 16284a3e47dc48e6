package shieldauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/shieldauth/subscription"
)

// AuditEventType identifies the engine action an [AuditEvent] records.
type AuditEventType string

const (
	AuditEventRegister              AuditEventType = "register"
	AuditEventLoginSuccess          AuditEventType = "login_success"
	AuditEventLoginFailure          AuditEventType = "login_failure"
	AuditEventLoginFederated        AuditEventType = "login_federated"
	AuditEventLogout                AuditEventType = "logout"
	AuditEventSessionRevoked        AuditEventType = "session_revoked"
	AuditEventRateLimitTriggered    AuditEventType = "rate_limit_triggered"
	AuditEventOTPIssued             AuditEventType = "otp_issued"
	AuditEventOTPVerified           AuditEventType = "otp_verified"
	AuditEventOTPFailure            AuditEventType = "otp_failure"
	AuditEventPasswordResetRequest  AuditEventType = "password_reset_request"
	AuditEventPasswordResetConfirm  AuditEventType = "password_reset_confirm"
	AuditEventPasswordChange        AuditEventType = "password_change"
	AuditEventPhoneChanged          AuditEventType = "phone_changed"
	AuditEventTOTPEnrollRequested   AuditEventType = "totp_enroll_requested"
	AuditEventTOTPEnabled           AuditEventType = "totp_enabled"
	AuditEventTOTPDisabled          AuditEventType = "totp_disabled"
	AuditEventTOTPFailure           AuditEventType = "totp_failure"
	AuditEventAccountDeleted        AuditEventType = "account_deleted"
	AuditEventAccountStatusChange   AuditEventType = "account_status_change"
	AuditEventSubscriptionCreated   AuditEventType = "subscription_created"
	AuditEventSubscriptionWebhook   AuditEventType = "subscription_webhook"
	AuditEventSubscriptionTrialEnds AuditEventType = "subscription_trial_expired"
)

// AuditErrorCode is the coarse failure reason recorded on audit events.
type AuditErrorCode string

const (
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrAccountSuspended   AuditErrorCode = "account_suspended"
	auditErrAccountDeactivated AuditErrorCode = "account_deactivated"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrOTPInvalid         AuditErrorCode = "otp_invalid"
	auditErrOTPExpired         AuditErrorCode = "otp_expired"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrTOTPRequired       AuditErrorCode = "totp_required"
	auditErrTOTPInvalid        AuditErrorCode = "totp_invalid"
	auditErrNotification       AuditErrorCode = "notification_failed"
	auditErrSignature          AuditErrorCode = "invalid_signature"
	auditErrUnknownSubject     AuditErrorCode = "unknown_subscription"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType AuditEventType,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, metadataBuilder func() map[string]string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, AuditEventRateLimitTriggered, false, "", "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrOTPRateLimited),
		errors.Is(err, ErrTOTPRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountSuspended):
		return auditErrAccountSuspended
	case errors.Is(err, ErrAccountDeactivated):
		return auditErrAccountDeactivated
	case errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrOTPMismatch),
		errors.Is(err, ErrOTPNotFound):
		return auditErrOTPInvalid
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrTOTPRequired):
		return auditErrTOTPRequired
	case errors.Is(err, ErrTOTPInvalid),
		errors.Is(err, ErrTOTPNotConfigured):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrNotificationFailed):
		return auditErrNotification
	case errors.Is(err, subscription.ErrInvalidSignature):
		return auditErrSignature
	case errors.Is(err, subscription.ErrUnknownSubscription):
		return auditErrUnknownSubject
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, subscription.ErrMalformedEvent):
		return auditErrInvalidInput
	case errors.Is(err, ErrSessionBackendUnavailable),
		errors.Is(err, ErrOTPUnavailable),
		errors.Is(err, ErrTOTPUnavailable),
		errors.Is(err, ErrStoreFailure),
		errors.Is(err, ErrPaymentGateway):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
