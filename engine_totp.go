package shieldauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/shieldauth/internal/limiters"
)

// EnrollTOTP generates a pending secret for the account. Two-factor stays
// off until [Engine.ConfirmTOTP] accepts a code for it. Enrolling again
// before confirmation replaces the pending secret.
func (e *Engine) EnrollTOTP(ctx context.Context, accountID string) (*TOTPEnrollment, error) {
	acc, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.TOTPEnabled {
		return nil, ErrTOTPAlreadyActive
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
	}
	acc.TOTPSecret = secret
	if err := e.saveAccount(ctx, acc); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, AuditEventTOTPEnrollRequested, true, acc.ID, "", nil, nil)

	return &TOTPEnrollment{
		Secret: secret,
		URI:    e.totp.ProvisionURI(secret, acc.Email),
	}, nil
}

// ConfirmTOTP enables two-factor once code matches the pending secret. A
// wrong code keeps the pending secret so the user can retry.
func (e *Engine) ConfirmTOTP(ctx context.Context, accountID, code string) error {
	acc, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.TOTPEnabled {
		return ErrTOTPAlreadyActive
	}
	if acc.TOTPSecret == "" {
		return ErrTOTPNotConfigured
	}
	if err := e.verifyTOTPCode(ctx, acc, code); err != nil {
		return err
	}

	acc.TOTPEnabled = true
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}

	e.metricInc(MetricTOTPEnabled)
	e.emitAudit(ctx, AuditEventTOTPEnabled, true, acc.ID, "", nil, nil)
	return nil
}

// VerifyTOTP checks a code for an account with two-factor enabled.
func (e *Engine) VerifyTOTP(ctx context.Context, accountID, code string) error {
	acc, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !acc.TOTPEnabled || acc.TOTPSecret == "" {
		return ErrTOTPNotConfigured
	}
	return e.verifyTOTPCode(ctx, acc, code)
}

// DisableTOTP turns two-factor off. It requires a valid current code.
func (e *Engine) DisableTOTP(ctx context.Context, accountID, code string) error {
	acc, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !acc.TOTPEnabled {
		return ErrTOTPNotConfigured
	}
	if err := e.verifyTOTPCode(ctx, acc, code); err != nil {
		return err
	}

	acc.TOTPEnabled = false
	acc.TOTPSecret = ""
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}

	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, AuditEventTOTPDisabled, true, acc.ID, "", nil, nil)
	return nil
}

// verifyTOTPCode checks code against acc.TOTPSecret under the per-account
// failure throttle.
func (e *Engine) verifyTOTPCode(ctx context.Context, acc *Account, code string) error {
	if err := e.totpLimiter.Check(ctx, acc.ID); err != nil {
		return e.mapTOTPLimiterError(ctx, acc.ID, err)
	}

	ok, counter, err := e.totp.VerifyCode(acc.TOTPSecret, code, e.now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
	}
	if !ok {
		return e.totpFailed(ctx, acc.ID, nil)
	}

	if e.config.TOTP.EnforceReplayProtection {
		if counter <= acc.TOTPLastCounter {
			return e.totpFailed(ctx, acc.ID, map[string]string{"reason": "replay"})
		}
		advanced, err := e.accounts.UpdateTOTPLastUsedCounter(ctx, acc.ID, counter)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
		}
		if !advanced {
			return e.totpFailed(ctx, acc.ID, map[string]string{"reason": "replay"})
		}
		acc.TOTPLastCounter = counter
	}

	if err := e.totpLimiter.Reset(ctx, acc.ID); err != nil {
		e.logger.Warn(ctx, "totp counter reset failed", "account_id", acc.ID, "error", err)
	}
	e.metricInc(MetricTOTPSuccess)
	return nil
}

func (e *Engine) totpFailed(ctx context.Context, accountID string, meta map[string]string) error {
	if err := e.totpLimiter.RecordFailure(ctx, accountID); err != nil && !errors.Is(err, limiters.ErrTOTPRateLimited) {
		e.logger.Warn(ctx, "totp failure not recorded", "account_id", accountID, "error", err)
	}
	e.metricInc(MetricTOTPFailure)
	var metadata func() map[string]string
	if meta != nil {
		metadata = func() map[string]string { return meta }
	}
	e.emitAudit(ctx, AuditEventTOTPFailure, false, accountID, "", ErrTOTPInvalid, metadata)
	return ErrTOTPInvalid
}

func (e *Engine) mapTOTPLimiterError(ctx context.Context, accountID string, err error) error {
	if errors.Is(err, limiters.ErrTOTPRateLimited) {
		e.emitRateLimit(ctx, "totp", func() map[string]string {
			return map[string]string{"account_id": accountID}
		})
		return ErrTOTPRateLimited
	}
	return fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
}
