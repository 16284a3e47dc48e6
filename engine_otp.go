package shieldauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/shieldauth/internal/limiters"
)

// RequestOTP issues a one-time code to address over channel.
//
// Email codes are only sent to registered addresses; an unknown address
// returns nil without sending anything. SMS codes go to any 10-digit number.
// When delivery fails the error wraps ErrNotificationFailed and the stored
// code stays valid.
func (e *Engine) RequestOTP(ctx context.Context, address string, channel Channel) error {
	address, digits, err := e.otpTarget(address, channel)
	if err != nil {
		return err
	}

	if err := e.otpLimiter.CheckRequest(ctx, address, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrOTPRateLimited) {
			e.emitRateLimit(ctx, "otp_request", func() map[string]string {
				return map[string]string{"channel": string(channel)}
			})
			return ErrOTPRateLimited
		}
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	var accountID string
	if channel == ChannelEmail {
		acc, err := e.accounts.FindAccountByEmail(ctx, address)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				e.emitAudit(ctx, AuditEventOTPIssued, false, "", "", ErrAccountNotFound, func() map[string]string {
					return map[string]string{"channel": string(channel)}
				})
				return nil
			}
			return storeError(err)
		}
		accountID = acc.ID
	}

	code, err := e.otp.Issue(ctx, address, channel, digits, e.config.OTP.TTL)
	if err != nil {
		return err
	}
	e.metricInc(MetricOTPIssued)

	if err := e.deliverOTP(ctx, address, channel, code); err != nil {
		e.metricInc(MetricNotificationFailure)
		e.logger.Warn(ctx, "otp delivery failed", "channel", string(channel), "error", err)
		wrapped := fmt.Errorf("%w: %v", ErrNotificationFailed, err)
		e.emitAudit(ctx, AuditEventOTPIssued, false, accountID, "", wrapped, func() map[string]string {
			return map[string]string{"channel": string(channel)}
		})
		return wrapped
	}

	e.emitAudit(ctx, AuditEventOTPIssued, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"channel": string(channel)}
	})
	return nil
}

// VerifyOTP consumes the live challenge for address when code matches.
func (e *Engine) VerifyOTP(ctx context.Context, address, code string) error {
	address = normalizeAddress(address)
	code = strings.TrimSpace(code)
	if address == "" || code == "" {
		return ErrInvalidInput
	}

	if err := e.otp.Verify(ctx, address, code); err != nil {
		e.metricInc(MetricOTPFailure)
		e.emitAudit(ctx, AuditEventOTPFailure, false, "", "", err, nil)
		return err
	}

	e.metricInc(MetricOTPVerified)
	e.emitAudit(ctx, AuditEventOTPVerified, true, "", "", nil, nil)
	return nil
}

func (e *Engine) otpTarget(address string, channel Channel) (string, int, error) {
	address = normalizeAddress(address)
	switch channel {
	case ChannelEmail:
		if !validEmail(address) {
			return "", 0, ErrInvalidInput
		}
		return address, e.config.OTP.EmailDigits, nil
	case ChannelSMS:
		if !validPhone(address) {
			return "", 0, ErrInvalidInput
		}
		return address, e.config.OTP.SMSDigits, nil
	default:
		return "", 0, ErrInvalidInput
	}
}

func (e *Engine) deliverOTP(ctx context.Context, address string, channel Channel, code string) error {
	minutes := int(e.config.OTP.TTL / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes)

	if channel == ChannelSMS {
		return e.notifier.SendSMS(ctx, address, body)
	}
	return e.notifier.SendEmail(ctx, address, e.config.OTP.EmailSubject, body)
}
