package shieldauth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxNameLength     = 100
	maxPasswordLength = 1024
	phoneDigits       = 10
)

// Register creates an account with a password, opens its first session and
// returns a token for it.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	if !e.config.Account.AllowRegistration {
		return nil, ErrForbidden
	}

	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if !validEmail(email) || name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, ErrInvalidInput
	}
	if in.Phone != "" && !validPhone(in.Phone) {
		return nil, ErrInvalidInput
	}
	if err := e.checkPasswordPolicy(in.Password); err != nil {
		return nil, err
	}

	if _, err := e.accounts.FindAccountByEmail(ctx, email); err == nil {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, AuditEventRegister, false, "", "", ErrAccountExists, nil)
		return nil, ErrAccountExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, storeError(err)
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, ErrPasswordPolicy
	}

	now := e.now().UTC()
	acc := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Phone:        in.Phone,
		PasswordHash: hash,
		Role:         e.roleFor(email),
		Status:       StatusActive,
		Subscription: Subscription{State: SubscriptionNone},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.accounts.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterDuplicate)
		}
		e.emitAudit(ctx, AuditEventRegister, false, "", "", err, nil)
		return nil, storeError(err)
	}

	e.metricInc(MetricRegisterSuccess)

	result, err := e.openSession(ctx, acc, DeviceInfo{})
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, AuditEventRegister, true, acc.ID, result.SessionID, nil, func() map[string]string {
		return map[string]string{
			"role": string(acc.Role),
		}
	})

	return result, nil
}

// DeleteAccount removes an account after a fresh proof of possession: the
// password, plus a TOTP code when two-factor is on. Accounts without a
// password prove control with a TOTP code or, failing that, an email OTP
// passed as secret.
func (e *Engine) DeleteAccount(ctx context.Context, accountID, secret, totpCode string) error {
	acc, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}

	switch {
	case acc.PasswordHash != "":
		if secret == "" || !e.hasher.Verify(secret, acc.PasswordHash) {
			e.emitAudit(ctx, AuditEventAccountDeleted, false, acc.ID, "", ErrInvalidCredentials, nil)
			return ErrInvalidCredentials
		}
	case !acc.TOTPEnabled:
		if secret == "" {
			return ErrInvalidCredentials
		}
		if err := e.otp.Verify(ctx, acc.Email, secret); err != nil {
			e.emitAudit(ctx, AuditEventAccountDeleted, false, acc.ID, "", err, nil)
			return err
		}
	}

	if acc.TOTPEnabled {
		if totpCode == "" {
			return ErrTOTPRequired
		}
		if err := e.verifyTOTPCode(ctx, acc, totpCode); err != nil {
			e.emitAudit(ctx, AuditEventAccountDeleted, false, acc.ID, "", err, nil)
			return err
		}
	}

	if _, err := e.revokeAll(ctx, acc.ID); err != nil {
		return err
	}
	if err := e.accounts.DeleteAccount(ctx, acc.ID); err != nil {
		return storeError(err)
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, AuditEventAccountDeleted, true, acc.ID, "", nil, nil)
	e.logger.Info(ctx, "account deleted", "account_id", acc.ID)

	return nil
}

// UpdatePhone sets the account's phone number. smsCode must be the code sent
// to phone by [Engine.RequestOTP] over [ChannelSMS]; it is consumed on
// success.
func (e *Engine) UpdatePhone(ctx context.Context, accountID, phone, smsCode string) error {
	phone, _, err := e.otpTarget(phone, ChannelSMS)
	if err != nil {
		return err
	}
	smsCode = strings.TrimSpace(smsCode)
	if smsCode == "" {
		return ErrInvalidInput
	}
	acc, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if err := e.otp.Verify(ctx, phone, smsCode); err != nil {
		e.metricInc(MetricOTPFailure)
		e.emitAudit(ctx, AuditEventPhoneChanged, false, acc.ID, "", err, nil)
		return err
	}
	e.metricInc(MetricOTPVerified)

	acc.Phone = phone
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditEventPhoneChanged, true, acc.ID, "", nil, nil)
	return nil
}

func (e *Engine) roleFor(email string) Role {
	for _, admin := range e.config.Account.AdminEmails {
		if normalizeEmail(admin) == email {
			return RoleAdmin
		}
	}
	return e.config.Account.DefaultRole
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if len(pw) < e.config.Password.MinLength || len(pw) > maxPasswordLength {
		return ErrPasswordPolicy
	}
	return nil
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validPhone(phone string) bool {
	return len(phone) == phoneDigits && isNumericString(phone)
}
