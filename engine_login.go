package shieldauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/shieldauth/internal/rate"
	"github.com/MrEthical07/shieldauth/jwt"
	"github.com/MrEthical07/shieldauth/session"
	"github.com/google/uuid"
)

// Login verifies email and password, enforces the account's second factor
// and opens a session. Unknown accounts, wrong passwords and password-less
// accounts all fail with ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password, totpCode string, device DeviceInfo) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	ip := device.IP
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}

	if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitRateLimit(ctx, "login", func() map[string]string {
				return map[string]string{"identifier": email}
			})
			return nil, ErrLoginRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionBackendUnavailable, err)
	}

	acc, err := e.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, e.loginFailed(ctx, email, ip, "", "unknown_account")
		}
		return nil, storeError(err)
	}
	if acc.PasswordHash == "" {
		return nil, e.loginFailed(ctx, email, ip, acc.ID, "no_password")
	}
	if !e.hasher.Verify(password, acc.PasswordHash) {
		return nil, e.loginFailed(ctx, email, ip, acc.ID, "wrong_password")
	}

	if err := accountStatusError(acc); err != nil {
		e.emitAudit(ctx, AuditEventLoginFailure, false, acc.ID, "", err, nil)
		return nil, err
	}

	if err := e.requireSecondFactor(ctx, acc, totpCode); err != nil {
		return nil, err
	}

	if err := e.rateLimiter.ResetLogin(ctx, email); err != nil {
		e.logger.Warn(ctx, "login counter reset failed", "account_id", acc.ID, "error", err)
	}

	e.upgradePasswordHash(ctx, acc, password)

	result, err := e.openSession(ctx, acc, DeviceInfo{UserAgent: device.UserAgent, IP: ip})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEventLoginSuccess, true, acc.ID, result.SessionID, nil, nil)

	return result, nil
}

// LoginFederated signs in an identity whose email the provider has already
// verified. A missing account is created without a password.
func (e *Engine) LoginFederated(ctx context.Context, id FederatedIdentity, totpCode string, device DeviceInfo) (*LoginResult, error) {
	email := normalizeEmail(id.Email)
	if !validEmail(email) {
		return nil, ErrInvalidInput
	}
	if !id.EmailVerified {
		e.emitAudit(ctx, AuditEventLoginFederated, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"provider": id.Provider, "reason": "email_unverified"}
		})
		return nil, ErrInvalidCredentials
	}

	acc, err := e.accounts.FindAccountByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		acc, err = e.createFederatedAccount(ctx, email, id)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, storeError(err)
	}

	if err := accountStatusError(acc); err != nil {
		e.emitAudit(ctx, AuditEventLoginFederated, false, acc.ID, "", err, nil)
		return nil, err
	}
	if err := e.requireSecondFactor(ctx, acc, totpCode); err != nil {
		return nil, err
	}

	result, err := e.openSession(ctx, acc, device)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricFederatedLogin)
	e.emitAudit(ctx, AuditEventLoginFederated, true, acc.ID, result.SessionID, nil, func() map[string]string {
		return map[string]string{"provider": id.Provider}
	})

	return result, nil
}

func (e *Engine) createFederatedAccount(ctx context.Context, email string, id FederatedIdentity) (*Account, error) {
	if !e.config.Account.AllowRegistration {
		return nil, ErrForbidden
	}

	name := strings.TrimSpace(id.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	now := e.now().UTC()
	acc := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         e.roleFor(email),
		Status:       StatusActive,
		Subscription: Subscription{State: SubscriptionNone},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.accounts.CreateAccount(ctx, acc); err != nil {
		if !errors.Is(err, ErrAccountExists) {
			return nil, storeError(err)
		}
		// Lost a race with a concurrent first login.
		existing, ferr := e.accounts.FindAccountByEmail(ctx, email)
		if ferr != nil {
			return nil, storeError(ferr)
		}
		return existing, nil
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditEventRegister, true, acc.ID, "", nil, func() map[string]string {
		return map[string]string{"provider": id.Provider}
	})
	return acc, nil
}

// Validate resolves a token to its account. The token must verify and its
// session must still exist and belong to the token's subject.
func (e *Engine) Validate(ctx context.Context, token string) (*AuthResult, error) {
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	claims, err := e.verifyToken(token)
	if err != nil {
		return nil, err
	}

	sess, err := e.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, mapSessionError(err)
	}
	if sess.UserID != claims.Subject {
		return nil, ErrSessionNotFound
	}

	if err := e.sessions.Touch(ctx, sess); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		e.logger.Warn(ctx, "session touch failed", "session_id", sess.SessionID, "error", err)
	}

	return &AuthResult{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		Role:      Role(claims.Role),
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Logout revokes the session the token is bound to. Logging out an already
// revoked session succeeds.
func (e *Engine) Logout(ctx context.Context, token string) error {
	claims, err := e.verifyToken(token)
	if err != nil {
		return err
	}

	removed, err := e.sessions.Revoke(ctx, claims.Subject, claims.SessionID)
	if err != nil {
		return mapSessionError(err)
	}
	if removed {
		e.metricInc(MetricSessionRevoked)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, AuditEventLogout, true, claims.Subject, claims.SessionID, nil, nil)
	return nil
}

func (e *Engine) verifyToken(token string) (*jwt.Claims, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}
	claims, err := e.jwt.Verify(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (e *Engine) requireSecondFactor(ctx context.Context, acc *Account, totpCode string) error {
	if !acc.TOTPEnabled {
		return nil
	}
	if strings.TrimSpace(totpCode) == "" {
		e.metricInc(MetricTOTPRequired)
		e.emitAudit(ctx, AuditEventLoginFailure, false, acc.ID, "", ErrTOTPRequired, nil)
		return ErrTOTPRequired
	}
	return e.verifyTOTPCode(ctx, acc, totpCode)
}

func (e *Engine) loginFailed(ctx context.Context, email, ip, accountID, reason string) error {
	if err := e.rateLimiter.IncrementLogin(ctx, email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		e.logger.Warn(ctx, "login counter increment failed", "error", err)
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, AuditEventLoginFailure, false, accountID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrInvalidCredentials
}

// upgradePasswordHash replaces legacy or weaker hashes after a successful
// login. Failures are logged; the login proceeds.
func (e *Engine) upgradePasswordHash(ctx context.Context, acc *Account, password string) {
	if !e.config.Password.UpgradeOnLogin || !e.hasher.NeedsRehash(acc.PasswordHash) {
		return
	}
	hash, err := e.hasher.Hash(password)
	if err != nil {
		e.logger.Warn(ctx, "password rehash failed", "account_id", acc.ID, "error", err)
		return
	}
	acc.PasswordHash = hash
	if err := e.saveAccount(ctx, acc); err != nil {
		e.logger.Warn(ctx, "password rehash not persisted", "account_id", acc.ID, "error", err)
	}
}

func mapSessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionCorrupt):
		return ErrSessionNotFound
	default:
		return fmt.Errorf("%w: %v", ErrSessionBackendUnavailable, err)
	}
}
