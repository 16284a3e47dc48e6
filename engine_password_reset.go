package shieldauth

import "context"

// RequestPasswordReset emails a reset code to a registered address. Unknown
// addresses succeed silently.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	err := e.RequestOTP(ctx, email, ChannelEmail)
	e.emitAudit(ctx, AuditEventPasswordResetRequest, err == nil, "", "", err, nil)
	return err
}

// ResetPassword sets a new password after the emailed code verifies and
// revokes every session of the account.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrInvalidInput
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	if err := e.VerifyOTP(ctx, email, code); err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, AuditEventPasswordResetConfirm, false, "", "", err, nil)
		return err
	}

	acc, err := e.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		return storeError(err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return ErrPasswordPolicy
	}
	acc.PasswordHash = hash
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}

	if _, err := e.revokeAll(ctx, acc.ID); err != nil {
		return err
	}
	if err := e.rateLimiter.ResetLogin(ctx, email); err != nil {
		e.logger.Warn(ctx, "login counter reset failed", "account_id", acc.ID, "error", err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, AuditEventPasswordResetConfirm, true, acc.ID, "", nil, nil)
	return nil
}

// ChangePassword replaces the password of a signed-in account and revokes
// every session except currentSessionID.
func (e *Engine) ChangePassword(ctx context.Context, accountID, currentSessionID, oldPassword, newPassword string) error {
	acc, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.PasswordHash == "" || !e.hasher.Verify(oldPassword, acc.PasswordHash) {
		e.emitAudit(ctx, AuditEventPasswordChange, false, acc.ID, currentSessionID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if oldPassword == newPassword {
		return ErrPasswordReuse
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return ErrPasswordPolicy
	}
	acc.PasswordHash = hash
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}

	sessions, err := e.sessions.List(ctx, acc.ID)
	if err != nil {
		return mapSessionError(err)
	}
	for _, s := range sessions {
		if s.SessionID == currentSessionID {
			continue
		}
		removed, err := e.sessions.Revoke(ctx, acc.ID, s.SessionID)
		if err != nil {
			return mapSessionError(err)
		}
		if removed {
			e.metricInc(MetricSessionRevoked)
		}
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, AuditEventPasswordChange, true, acc.ID, currentSessionID, nil, nil)
	return nil
}
