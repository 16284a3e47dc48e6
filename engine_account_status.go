package shieldauth

import "context"

// SuspendAccount blocks sign-in for the account and revokes its sessions.
func (e *Engine) SuspendAccount(ctx context.Context, accountID string) error {
	if err := e.setStatus(ctx, accountID, StatusSuspended); err != nil {
		return err
	}
	if _, err := e.revokeAll(ctx, accountID); err != nil {
		return err
	}
	e.metricInc(MetricAccountSuspended)
	return nil
}

// ReactivateAccount returns a suspended or deactivated account to active.
func (e *Engine) ReactivateAccount(ctx context.Context, accountID string) error {
	if err := e.setStatus(ctx, accountID, StatusActive); err != nil {
		return err
	}
	e.metricInc(MetricAccountReactivated)
	return nil
}

func (e *Engine) setStatus(ctx context.Context, accountID string, status Status) error {
	acc, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.Status == status {
		return nil
	}

	previous := acc.Status
	acc.Status = status
	if err := e.saveAccount(ctx, acc); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditEventAccountStatusChange, true, acc.ID, "", nil, func() map[string]string {
		return map[string]string{
			"from": string(previous),
			"to":   string(status),
		}
	})
	return nil
}
