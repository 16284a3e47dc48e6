package shieldauth

import (
	"context"
)

// ListSessions returns the live sessions of an account, most recently active
// first. currentSessionID marks the caller's own session.
func (e *Engine) ListSessions(ctx context.Context, accountID, currentSessionID string) ([]SessionInfo, error) {
	if accountID == "" {
		return nil, ErrInvalidInput
	}

	sessions, err := e.sessions.List(ctx, accountID)
	if err != nil {
		return nil, mapSessionError(err)
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionInfo(s, currentSessionID))
	}
	return out, nil
}

// RevokeSession ends one session of an account. Sessions owned by another
// account are reported as not found.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	if accountID == "" || sessionID == "" {
		return ErrInvalidInput
	}

	removed, err := e.sessions.Revoke(ctx, accountID, sessionID)
	if err != nil {
		return mapSessionError(err)
	}
	if !removed {
		return ErrSessionNotFound
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, AuditEventSessionRevoked, true, accountID, sessionID, nil, nil)
	return nil
}

// RevokeAllSessions ends every session of an account and returns how many
// were removed.
func (e *Engine) RevokeAllSessions(ctx context.Context, accountID string) (int, error) {
	if accountID == "" {
		return 0, ErrInvalidInput
	}
	n, err := e.revokeAll(ctx, accountID)
	if err != nil {
		return 0, err
	}
	e.emitAudit(ctx, AuditEventSessionRevoked, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"scope": "all"}
	})
	return n, nil
}
