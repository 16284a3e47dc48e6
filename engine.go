package shieldauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/shieldauth/internal/limiters"
	"github.com/MrEthical07/shieldauth/internal/logging"
	"github.com/MrEthical07/shieldauth/internal/rate"
	"github.com/MrEthical07/shieldauth/jwt"
	"github.com/MrEthical07/shieldauth/password"
	"github.com/MrEthical07/shieldauth/session"
	"github.com/MrEthical07/shieldauth/subscription"
)

// Engine orchestrates accounts, credentials, sessions and subscriptions.
// Build one with [New]; it is safe for concurrent use.
type Engine struct {
	config      Config
	accounts    AccountStore
	sessions    *session.Store
	otp         OTPStore
	otpLimiter  *limiters.OTPRequestLimiter
	rateLimiter *rate.Limiter
	totpLimiter *limiters.TOTPLimiter
	totp        *totpManager
	hasher      *password.Hasher
	jwt         *jwt.Manager
	notifier    Notifier
	gateway     PaymentGateway
	machine     *subscription.Machine
	audit       *auditDispatcher
	metrics     *Metrics
	logger      logging.Logger
	now         func() time.Time
}

// Close flushes queued audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks [Engine.AuditDropped] down by event type.
func (e *Engine) AuditDroppedByType() map[AuditEventType]uint64 {
	if e == nil {
		return map[AuditEventType]uint64{}
	}
	return e.audit.DroppedByType()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Ping checks the Redis backend.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionBackendUnavailable, err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// openSession creates a session for acc and signs a token bound to it.
func (e *Engine) openSession(ctx context.Context, acc *Account, device DeviceInfo) (*LoginResult, error) {
	userAgent := device.UserAgent
	if userAgent == "" {
		userAgent = userAgentFromContext(ctx)
	}
	ip := device.IP
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}

	sess, err := e.sessions.Create(ctx, acc.ID, userAgent, ip, e.config.Session.Lifetime)
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrSessionBackendUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	issuedAt := e.now()
	token, err := e.jwt.Issue(jwt.Claims{
		Subject:   acc.ID,
		Email:     acc.Email,
		Name:      acc.Name,
		Role:      string(acc.Role),
		SessionID: sess.SessionID,
	}, e.config.JWT.BearerTTL)
	if err != nil {
		if _, rerr := e.sessions.Revoke(ctx, acc.ID, sess.SessionID); rerr != nil {
			e.logger.Warn(ctx, "orphan session left after token failure", "session_id", sess.SessionID, "error", rerr)
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	e.metricInc(MetricSessionCreated)

	return &LoginResult{
		Token:     token,
		ExpiresAt: issuedAt.Add(e.config.JWT.BearerTTL),
		SessionID: sess.SessionID,
		Account:   acc,
	}, nil
}

func (e *Engine) loadAccount(ctx context.Context, accountID string) (*Account, error) {
	if accountID == "" {
		return nil, ErrInvalidInput
	}
	acc, err := e.accounts.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, storeError(err)
	}
	return acc, nil
}

func (e *Engine) saveAccount(ctx context.Context, acc *Account) error {
	acc.UpdatedAt = e.now().UTC()
	if err := e.accounts.SaveAccount(ctx, acc); err != nil {
		return storeError(err)
	}
	return nil
}

// revokeAll drops every session of accountID and returns how many existed.
func (e *Engine) revokeAll(ctx context.Context, accountID string) (int, error) {
	n, err := e.sessions.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionBackendUnavailable, err)
	}
	for i := 0; i < n; i++ {
		e.metricInc(MetricSessionRevoked)
	}
	return n, nil
}

func accountStatusError(acc *Account) error {
	switch acc.Status {
	case StatusSuspended:
		return ErrAccountSuspended
	case StatusDeactivated:
		return ErrAccountDeactivated
	default:
		return nil
	}
}

// storeError passes the store's own sentinels through and wraps anything else.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrAccountExists):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
