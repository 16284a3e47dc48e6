package shieldauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/shieldauth/subscription"
)

// CreateSubscription opens a recurring subscription with the payment gateway
// and records its id on the account. The account's state is unchanged until
// the gateway's activation webhook arrives.
func (e *Engine) CreateSubscription(ctx context.Context, accountID string, plan Plan) (string, error) {
	if e.gateway == nil {
		return "", ErrGatewayNotEnabled
	}
	if plan != PlanMonthly && plan != PlanYearly {
		return "", ErrInvalidPlan
	}
	planID := e.config.Subscription.GatewayPlans[plan]
	if planID == "" {
		return "", ErrGatewayNotEnabled
	}
	cycles := e.config.Subscription.BillingCycles[plan]
	if cycles <= 0 {
		cycles = 1
	}

	acc, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return "", err
	}

	externalID, err := e.gateway.CreateSubscription(ctx, planID, cycles)
	if err != nil {
		e.logger.Error(ctx, "gateway subscription create failed", "account_id", acc.ID, "plan", string(plan), "error", err)
		return "", fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	if err := e.accounts.SetSubscriptionID(ctx, acc.ID, externalID); err != nil {
		e.logger.Error(ctx, "gateway subscription not linked", "account_id", acc.ID, "subscription_id", externalID, "error", err)
		return "", storeError(err)
	}

	e.metricInc(MetricSubscriptionCreated)
	e.emitAudit(ctx, AuditEventSubscriptionCreated, true, acc.ID, "", nil, func() map[string]string {
		return map[string]string{
			"plan":            string(plan),
			"subscription_id": externalID,
		}
	})
	return externalID, nil
}

// ExpireTrial ends the trial of the account registered under email. An
// account with an active paid subscription is left unchanged.
func (e *Engine) ExpireTrial(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrInvalidInput
	}
	acc, err := e.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		return storeError(err)
	}

	outcome, err := e.machine.ExpireTrial(ctx, acc.ID)
	if err != nil {
		if errors.Is(err, subscription.ErrUnknownSubscription) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}

	e.emitAudit(ctx, AuditEventSubscriptionTrialEnds, true, acc.ID, "", nil, func() map[string]string {
		return map[string]string{"outcome": outcome.String()}
	})
	return nil
}

// HandleWebhook authenticates and applies one payment-gateway webhook. body
// must be the raw request body.
func (e *Engine) HandleWebhook(ctx context.Context, body []byte, signature string) (subscription.Outcome, error) {
	if len(e.config.Subscription.WebhookSecret) == 0 {
		return subscription.OutcomeIgnored, ErrGatewayNotEnabled
	}

	outcome, err := e.machine.Handle(ctx, body, signature)
	if errors.Is(err, subscription.ErrInvalidSignature) {
		e.metricInc(MetricWebhookRejected)
		e.logger.Warn(ctx, "webhook signature rejected", "body_bytes", len(body))
		e.emitAudit(ctx, AuditEventSubscriptionWebhook, false, "", "", err, nil)
	}
	return outcome, err
}

// observeWebhook is the machine's observer for authenticated events.
func (e *Engine) observeWebhook(ctx context.Context, ev subscription.Event, outcome subscription.Outcome, err error) {
	switch {
	case err != nil:
		e.metricInc(MetricWebhookRejected)
	case outcome == subscription.OutcomeApplied:
		e.metricInc(MetricWebhookApplied)
	case outcome == subscription.OutcomeStale:
		e.metricInc(MetricWebhookStale)
	default:
		e.metricInc(MetricWebhookIgnored)
	}

	meta := map[string]string{"outcome": outcome.String()}
	if ev != nil {
		meta["event"] = string(ev.Type())
		meta["subscription_id"] = ev.SubscriptionID()
	}

	if err != nil {
		e.logger.Warn(ctx, "webhook not applied", "outcome", outcome.String(), "error", err)
	}
	e.emitAudit(ctx, AuditEventSubscriptionWebhook, err == nil, "", "", err, func() map[string]string {
		return meta
	})
}
