package internaldefs

import (
	"sort"
	"strconv"
	"strings"

	"github.com/MrEthical07/shieldauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   shieldauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   shieldauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: shieldauth.MetricLoginSuccess, Name: "shieldauth_login_success_total", Help: "Successful password logins."},
	{ID: shieldauth.MetricLoginFailure, Name: "shieldauth_login_failure_total", Help: "Failed password logins."},
	{ID: shieldauth.MetricLoginRateLimited, Name: "shieldauth_login_rate_limited_total", Help: "Login attempts rejected by the throttle."},
	{ID: shieldauth.MetricFederatedLogin, Name: "shieldauth_federated_login_total", Help: "Logins through an external identity provider."},
	{ID: shieldauth.MetricRegisterSuccess, Name: "shieldauth_register_success_total", Help: "Accounts registered."},
	{ID: shieldauth.MetricRegisterDuplicate, Name: "shieldauth_register_duplicate_total", Help: "Registrations rejected for a taken email."},
	{ID: shieldauth.MetricTOTPRequired, Name: "shieldauth_totp_required_total", Help: "Logins stopped for a missing TOTP code."},
	{ID: shieldauth.MetricTOTPFailure, Name: "shieldauth_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: shieldauth.MetricTOTPSuccess, Name: "shieldauth_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: shieldauth.MetricTOTPEnabled, Name: "shieldauth_totp_enabled_total", Help: "TOTP enrollments confirmed."},
	{ID: shieldauth.MetricTOTPDisabled, Name: "shieldauth_totp_disabled_total", Help: "TOTP factors removed."},
	{ID: shieldauth.MetricOTPIssued, Name: "shieldauth_otp_issued_total", Help: "One-time codes issued."},
	{ID: shieldauth.MetricOTPVerified, Name: "shieldauth_otp_verified_total", Help: "One-time codes verified."},
	{ID: shieldauth.MetricOTPFailure, Name: "shieldauth_otp_failure_total", Help: "Failed one-time code verifications."},
	{ID: shieldauth.MetricNotificationFailure, Name: "shieldauth_notification_failure_total", Help: "Messages the notifier failed to deliver."},
	{ID: shieldauth.MetricRateLimitHit, Name: "shieldauth_rate_limit_hit_total", Help: "Requests denied by any throttle."},
	{ID: shieldauth.MetricPasswordChangeSuccess, Name: "shieldauth_password_change_success_total", Help: "Successful password changes."},
	{ID: shieldauth.MetricPasswordResetSuccess, Name: "shieldauth_password_reset_success_total", Help: "Successful password resets."},
	{ID: shieldauth.MetricPasswordResetFailure, Name: "shieldauth_password_reset_failure_total", Help: "Failed password resets."},
	{ID: shieldauth.MetricSessionCreated, Name: "shieldauth_session_created_total", Help: "Sessions created."},
	{ID: shieldauth.MetricSessionRevoked, Name: "shieldauth_session_revoked_total", Help: "Sessions revoked."},
	{ID: shieldauth.MetricLogout, Name: "shieldauth_logout_total", Help: "Logouts."},
	{ID: shieldauth.MetricAccountDeleted, Name: "shieldauth_account_deleted_total", Help: "Accounts deleted."},
	{ID: shieldauth.MetricAccountSuspended, Name: "shieldauth_account_suspended_total", Help: "Accounts suspended."},
	{ID: shieldauth.MetricAccountReactivated, Name: "shieldauth_account_reactivated_total", Help: "Accounts reactivated."},
	{ID: shieldauth.MetricSubscriptionCreated, Name: "shieldauth_subscription_created_total", Help: "Gateway subscriptions created."},
	{ID: shieldauth.MetricWebhookApplied, Name: "shieldauth_webhook_applied_total", Help: "Webhook events that changed a subscription."},
	{ID: shieldauth.MetricWebhookIgnored, Name: "shieldauth_webhook_ignored_total", Help: "Webhook events acknowledged without a change."},
	{ID: shieldauth.MetricWebhookStale, Name: "shieldauth_webhook_stale_total", Help: "Webhook events older than the last applied one."},
	{ID: shieldauth.MetricWebhookRejected, Name: "shieldauth_webhook_rejected_total", Help: "Webhook events rejected."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: shieldauth.MetricValidateLatency, Name: "shieldauth_validate_latency_seconds", Help: "Validate latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "shieldauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// AuditDroppedByEventName splits AuditDroppedName by the AuditEventLabel
// label.
const (
	AuditDroppedByEventName = "shieldauth_audit_dropped_by_event_total"
	AuditDroppedByEventHelp = "Audit events that never reached the sink, by event type."
	AuditEventLabel         = "event"
)

// SortedAuditDrops returns the event types of drops in a stable order.
func SortedAuditDrops(drops map[shieldauth.AuditEventType]uint64) []shieldauth.AuditEventType {
	out := make([]shieldauth.AuditEventType, 0, len(drops))
	for k := range drops {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BucketCount is the number of histogram buckets including +Inf.
var BucketCount = len(shieldauth.HistogramBounds) + 1

// UpperBounds returns the finite bucket bounds in seconds.
func UpperBounds() []float64 {
	out := make([]float64, len(shieldauth.HistogramBounds))
	for i, d := range shieldauth.HistogramBounds {
		out[i] = d.Seconds()
	}
	return out
}

// BoundSuffix renders bucket i for use in an instrument name, e.g. "0_005"
// or "inf".
func BoundSuffix(i int) string {
	if i >= len(shieldauth.HistogramBounds) {
		return "inf"
	}
	s := strconv.FormatFloat(shieldauth.HistogramBounds[i].Seconds(), 'f', -1, 64)
	return strings.ReplaceAll(s, ".", "_")
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) []uint64 {
	out := make([]uint64, BucketCount)
	copy(out, raw)
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw []uint64) []uint64 {
	out := make([]uint64, len(raw))
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
