package shieldauth

import (
	"context"
	"time"

	"github.com/MrEthical07/shieldauth/session"
	"github.com/MrEthical07/shieldauth/subscription"
)

// Role is assigned when an account is created and stored on the account.
type Role string

const (
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCreator || r == RoleAdmin
}

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive      Status = "active"
	StatusSuspended   Status = "suspended"
	StatusDeactivated Status = "deactivated"
)

type (
	Plan              = subscription.Plan
	SubscriptionState = subscription.State
)

const (
	PlanNone    = subscription.PlanNone
	PlanMonthly = subscription.PlanMonthly
	PlanYearly  = subscription.PlanYearly
	PlanTrial   = subscription.PlanTrial
	PlanExpired = subscription.PlanExpired

	SubscriptionNone    = subscription.StateNone
	SubscriptionActive  = subscription.StateActive
	SubscriptionExpired = subscription.StateExpired
)

// Subscription is the billing state embedded in an [Account]. Plan, State,
// ExpiresAt and LastEventAt are written only through subscription.Store;
// ExternalID only through [AccountStore.SetSubscriptionID].
type Subscription struct {
	Plan        Plan
	ExternalID  string
	State       SubscriptionState
	ExpiresAt   time.Time
	LastEventAt time.Time
}

// Account is a registered user.
type Account struct {
	ID    string
	Email string
	Name  string
	Phone string
	// PasswordHash is empty for accounts created through federated login.
	PasswordHash string
	Role         Role
	Status       Status
	// TOTPSecret is base32 without padding. It is set while enrollment is
	// pending and kept once TOTPEnabled is true.
	TOTPSecret  string
	TOTPEnabled bool
	// TOTPLastCounter is the time step of the last accepted code.
	TOTPLastCounter int64
	Subscription    Subscription
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AccountStore persists accounts. Lookups return ErrAccountNotFound when no
// row matches; CreateAccount returns ErrAccountExists for a taken email.
//
// The engine also needs a subscription.Store over the same rows. Either the
// AccountStore implements it or one is supplied with
// [Builder.WithSubscriptionStore].
type AccountStore interface {
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	FindAccountByID(ctx context.Context, id string) (*Account, error)
	FindAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) error
	// SaveAccount writes profile, credential, status and TOTP secret fields.
	// It must not write the Subscription or TOTPLastCounter fields.
	SaveAccount(ctx context.Context, account *Account) error
	// SetSubscriptionID links a gateway subscription to the account.
	SetSubscriptionID(ctx context.Context, accountID, subscriptionID string) error
	// UpdateTOTPLastUsedCounter stores counter only if it is greater than the
	// stored one and reports whether it did.
	UpdateTOTPLastUsedCounter(ctx context.Context, accountID string, counter int64) (bool, error)
	DeleteAccount(ctx context.Context, id string) error
}

// Notifier delivers out-of-band messages.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, phone, body string) error
}

// PaymentGateway creates recurring subscriptions with the payment provider.
type PaymentGateway interface {
	// CreateSubscription returns the gateway's subscription id.
	CreateSubscription(ctx context.Context, planID string, totalCount int) (string, error)
}

// Channel is the delivery channel of a one-time code.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// OTPStore holds one-time code challenges. Implementations must make Verify
// a compare-and-delete per address.
type OTPStore interface {
	// Issue creates a code for address, replacing any live challenge.
	Issue(ctx context.Context, address string, channel Channel, digits int, ttl time.Duration) (string, error)
	// Verify consumes the challenge on success. Failures map to ErrOTPNotFound,
	// ErrOTPExpired, ErrOTPMismatch or ErrOTPAttemptsExceeded.
	Verify(ctx context.Context, address, code string) error
}

// DeviceInfo describes the client creating a session.
type DeviceInfo struct {
	UserAgent string
	IP        string
}

// RegisterInput is the input for [Engine.Register].
type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Phone    string
}

// FederatedIdentity is an identity asserted by an external provider after
// it has verified the email address.
type FederatedIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// LoginResult is returned by every flow that opens a session.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	SessionID string
	Account   *Account
}

// AuthResult is returned by [Engine.Validate].
type AuthResult struct {
	AccountID string
	Email     string
	Name      string
	Role      Role
	SessionID string
	ExpiresAt time.Time
}

// SessionInfo is one entry of [Engine.ListSessions].
type SessionInfo struct {
	ID         string
	Device     string
	IP         string
	CreatedAt  time.Time
	LastActive time.Time
	ExpiresAt  time.Time
	Current    bool
}

// TOTPEnrollment is returned by [Engine.EnrollTOTP]. The secret is shown to
// the user once.
type TOTPEnrollment struct {
	Secret string
	URI    string
}

func sessionInfo(s *session.Session, currentSID string) SessionInfo {
	return SessionInfo{
		ID:         s.SessionID,
		Device:     s.Device,
		IP:         s.IP,
		CreatedAt:  time.Unix(s.CreatedAt, 0).UTC(),
		LastActive: time.Unix(s.LastActive, 0).UTC(),
		ExpiresAt:  time.Unix(s.ExpiresAt, 0).UTC(),
		Current:    s.SessionID == currentSID,
	}
}
