package shieldauth

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override what you need; [Builder.Build] validates it.
type Config struct {
	// Environment is "development" or "production". Production forces
	// secure cookies and rejects weak signing setups.
	Environment  string
	JWT          JWTConfig
	Session      SessionConfig
	Password     PasswordConfig
	OTP          OTPConfig
	TOTP         TOTPConfig
	Account      AccountConfig
	Security     SecurityConfig
	Subscription SubscriptionConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	// BearerTTL is the lifetime of issued tokens.
	BearerTTL time.Duration
	// CookieTTL is the Max-Age of the session cookie carrying the token.
	CookieTTL time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix   string
	Lifetime      time.Duration
	TouchInterval time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

/*
====================================
OTP CONFIG
====================================
*/

type OTPConfig struct {
	RedisPrefix      string
	TTL              time.Duration
	EmailDigits      int
	SMSDigits        int
	MaxAttempts      int
	RequestWindow    time.Duration
	MaxPerAddress    int
	MaxPerIP         int
	EnableIPThrottle bool
	EmailSubject     string
}

/*
====================================
TOTP CONFIG
====================================
*/

type TOTPConfig struct {
	Issuer      string
	Digits      int
	Period      int
	Algorithm   string
	Skew        int
	MaxAttempts int
	Cooldown    time.Duration
	// EnforceReplayProtection rejects a code whose time step is not newer
	// than the last accepted one.
	EnforceReplayProtection bool
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

type AccountConfig struct {
	AllowRegistration bool
	DefaultRole       Role
	// AdminEmails receive RoleAdmin when they register. The role is stored
	// on the account; this list is not consulted afterwards.
	AdminEmails []string
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

/*
====================================
SUBSCRIPTION CONFIG
====================================
*/

type SubscriptionConfig struct {
	WebhookSecret []byte
	// GatewayPlans maps account plans to payment-gateway plan ids.
	GatewayPlans map[Plan]string
	// BillingCycles is the number of charges per subscription by plan.
	BillingCycles map[Plan]int
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. Keys and secrets are left
// empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Environment: "development",
		JWT: JWTConfig{
			SigningMethod: "hs256",
			Issuer:        "shieldauth",
			Leeway:        30 * time.Second,
			BearerTTL:     7 * 24 * time.Hour,
			CookieTTL:     5 * 24 * time.Hour,
		},
		Session: SessionConfig{
			RedisPrefix:   "sess",
			Lifetime:      7 * 24 * time.Hour,
			TouchInterval: time.Minute,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		OTP: OTPConfig{
			RedisPrefix:      "otp",
			TTL:              5 * time.Minute,
			EmailDigits:      6,
			SMSDigits:        4,
			MaxAttempts:      5,
			RequestWindow:    10 * time.Minute,
			MaxPerAddress:    5,
			MaxPerIP:         20,
			EnableIPThrottle: true,
			EmailSubject:     "Your verification code",
		},
		TOTP: TOTPConfig{
			Issuer:      "ShieldAuth",
			Digits:      6,
			Period:      30,
			Algorithm:   "SHA1",
			Skew:        1,
			MaxAttempts: 5,
			Cooldown:    time.Minute,

			EnforceReplayProtection: true,
		},
		Account: AccountConfig{
			AllowRegistration: true,
			DefaultRole:       RoleCreator,
		},
		Security: SecurityConfig{
			EnableIPThrottle:      true,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Subscription: SubscriptionConfig{
			GatewayPlans: map[Plan]string{},
			BillingCycles: map[Plan]int{
				PlanMonthly: 12,
				PlanYearly:  1,
			},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

// Production reports whether the engine runs with production hardening.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Subscription.WebhookSecret = cloneBytes(cfg.Subscription.WebhookSecret)
	out.Account.AdminEmails = append([]string(nil), cfg.Account.AdminEmails...)
	out.Subscription.GatewayPlans = make(map[Plan]string, len(cfg.Subscription.GatewayPlans))
	for k, v := range cfg.Subscription.GatewayPlans {
		out.Subscription.GatewayPlans[k] = v
	}
	out.Subscription.BillingCycles = make(map[Plan]int, len(cfg.Subscription.BillingCycles))
	for k, v := range cfg.Subscription.BillingCycles {
		out.Subscription.BillingCycles[k] = v
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Environment) {
	case "development", "production", "test":
	default:
		return fmt.Errorf("unknown Environment %q", c.Environment)
	}

	// JWT
	if c.JWT.BearerTTL <= 0 {
		return errors.New("JWT BearerTTL must be > 0")
	}
	if c.JWT.CookieTTL <= 0 {
		return errors.New("JWT CookieTTL must be > 0")
	}
	if c.JWT.CookieTTL > c.JWT.BearerTTL {
		return errors.New("JWT CookieTTL must not exceed BearerTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if c.Session.Lifetime < c.JWT.BearerTTL {
		return errors.New("Session Lifetime must cover JWT BearerTTL")
	}
	if c.Session.TouchInterval < 0 {
		return errors.New("Session TouchInterval must be >= 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}

	// OTP
	if c.OTP.TTL <= 0 || c.OTP.TTL > 15*time.Minute {
		return errors.New("OTP TTL must be between 0 and 15m")
	}
	if c.OTP.EmailDigits < 6 || c.OTP.EmailDigits > 10 {
		return errors.New("OTP EmailDigits must be between 6 and 10")
	}
	if c.OTP.SMSDigits < 4 || c.OTP.SMSDigits > 10 {
		return errors.New("OTP SMSDigits must be between 4 and 10")
	}
	if c.OTP.MaxAttempts <= 0 || c.OTP.MaxAttempts > 5 {
		return errors.New("OTP MaxAttempts must be between 1 and 5")
	}
	if c.OTP.RequestWindow <= 0 || c.OTP.MaxPerAddress <= 0 {
		return errors.New("OTP request throttle must be configured")
	}
	if c.OTP.EnableIPThrottle && c.OTP.MaxPerIP <= 0 {
		return errors.New("OTP MaxPerIP must be > 0 when IP throttle is enabled")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be between 0 and 2")
	}
	if _, err := hmacFunc(c.TOTP.Algorithm); err != nil {
		return err
	}
	if c.TOTP.MaxAttempts <= 0 || c.TOTP.Cooldown <= 0 {
		return errors.New("TOTP throttle must be configured")
	}

	// Account
	if !c.Account.DefaultRole.Valid() {
		return errors.New("Account DefaultRole is invalid")
	}
	for _, email := range c.Account.AdminEmails {
		if _, err := mail.ParseAddress(email); err != nil {
			return fmt.Errorf("Account AdminEmails contains invalid address %q", email)
		}
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("LoginCooldownDuration must be > 0")
	}

	// Subscription
	for plan := range c.Subscription.GatewayPlans {
		if plan != PlanMonthly && plan != PlanYearly {
			return fmt.Errorf("Subscription GatewayPlans has unsupported plan %q", plan)
		}
	}
	for plan, n := range c.Subscription.BillingCycles {
		if n <= 0 {
			return fmt.Errorf("Subscription BillingCycles for %q must be > 0", plan)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Production() {
		if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
			return errors.New("production requires a JWT secret of at least 32 bytes")
		}
		if len(c.Subscription.WebhookSecret) == 0 {
			return errors.New("production requires a webhook secret")
		}
	}

	return nil
}
