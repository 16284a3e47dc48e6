package shieldauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/shieldauth/internal/limiters"
	"github.com/MrEthical07/shieldauth/internal/logging"
	"github.com/MrEthical07/shieldauth/internal/rate"
	"github.com/MrEthical07/shieldauth/internal/stores"
	"github.com/MrEthical07/shieldauth/jwt"
	"github.com/MrEthical07/shieldauth/password"
	"github.com/MrEthical07/shieldauth/session"
	"github.com/MrEthical07/shieldauth/subscription"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure it once during startup; Build may
// be called a single time.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts      AccountStore
	notifier      Notifier
	gateway       PaymentGateway
	subscriptions subscription.Store
	otpStore      OTPStore
	auditSink     AuditSink
	logger        *slog.Logger
	now           func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the persistence backend. When the store also
// implements subscription.Store it owns subscription writes as well.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithPaymentGateway(g PaymentGateway) *Builder {
	b.gateway = g
	return b
}

func (b *Builder) WithSubscriptionStore(s subscription.Store) *Builder {
	b.subscriptions = s
	return b
}

// WithOTPStore replaces the Redis challenge store.
func (b *Builder) WithOTPStore(s OTPStore) *Builder {
	b.otpStore = s
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces the engine's time source. Tests only.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	var logger logging.Logger = logging.Nop()
	if b.logger != nil {
		logger = logging.NewSlogLogger(b.logger)
	}

	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
		notifier: b.notifier,
		gateway:  b.gateway,
		logger:   logger.With("component", "shieldauth"),
		now:      now,
	}

	// -------- SESSIONS --------
	engine.sessions = session.NewStore(b.redis, session.Config{
		Prefix:        cfg.Session.RedisPrefix,
		TouchInterval: cfg.Session.TouchInterval,
	}).WithClock(now)

	// -------- OTP --------
	engine.otp = b.otpStore
	if engine.otp == nil {
		engine.otp = newRedisOTPStore(
			stores.NewOTPStore(b.redis, cfg.OTP.RedisPrefix).WithClock(now),
			cfg.OTP.MaxAttempts,
		)
	}
	engine.otpLimiter = limiters.NewOTPRequestLimiter(b.redis, limiters.OTPRequestConfig{
		EnableIPThrottle: cfg.OTP.EnableIPThrottle,
		Window:           cfg.OTP.RequestWindow,
		MaxPerAddress:    cfg.OTP.MaxPerAddress,
		MaxPerIP:         cfg.OTP.MaxPerIP,
	})

	// -------- THROTTLING --------
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:      cfg.Security.EnableIPThrottle,
		MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
	})
	engine.totpLimiter = limiters.NewTOTPLimiter(b.redis, limiters.TOTPLimiterConfig{
		MaxAttempts: cfg.TOTP.MaxAttempts,
		Cooldown:    cfg.TOTP.Cooldown,
	})
	engine.totp = newTOTPManager(cfg.TOTP)

	// -------- CREDENTIALS --------
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwt = jm.WithClock(now)

	// -------- SUBSCRIPTIONS --------
	store := b.subscriptions
	if store == nil {
		s, ok := b.accounts.(subscription.Store)
		if !ok {
			return nil, errors.New("subscription store required: account store does not implement subscription.Store")
		}
		store = s
	}
	machine, err := subscription.NewMachine(cfg.Subscription.WebhookSecret, store)
	if err != nil {
		return nil, err
	}
	plans := make(map[string]Plan, len(cfg.Subscription.GatewayPlans))
	for plan, id := range cfg.Subscription.GatewayPlans {
		plans[id] = plan
	}
	engine.machine = machine.WithPlans(plans).WithClock(now).WithObserver(engine.observeWebhook)

	// -------- OBSERVABILITY --------
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
