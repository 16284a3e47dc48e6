// Package config loads process configuration for the shieldauth binaries
// from the environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/shieldauth"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Server is the configuration of cmd/shieldauthd.
type Server struct {
	Environment string `env:"SHIELDAUTH_ENV"        envDefault:"development"`
	HTTPAddr    string `env:"SHIELDAUTH_HTTP_ADDR"  envDefault:":8080"`
	BaseURL     string `env:"SHIELDAUTH_BASE_URL"   envDefault:"http://localhost:8080"`
	LogFormat   string `env:"SHIELDAUTH_LOG_FORMAT" envDefault:"json"`
	LogLevel    string `env:"SHIELDAUTH_LOG_LEVEL"  envDefault:"info"`

	DatabaseURL   string `env:"DATABASE_URL,required"`
	RunMigrations bool   `env:"SHIELDAUTH_MIGRATE" envDefault:"true"`
	RedisAddr     string `env:"REDIS_ADDR,required"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTIssuer string        `env:"JWT_ISSUER"  envDefault:"shieldauth"`
	BearerTTL time.Duration `env:"JWT_TTL"     envDefault:"168h"`
	CookieTTL time.Duration `env:"COOKIE_TTL"  envDefault:"120h"`

	AdminEmails []string `env:"ADMIN_EMAILS" envSeparator:","`
	CronSecret  string   `env:"CRON_SECRET"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`

	RazorpayKeyID         string `env:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret     string `env:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET,required"`
	RazorpayMonthlyPlan   string `env:"RAZORPAY_PLAN_MONTHLY"`
	RazorpayYearlyPlan    string `env:"RAZORPAY_PLAN_YEARLY"`

	// AMQPURL switches notifications from inline delivery to the queue.
	AMQPURL   string `env:"AMQP_URL"`
	AMQPQueue string `env:"AMQP_QUEUE" envDefault:"shieldauth.notifications"`

	Notify Notify

	AuditEnabled bool `env:"SHIELDAUTH_AUDIT" envDefault:"true"`
}

// Notify configures the outbound providers. Both binaries read it.
type Notify struct {
	ResendAPIKey     string `env:"RESEND_API_KEY"`
	EmailFrom        string `env:"RESEND_FROM_EMAIL" envDefault:"ShieldAuth <onboarding@resend.dev>"`
	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `env:"TWILIO_PHONE_NUMBER"`
}

// Notifier is the configuration of cmd/shieldauth-notifier.
type Notifier struct {
	AMQPURL   string `env:"AMQP_URL,required"`
	AMQPQueue string `env:"AMQP_QUEUE" envDefault:"shieldauth.notifications"`
	LogFormat string `env:"SHIELDAUTH_LOG_FORMAT" envDefault:"json"`
	LogLevel  string `env:"SHIELDAUTH_LOG_LEVEL"  envDefault:"info"`
	Notify    Notify
}

// ParseEnv parses environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv loads files into the environment without overriding variables
// that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadServer reads .env (when present) and parses Server.
func LoadServer() (Server, error) {
	var cfg Server
	if err := LoadDotEnv(); err != nil {
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadNotifier() (Notifier, error) {
	var cfg Notifier
	if err := LoadDotEnv(); err != nil {
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Production reports whether SHIELDAUTH_ENV is production.
func (s Server) Production() bool {
	return strings.EqualFold(s.Environment, "production")
}

// Engine maps the process configuration onto the engine defaults.
func (s Server) Engine() shieldauth.Config {
	cfg := shieldauth.DefaultConfig()
	cfg.Environment = s.Environment
	cfg.JWT.PrivateKey = []byte(s.JWTSecret)
	cfg.JWT.Issuer = s.JWTIssuer
	cfg.JWT.BearerTTL = s.BearerTTL
	cfg.JWT.CookieTTL = s.CookieTTL
	cfg.Account.AdminEmails = trimCSV(s.AdminEmails)
	cfg.Audit.Enabled = s.AuditEnabled
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	cfg.Subscription.WebhookSecret = []byte(s.RazorpayWebhookSecret)
	if s.RazorpayMonthlyPlan != "" {
		cfg.Subscription.GatewayPlans[shieldauth.PlanMonthly] = s.RazorpayMonthlyPlan
	}
	if s.RazorpayYearlyPlan != "" {
		cfg.Subscription.GatewayPlans[shieldauth.PlanYearly] = s.RazorpayYearlyPlan
	}
	return cfg
}

func trimCSV(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
