// Command shieldauthd serves the shieldauth HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/shieldauth"
	"github.com/MrEthical07/shieldauth/internal/config"
	"github.com/MrEthical07/shieldauth/internal/httpapi"
	"github.com/MrEthical07/shieldauth/internal/logging"
	promexport "github.com/MrEthical07/shieldauth/metrics/export/prometheus"
	"github.com/MrEthical07/shieldauth/middleware"
	"github.com/MrEthical07/shieldauth/notify"
	"github.com/MrEthical07/shieldauth/payment/razorpay"
	"github.com/MrEthical07/shieldauth/storage/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shieldauthd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel).Slog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.RunMigrations {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	notifier, closeNotifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	builder := shieldauth.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithAccountStore(postgres.NewStore(db)).
		WithNotifier(notifier).
		WithAuditSink(shieldauth.NewSlogSink(logger)).
		WithLogger(logger)

	if cfg.RazorpayKeyID != "" {
		gw, err := razorpay.NewGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
		if err != nil {
			return err
		}
		builder.WithPaymentGateway(gw)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	prometheus.MustRegister(promexport.NewExporter(engine))

	apiCfg := httpapi.Config{
		Cookie: middleware.SessionCookie{
			Name:   middleware.DefaultCookieName,
			Secure: cfg.Production(),
			MaxAge: cfg.CookieTTL,
		},
		Logger:         logger,
		CronSecret:     cfg.CronSecret,
		Metrics:        promhttp.Handler(),
		AllowedOrigins: cfg.CORSOrigins,
	}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		apiCfg.Google = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  callbackURL(cfg),
			Scopes:       []string{"email", "profile"},
		}
		apiCfg.LoginRedirect = cfg.BaseURL + "/dashboard"
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewServer(engine, apiCfg).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildNotifier prefers the queue, then inline providers, then logging.
func buildNotifier(cfg config.Server, logger *slog.Logger) (shieldauth.Notifier, func(), error) {
	if cfg.AMQPURL != "" {
		pub, err := notify.DialPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, nil, err
		}
		return pub, func() { _ = pub.Close() }, nil
	}
	if cfg.Notify.ResendAPIKey != "" || cfg.Notify.TwilioAccountSID != "" {
		return notify.NewDispatcher(dispatcherConfig(cfg.Notify)), func() {}, nil
	}
	logger.Warn("no notification provider configured, codes are only logged")
	return notify.NewLogNotifier(logger), func() {}, nil
}

func dispatcherConfig(n config.Notify) notify.DispatcherConfig {
	return notify.DispatcherConfig{
		ResendAPIKey:     n.ResendAPIKey,
		EmailFrom:        n.EmailFrom,
		TwilioAccountSID: n.TwilioAccountSID,
		TwilioAuthToken:  n.TwilioAuthToken,
		SMSFrom:          n.TwilioFrom,
	}
}

func callbackURL(cfg config.Server) string {
	if cfg.GoogleCallbackURL != "" {
		return cfg.GoogleCallbackURL
	}
	return cfg.BaseURL + "/api/auth/google/callback"
}
