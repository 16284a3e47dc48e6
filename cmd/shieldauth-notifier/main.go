// Command shieldauth-notifier drains the notification queue and sends
// email through Resend and SMS through Twilio.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/shieldauth/internal/config"
	"github.com/MrEthical07/shieldauth/internal/logging"
	"github.com/MrEthical07/shieldauth/notify"
)

func main() {
	cfg, err := config.LoadNotifier()
	if err != nil {
		fmt.Fprintf(os.Stderr, "shieldauth-notifier: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel).Slog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		ResendAPIKey:     cfg.Notify.ResendAPIKey,
		EmailFrom:        cfg.Notify.EmailFrom,
		TwilioAccountSID: cfg.Notify.TwilioAccountSID,
		TwilioAuthToken:  cfg.Notify.TwilioAuthToken,
		SMSFrom:          cfg.Notify.TwilioFrom,
	})

	logger.Info("consuming", "queue", cfg.AMQPQueue)
	err = notify.NewConsumer(cfg.AMQPURL, cfg.AMQPQueue, dispatcher, logger).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
}
