package notify

import (
	"context"
	"log/slog"
)

// LogNotifier logs messages instead of sending them. Bodies carry one-time
// codes, so they are only written at debug level.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	n.logger.InfoContext(ctx, "email queued", "to", to, "subject", subject)
	n.logger.DebugContext(ctx, "email body", "to", to, "body", body)
	return nil
}

func (n *LogNotifier) SendSMS(ctx context.Context, phone, body string) error {
	n.logger.InfoContext(ctx, "sms queued", "to", phone)
	n.logger.DebugContext(ctx, "sms body", "to", phone, "body", body)
	return nil
}
