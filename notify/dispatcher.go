package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type twilioMessages interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Dispatcher sends messages through the configured providers. A nil
// provider disables its channel. Dispatcher also satisfies
// shieldauth.Notifier for deployments that send inline.
type Dispatcher struct {
	emails    resendEmails
	emailFrom string
	sms       twilioMessages
	smsFrom   string
}

type DispatcherConfig struct {
	ResendAPIKey string
	EmailFrom    string

	TwilioAccountSID string
	TwilioAuthToken  string
	SMSFrom          string
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{emailFrom: cfg.EmailFrom, smsFrom: cfg.SMSFrom}
	if cfg.ResendAPIKey != "" {
		d.emails = resend.NewClient(cfg.ResendAPIKey).Emails
	}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioAccountSID,
			Password: cfg.TwilioAuthToken,
		})
		d.sms = client.Api
	}
	return d
}

func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	switch msg.Channel {
	case ChannelEmail:
		return d.SendEmail(ctx, msg.To, msg.Subject, msg.Body)
	default:
		return d.SendSMS(ctx, msg.To, msg.Body)
	}
}

func (d *Dispatcher) SendEmail(ctx context.Context, to, subject, body string) error {
	if d.emails == nil {
		return fmt.Errorf("%w: email", ErrNotConfigured)
	}
	_, err := d.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    d.emailFrom,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// SendSMS prefixes bare ten-digit numbers with the +91 country code.
func (d *Dispatcher) SendSMS(_ context.Context, phone, body string) error {
	if d.sms == nil {
		return fmt.Errorf("%w: sms", ErrNotConfigured)
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(e164(phone))
	params.SetFrom(e164(d.smsFrom))
	params.SetBody(body)
	if _, err := d.sms.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio: %w", err)
	}
	return nil
}

func e164(phone string) string {
	if len(phone) == 10 && phone[0] != '+' {
		return "+91" + phone
	}
	return phone
}
