package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// DefaultQueue is the queue both the publisher and consumer declare.
const DefaultQueue = "shieldauth.notifications"

var (
	ErrUnknownChannel = errors.New("notify: unknown channel")
	ErrNoRecipient    = errors.New("notify: missing recipient")
	ErrNotConfigured  = errors.New("notify: channel not configured")
)

// Message is the queued form of a notification.
type Message struct {
	Channel  string    `json:"channel"`
	To       string    `json:"to"`
	Subject  string    `json:"subject,omitempty"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

func (m Message) validate() error {
	if m.To == "" {
		return ErrNoRecipient
	}
	switch m.Channel {
	case ChannelEmail, ChannelSMS:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChannel, m.Channel)
	}
}

func decodeMessage(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := m.validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
