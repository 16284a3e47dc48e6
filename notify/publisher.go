package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher queues notifications on RabbitMQ. Messages are persistent and
// routed through the default exchange to the queue name.
type Publisher struct {
	mu    sync.Mutex
	ch    amqpPublisher
	queue string
	now   func() time.Time

	closers []func() error
}

// DialPublisher connects to url and declares queue as durable.
func DialPublisher(url, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p := newPublisher(ch, queue)
	p.closers = []func() error{ch.Close, conn.Close}
	return p, nil
}

func newPublisher(ch amqpPublisher, queue string) *Publisher {
	return &Publisher{ch: ch, queue: queue, now: time.Now}
}

func (p *Publisher) SendEmail(ctx context.Context, to, subject, body string) error {
	return p.Publish(ctx, Message{Channel: ChannelEmail, To: to, Subject: subject, Body: body})
}

func (p *Publisher) SendSMS(ctx context.Context, phone, body string) error {
	return p.Publish(ctx, Message{Channel: ChannelSMS, To: phone, Body: body})
}

// Publish validates and queues msg.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	msg.QueuedAt = p.now().UTC()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.QueuedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection opened by DialPublisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}
