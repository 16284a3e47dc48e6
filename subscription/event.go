package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType is the gateway's event discriminator.
type EventType string

const (
	EventActivated EventType = "subscription.activated"
	EventCharged   EventType = "subscription.charged"
	EventCompleted EventType = "subscription.completed"
	EventCancelled EventType = "subscription.cancelled"
	EventHalted    EventType = "subscription.halted"
)

var (
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrUnsupportedEvent = errors.New("unsupported webhook event")
)

// Event is one decoded webhook. The concrete type is either [Activation] or
// [Termination].
type Event interface {
	Type() EventType
	SubscriptionID() string
	// OccurredAt is zero when the gateway did not timestamp the event.
	OccurredAt() time.Time
	sealed()
}

// Activation starts or renews a paid period.
type Activation struct {
	Kind      EventType
	ID        string
	PlanID    string
	PeriodEnd time.Time
	CreatedAt time.Time
}

func (e Activation) Type() EventType        { return e.Kind }
func (e Activation) SubscriptionID() string { return e.ID }
func (e Activation) OccurredAt() time.Time  { return e.CreatedAt }
func (Activation) sealed()                  {}

// Termination ends the subscription.
type Termination struct {
	Kind      EventType
	ID        string
	CreatedAt time.Time
}

func (e Termination) Type() EventType        { return e.Kind }
func (e Termination) SubscriptionID() string { return e.ID }
func (e Termination) OccurredAt() time.Time  { return e.CreatedAt }
func (Termination) sealed()                  {}

type envelope struct {
	Event     string `json:"event"`
	CreatedAt *int64 `json:"created_at"`
	Payload   struct {
		Subscription *struct {
			Entity *struct {
				ID         string `json:"id"`
				PlanID     string `json:"plan_id"`
				CurrentEnd *int64 `json:"current_end"`
			} `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

// ParseEvent decodes a webhook body. Unknown event names yield
// ErrUnsupportedEvent; missing required fields yield ErrMalformedEvent.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedEvent)
	}

	kind := EventType(env.Event)
	switch kind {
	case EventActivated, EventCharged, EventCompleted, EventCancelled, EventHalted:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, env.Event)
	}

	if env.Payload.Subscription == nil || env.Payload.Subscription.Entity == nil || env.Payload.Subscription.Entity.ID == "" {
		return nil, fmt.Errorf("%w: missing payload.subscription.entity.id", ErrMalformedEvent)
	}
	entity := env.Payload.Subscription.Entity

	var createdAt time.Time
	if env.CreatedAt != nil && *env.CreatedAt > 0 {
		createdAt = time.Unix(*env.CreatedAt, 0).UTC()
	}

	switch kind {
	case EventActivated, EventCharged:
		if entity.CurrentEnd == nil || *entity.CurrentEnd <= 0 {
			return nil, fmt.Errorf("%w: missing current_end", ErrMalformedEvent)
		}
		return Activation{
			Kind:      kind,
			ID:        entity.ID,
			PlanID:    entity.PlanID,
			PeriodEnd: time.Unix(*entity.CurrentEnd, 0).UTC(),
			CreatedAt: createdAt,
		}, nil
	default:
		return Termination{
			Kind:      kind,
			ID:        entity.ID,
			CreatedAt: createdAt,
		}, nil
	}
}
