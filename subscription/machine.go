package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle position of a subscription.
type State string

const (
	StateNone    State = "none"
	StateActive  State = "active"
	StateExpired State = "expired"
)

// Plan is the account-facing plan name.
type Plan string

const (
	PlanNone    Plan = ""
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
	PlanTrial   Plan = "trial"
	PlanExpired Plan = "expired"
)

var (
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrConcurrentUpdate    = errors.New("subscription concurrently modified")
)

const maxApplyAttempts = 3

// Record is the persisted subscription state of one account.
type Record struct {
	AccountID      string
	SubscriptionID string
	Plan           Plan
	State          State
	ExpiresAt      time.Time
	LastEventAt    time.Time
}

// Store persists subscription records.
type Store interface {
	// FindBySubscriptionID returns ErrUnknownSubscription when no account
	// references id.
	FindBySubscriptionID(ctx context.Context, id string) (*Record, error)
	// FindByAccountID returns ErrUnknownSubscription when the account does
	// not exist. The record may carry an empty SubscriptionID.
	FindByAccountID(ctx context.Context, accountID string) (*Record, error)
	// ApplySubscriptionTransition writes next only if the stored row still
	// matches prev (subscription id, state and last event time). It reports
	// whether the write happened.
	ApplySubscriptionTransition(ctx context.Context, prev, next *Record) (bool, error)
}

// Outcome describes what Handle did with an authentic event.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	// OutcomeUnchanged means the event was already reflected in the record.
	OutcomeUnchanged
	// OutcomeStale means a newer event has already been applied.
	OutcomeStale
	// OutcomeIgnored means the event type is not handled.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeStale:
		return "stale"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Observer is notified after every Handle call that passed the signature
// check. ev is nil when the body could not be decoded.
type Observer func(ctx context.Context, ev Event, outcome Outcome, err error)

// Machine applies webhook events to subscription records.
type Machine struct {
	secret   []byte
	store    Store
	plans    map[string]Plan
	now      func() time.Time
	locks    *keyLocks
	observer Observer
}

// NewMachine creates a Machine that authenticates events with secret. With
// an empty secret every webhook is rejected; ExpireTrial still works.
func NewMachine(secret []byte, store Store) (*Machine, error) {
	if store == nil {
		return nil, errors.New("subscription store is required")
	}
	return &Machine{
		secret: append([]byte(nil), secret...),
		store:  store,
		plans:  map[string]Plan{},
		now:    time.Now,
		locks:  newKeyLocks(),
	}, nil
}

// WithPlans maps gateway plan ids to account plans.
func (m *Machine) WithPlans(plans map[string]Plan) *Machine {
	for id, p := range plans {
		m.plans[id] = p
	}
	return m
}

// WithClock replaces the time source.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	if now != nil {
		m.now = now
	}
	return m
}

// WithObserver installs an observer for authenticated events.
func (m *Machine) WithObserver(o Observer) *Machine {
	m.observer = o
	return m
}

// Handle authenticates, decodes and applies one webhook body.
//
// Unsupported event types are acknowledged with OutcomeIgnored and a nil
// error. Nothing is read or written before the signature has been verified.
func (m *Machine) Handle(ctx context.Context, body []byte, signature string) (Outcome, error) {
	if err := VerifySignature(m.secret, body, signature); err != nil {
		return OutcomeIgnored, err
	}

	ev, err := ParseEvent(body)
	if err != nil {
		if errors.Is(err, ErrUnsupportedEvent) {
			m.observe(ctx, nil, OutcomeIgnored, nil)
			return OutcomeIgnored, nil
		}
		m.observe(ctx, nil, OutcomeIgnored, err)
		return OutcomeIgnored, err
	}

	outcome, err := m.Apply(ctx, ev)
	m.observe(ctx, ev, outcome, err)
	return outcome, err
}

// Apply runs one decoded event through the state machine. Calls for the same
// subscription id are serialised in-process; the store's conditional write
// covers other processes.
func (m *Machine) Apply(ctx context.Context, ev Event) (Outcome, error) {
	unlock := m.locks.lock(ev.SubscriptionID())
	defer unlock()

	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		rec, err := m.store.FindBySubscriptionID(ctx, ev.SubscriptionID())
		if err != nil {
			return OutcomeIgnored, err
		}
		if rec == nil {
			return OutcomeIgnored, ErrUnknownSubscription
		}

		next, outcome := m.transition(rec, ev)
		if outcome != OutcomeApplied {
			return outcome, nil
		}

		ok, err := m.store.ApplySubscriptionTransition(ctx, rec, next)
		if err != nil {
			return OutcomeIgnored, fmt.Errorf("apply %s: %w", ev.Type(), err)
		}
		if ok {
			return OutcomeApplied, nil
		}
	}

	return OutcomeIgnored, ErrConcurrentUpdate
}

// ExpireTrial moves an unconverted account to the expired plan. Accounts
// holding an active paid subscription are left alone and reported as
// OutcomeIgnored. LastEventAt is not touched: it orders gateway events only.
func (m *Machine) ExpireTrial(ctx context.Context, accountID string) (Outcome, error) {
	unlock := m.locks.lock("account:" + accountID)
	defer unlock()

	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		rec, err := m.store.FindByAccountID(ctx, accountID)
		if err != nil {
			return OutcomeIgnored, err
		}
		if rec == nil {
			return OutcomeIgnored, ErrUnknownSubscription
		}

		switch {
		case rec.State == StateActive:
			return OutcomeIgnored, nil
		case rec.State == StateExpired && rec.Plan == PlanExpired:
			return OutcomeUnchanged, nil
		}

		next := *rec
		next.State = StateExpired
		next.Plan = PlanExpired
		next.ExpiresAt = m.now().UTC()

		ok, err := m.store.ApplySubscriptionTransition(ctx, rec, &next)
		if err != nil {
			return OutcomeIgnored, fmt.Errorf("expire trial: %w", err)
		}
		if ok {
			return OutcomeApplied, nil
		}
	}

	return OutcomeIgnored, ErrConcurrentUpdate
}

func (m *Machine) transition(rec *Record, ev Event) (*Record, Outcome) {
	occurred := ev.OccurredAt()
	if !occurred.IsZero() && !rec.LastEventAt.IsZero() && occurred.Before(rec.LastEventAt) {
		return nil, OutcomeStale
	}

	next := *rec
	if occurred.After(next.LastEventAt) {
		next.LastEventAt = occurred
	}

	switch e := ev.(type) {
	case Activation:
		next.State = StateActive
		next.ExpiresAt = e.PeriodEnd.UTC()
		next.Plan = m.planFor(e.PlanID, rec.Plan)
	case Termination:
		if rec.State != StateExpired {
			next.State = StateExpired
			next.ExpiresAt = m.now().UTC()
		}
		next.Plan = PlanExpired
	default:
		return nil, OutcomeIgnored
	}

	if sameRecord(rec, &next) {
		return nil, OutcomeUnchanged
	}
	return &next, OutcomeApplied
}

func (m *Machine) planFor(gatewayPlanID string, current Plan) Plan {
	if p, ok := m.plans[gatewayPlanID]; ok && gatewayPlanID != "" {
		return p
	}
	if current == PlanMonthly {
		return PlanMonthly
	}
	return PlanYearly
}

func (m *Machine) observe(ctx context.Context, ev Event, outcome Outcome, err error) {
	if m.observer != nil {
		m.observer(ctx, ev, outcome, err)
	}
}

func sameRecord(a, b *Record) bool {
	return a.Plan == b.Plan &&
		a.State == b.State &&
		a.ExpiresAt.Equal(b.ExpiresAt) &&
		a.LastEventAt.Equal(b.LastEventAt)
}
