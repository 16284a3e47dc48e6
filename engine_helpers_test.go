package shieldauth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/shieldauth/subscription"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_760_000_000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memAccountStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	findErr  error

	saveCalls int
	// beforeSave runs once, unlocked, at the start of the next SaveAccount.
	beforeSave func()
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{accounts: map[string]Account{}}
}

func (m *memAccountStore) FindAccountByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, acc := range m.accounts {
		if acc.Email == email {
			out := acc
			return &out, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *memAccountStore) FindAccountByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &acc, nil
}

func (m *memAccountStore) FindAccountBySubscriptionID(_ context.Context, subscriptionID string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if acc.Subscription.ExternalID != "" && acc.Subscription.ExternalID == subscriptionID {
			out := acc
			return &out, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *memAccountStore) CreateAccount(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if acc.Email == account.Email {
			return ErrAccountExists
		}
	}
	m.accounts[account.ID] = *account
	return nil
}

func (m *memAccountStore) SaveAccount(_ context.Context, account *Account) error {
	m.mu.Lock()
	hook := m.beforeSave
	m.beforeSave = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	cur, ok := m.accounts[account.ID]
	if !ok {
		return ErrAccountNotFound
	}
	next := *account
	next.Subscription = cur.Subscription
	next.TOTPLastCounter = cur.TOTPLastCounter
	m.accounts[account.ID] = next
	return nil
}

func (m *memAccountStore) SetSubscriptionID(_ context.Context, accountID, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	acc.Subscription.ExternalID = subscriptionID
	m.accounts[accountID] = acc
	return nil
}

func (m *memAccountStore) UpdateTOTPLastUsedCounter(_ context.Context, accountID string, counter int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return false, ErrAccountNotFound
	}
	if counter <= acc.TOTPLastCounter {
		return false, nil
	}
	acc.TOTPLastCounter = counter
	m.accounts[accountID] = acc
	return true, nil
}

func subscriptionRecordOf(acc Account) *subscription.Record {
	state := acc.Subscription.State
	if state == "" {
		state = subscription.StateNone
	}
	return &subscription.Record{
		AccountID:      acc.ID,
		SubscriptionID: acc.Subscription.ExternalID,
		Plan:           acc.Subscription.Plan,
		State:          state,
		ExpiresAt:      acc.Subscription.ExpiresAt,
		LastEventAt:    acc.Subscription.LastEventAt,
	}
}

func (m *memAccountStore) FindBySubscriptionID(_ context.Context, id string) (*subscription.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if id != "" && acc.Subscription.ExternalID == id {
			return subscriptionRecordOf(acc), nil
		}
	}
	return nil, subscription.ErrUnknownSubscription
}

func (m *memAccountStore) FindByAccountID(_ context.Context, accountID string) (*subscription.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return nil, subscription.ErrUnknownSubscription
	}
	return subscriptionRecordOf(acc), nil
}

func (m *memAccountStore) ApplySubscriptionTransition(_ context.Context, prev, next *subscription.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[prev.AccountID]
	if !ok {
		return false, nil
	}
	cur := subscriptionRecordOf(acc)
	if cur.SubscriptionID != prev.SubscriptionID || cur.State != prev.State || !cur.LastEventAt.Equal(prev.LastEventAt) {
		return false, nil
	}
	acc.Subscription.Plan = next.Plan
	acc.Subscription.State = next.State
	acc.Subscription.ExpiresAt = next.ExpiresAt
	acc.Subscription.LastEventAt = next.LastEventAt
	m.accounts[prev.AccountID] = acc
	return true, nil
}

func (m *memAccountStore) DeleteAccount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

func (m *memAccountStore) get(t *testing.T, id string) Account {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		t.Fatalf("account %s not stored", id)
	}
	return acc
}

func (m *memAccountStore) put(acc Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acc.ID] = acc
}

type sentMessage struct {
	channel Channel
	to      string
	subject string
	body    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) SendEmail(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{channel: ChannelEmail, to: to, subject: subject, body: body})
	return n.err
}

func (n *recordingNotifier) SendSMS(_ context.Context, phone, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{channel: ChannelSMS, to: phone, body: body})
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

var otpCodePattern = regexp.MustCompile(`\b(\d{4,10})\b`)

// lastCode extracts the code from the most recent message.
func (n *recordingNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatalf("no message sent")
	}
	m := otpCodePattern.FindStringSubmatch(n.sent[len(n.sent)-1].body)
	if m == nil {
		t.Fatalf("no code in message %q", n.sent[len(n.sent)-1].body)
	}
	return m[1]
}

type fakeGateway struct {
	mu         sync.Mutex
	planID     string
	totalCount int
	nextID     string
	err        error
}

func (g *fakeGateway) CreateSubscription(_ context.Context, planID string, totalCount int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.planID = planID
	g.totalCount = totalCount
	return g.nextID, nil
}

var errGatewayDown = errors.New("gateway down")

var testWebhookSecret = []byte("whsec_engine_test")

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	store    *memAccountStore
	notifier *recordingNotifier
	gateway  *fakeGateway
	clock    *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Environment = "test"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	cfg.Subscription.WebhookSecret = testWebhookSecret
	cfg.Subscription.GatewayPlans = map[Plan]string{
		PlanMonthly: "plan_M",
		PlanYearly:  "plan_Y",
	}
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	return newTestEnvWithSink(t, mutate, nil)
}

func newTestEnvWithSink(t *testing.T, mutate func(*Config), sink AuditSink) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		mr:       mr,
		rdb:      rdb,
		store:    newMemAccountStore(),
		notifier: &recordingNotifier{},
		gateway:  &fakeGateway{nextID: "sub_test_1"},
		clock:    newTestClock(),
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(env.store).
		WithNotifier(env.notifier).
		WithPaymentGateway(env.gateway).
		WithAuditSink(sink).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) register(t *testing.T, email, password string) *LoginResult {
	t.Helper()
	res, err := env.engine.Register(context.Background(), RegisterInput{
		Email:    email,
		Name:     "Test User",
		Password: password,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return res
}
