package httpapi

import (
	"context"
	"sync"

	"github.com/MrEthical07/shieldauth"
	"github.com/MrEthical07/shieldauth/subscription"
)

// fakeEngine accepts the token "good" for account "u-1" and records calls.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string

	registerFunc  func(in shieldauth.RegisterInput) (*shieldauth.LoginResult, error)
	loginFunc     func(email, password, totp string) (*shieldauth.LoginResult, error)
	federatedFunc func(id shieldauth.FederatedIdentity) (*shieldauth.LoginResult, error)
	webhookFunc   func(body []byte, sig string) (subscription.Outcome, error)
	errs          map[string]error
	role          shieldauth.Role
	lastPhone     string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{errs: map[string]error{}, role: shieldauth.RoleCreator}
}

func (f *fakeEngine) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.errs[name]
}

func (f *fakeEngine) called(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

func loginResult() *shieldauth.LoginResult {
	return &shieldauth.LoginResult{
		Token:     "good",
		SessionID: "s-1",
		Account:   &shieldauth.Account{ID: "u-1", Email: "a@x.com", Name: "Alice", Role: shieldauth.RoleCreator, Status: shieldauth.StatusActive},
	}
}

func (f *fakeEngine) Register(_ context.Context, in shieldauth.RegisterInput) (*shieldauth.LoginResult, error) {
	if err := f.record("Register"); err != nil {
		return nil, err
	}
	if f.registerFunc != nil {
		return f.registerFunc(in)
	}
	return loginResult(), nil
}

func (f *fakeEngine) Login(_ context.Context, email, password, totp string, _ shieldauth.DeviceInfo) (*shieldauth.LoginResult, error) {
	if err := f.record("Login"); err != nil {
		return nil, err
	}
	if f.loginFunc != nil {
		return f.loginFunc(email, password, totp)
	}
	return loginResult(), nil
}

func (f *fakeEngine) LoginFederated(_ context.Context, id shieldauth.FederatedIdentity, _ string, _ shieldauth.DeviceInfo) (*shieldauth.LoginResult, error) {
	if err := f.record("LoginFederated"); err != nil {
		return nil, err
	}
	if f.federatedFunc != nil {
		return f.federatedFunc(id)
	}
	return loginResult(), nil
}

func (f *fakeEngine) Validate(_ context.Context, token string) (*shieldauth.AuthResult, error) {
	if token != "good" {
		return nil, shieldauth.ErrTokenInvalid
	}
	return &shieldauth.AuthResult{AccountID: "u-1", Email: "a@x.com", Name: "Alice", Role: f.role, SessionID: "s-1"}, nil
}

func (f *fakeEngine) Logout(context.Context, string) error { return f.record("Logout") }

func (f *fakeEngine) RequestOTP(context.Context, string, shieldauth.Channel) error {
	return f.record("RequestOTP")
}

func (f *fakeEngine) VerifyOTP(context.Context, string, string) error { return f.record("VerifyOTP") }

func (f *fakeEngine) RequestPasswordReset(context.Context, string) error {
	return f.record("RequestPasswordReset")
}

func (f *fakeEngine) ResetPassword(context.Context, string, string, string) error {
	return f.record("ResetPassword")
}

func (f *fakeEngine) ChangePassword(context.Context, string, string, string, string) error {
	return f.record("ChangePassword")
}

func (f *fakeEngine) EnrollTOTP(context.Context, string) (*shieldauth.TOTPEnrollment, error) {
	if err := f.record("EnrollTOTP"); err != nil {
		return nil, err
	}
	return &shieldauth.TOTPEnrollment{
		Secret: "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP",
		URI:    "otpauth://totp/ShieldAuth:a@x.com?secret=JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP&issuer=ShieldAuth",
	}, nil
}

func (f *fakeEngine) ConfirmTOTP(context.Context, string, string) error { return f.record("ConfirmTOTP") }
func (f *fakeEngine) VerifyTOTP(context.Context, string, string) error  { return f.record("VerifyTOTP") }
func (f *fakeEngine) DisableTOTP(context.Context, string, string) error { return f.record("DisableTOTP") }

func (f *fakeEngine) ListSessions(_ context.Context, _, current string) ([]shieldauth.SessionInfo, error) {
	if err := f.record("ListSessions"); err != nil {
		return nil, err
	}
	return []shieldauth.SessionInfo{
		{ID: "s-1", Device: "curl", Current: current == "s-1"},
		{ID: "s-2", Device: "phone"},
	}, nil
}

func (f *fakeEngine) RevokeSession(context.Context, string, string) error {
	return f.record("RevokeSession")
}

func (f *fakeEngine) DeleteAccount(context.Context, string, string, string) error {
	return f.record("DeleteAccount")
}

func (f *fakeEngine) UpdatePhone(_ context.Context, _, phone, code string) error {
	f.mu.Lock()
	f.lastPhone = phone + ":" + code
	f.mu.Unlock()
	return f.record("UpdatePhone")
}

func (f *fakeEngine) CreateSubscription(context.Context, string, shieldauth.Plan) (string, error) {
	if err := f.record("CreateSubscription"); err != nil {
		return "", err
	}
	return "sub_1", nil
}

func (f *fakeEngine) HandleWebhook(_ context.Context, body []byte, sig string) (subscription.Outcome, error) {
	if err := f.record("HandleWebhook"); err != nil {
		return 0, err
	}
	if f.webhookFunc != nil {
		return f.webhookFunc(body, sig)
	}
	return subscription.OutcomeApplied, nil
}

func (f *fakeEngine) ExpireTrial(context.Context, string) error { return f.record("ExpireTrial") }

func (f *fakeEngine) SuspendAccount(context.Context, string) error {
	return f.record("SuspendAccount")
}

func (f *fakeEngine) ReactivateAccount(context.Context, string) error {
	return f.record("ReactivateAccount")
}

func (f *fakeEngine) Ping(context.Context) error { return f.record("Ping") }
