package shieldauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRequestAndVerifyEmailOTP(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "a@x.com", "pw123456")

	if err := env.engine.RequestOTP(ctx, "A@x.com", ChannelEmail); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	code := env.notifier.lastCode(t)
	if len(code) != 6 {
		t.Fatalf("expected 6-digit email code, got %q", code)
	}
	if msg := env.notifier.sent[0]; msg.to != "a@x.com" || msg.subject != "Your verification code" {
		t.Fatalf("unexpected message %+v", msg)
	}

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	if err := env.engine.VerifyOTP(ctx, "a@x.com", wrong); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := env.engine.VerifyOTP(ctx, "a@x.com", code); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if err := env.engine.VerifyOTP(ctx, "a@x.com", code); !errors.Is(err, ErrOTPNotFound) || KindOf(err) != KindNotFound {
		t.Fatalf("expected consumed challenge, got %v", err)
	}
}

func TestRequestOTPUnknownEmailSendsNothing(t *testing.T) {
	env := newTestEnv(t, nil)

	if err := env.engine.RequestOTP(context.Background(), "ghost@x.com", ChannelEmail); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if env.notifier.count() != 0 {
		t.Fatalf("expected no message for unknown address")
	}
	if err := env.engine.VerifyOTP(context.Background(), "ghost@x.com", "123456"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected no challenge, got %v", err)
	}
}

func TestRequestSMSOTP(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.RequestOTP(ctx, "9876543210", ChannelSMS); err != nil {
		t.Fatalf("RequestOTP sms: %v", err)
	}
	code := env.notifier.lastCode(t)
	if len(code) != 4 {
		t.Fatalf("expected 4-digit sms code, got %q", code)
	}
	if env.notifier.sent[0].channel != ChannelSMS {
		t.Fatalf("expected sms delivery")
	}
	if err := env.engine.VerifyOTP(ctx, "9876543210", code); err != nil {
		t.Fatalf("VerifyOTP sms: %v", err)
	}

	for _, bad := range []string{"12345", "98765432101", "98765abcde"} {
		if err := env.engine.RequestOTP(ctx, bad, ChannelSMS); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected invalid phone %q to be rejected, got %v", bad, err)
		}
	}
	if err := env.engine.RequestOTP(ctx, "a@x.com", Channel("fax")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected unknown channel rejected, got %v", err)
	}
}

func TestUpdatePhoneRequiresCodeForNewNumber(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	reg := env.register(t, "a@x.com", "pw123456")

	if err := env.engine.UpdatePhone(ctx, reg.Account.ID, "9876543210", "1234"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected missing challenge, got %v", err)
	}

	if err := env.engine.RequestOTP(ctx, "9876543210", ChannelSMS); err != nil {
		t.Fatalf("RequestOTP sms: %v", err)
	}
	code := env.notifier.lastCode(t)

	// A code sent to a different number does not verify this one.
	if err := env.engine.UpdatePhone(ctx, reg.Account.ID, "9123456780", code); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected code bound to its number, got %v", err)
	}
	if err := env.engine.UpdatePhone(ctx, reg.Account.ID, "98765", code); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid phone, got %v", err)
	}
	if got := env.store.get(t, reg.Account.ID).Phone; got != "" {
		t.Fatalf("phone must not change before verification, got %q", got)
	}

	if err := env.engine.UpdatePhone(ctx, reg.Account.ID, " 9876543210 ", code); err != nil {
		t.Fatalf("UpdatePhone: %v", err)
	}
	if got := env.store.get(t, reg.Account.ID).Phone; got != "9876543210" {
		t.Fatalf("expected phone saved, got %q", got)
	}
	if err := env.engine.UpdatePhone(ctx, reg.Account.ID, "9876543210", code); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected code consumed, got %v", err)
	}
}

func TestOTPNotificationFailureKeepsCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.notifier.err = errors.New("smtp down")

	err := env.engine.RequestOTP(ctx, "9876543210", ChannelSMS)
	if !errors.Is(err, ErrNotificationFailed) || KindOf(err) != KindNotificationFailed {
		t.Fatalf("expected notification failure, got %v", err)
	}

	code := env.notifier.lastCode(t)
	if err := env.engine.VerifyOTP(ctx, "9876543210", code); err != nil {
		t.Fatalf("code must stay valid after delivery failure, got %v", err)
	}
}

func TestOTPAttemptsExceededDeletesChallenge(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.RequestOTP(ctx, "9876543210", ChannelSMS); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	code := env.notifier.lastCode(t)
	wrong := "0000"
	if code == wrong {
		wrong = "1111"
	}

	for i := 0; i < 4; i++ {
		if err := env.engine.VerifyOTP(ctx, "9876543210", wrong); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i+1, err)
		}
	}
	if err := env.engine.VerifyOTP(ctx, "9876543210", wrong); !errors.Is(err, ErrOTPAttemptsExceeded) {
		t.Fatalf("expected attempts exceeded, got %v", err)
	}
	if err := env.engine.VerifyOTP(ctx, "9876543210", code); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected challenge deleted, got %v", err)
	}
}

func TestOTPExpires(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.RequestOTP(ctx, "9876543210", ChannelSMS); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	code := env.notifier.lastCode(t)

	env.clock.Advance(6 * time.Minute)
	if err := env.engine.VerifyOTP(ctx, "9876543210", code); !errors.Is(err, ErrOTPExpired) || KindOf(err) != KindExpired {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestOTPRequestThrottled(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.OTP.MaxPerAddress = 2
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := env.engine.RequestOTP(ctx, "9876543210", ChannelSMS); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := env.engine.RequestOTP(ctx, "9876543210", ChannelSMS); !errors.Is(err, ErrOTPRateLimited) || KindOf(err) != KindRateLimited {
		t.Fatalf("expected throttled request, got %v", err)
	}
}

func TestPasswordResetRevokesAllSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	reg := env.register(t, "a@x.com", "pw123456")

	if err := env.engine.RequestPasswordReset(ctx, "a@x.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	code := env.notifier.lastCode(t)

	if err := env.engine.ResetPassword(ctx, "a@x.com", code, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected policy failure, got %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "a@x.com", code, "newpass123"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	if _, err := env.engine.Validate(ctx, reg.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected sessions revoked, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "a@x.com", "pw123456", "", DeviceInfo{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must fail, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "a@x.com", "newpass123", "", DeviceInfo{}); err != nil {
		t.Fatalf("new password login: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "a@x.com", code, "another123"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("code must be single use, got %v", err)
	}
}

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	reg := env.register(t, "a@x.com", "pw123456")
	other, err := env.engine.Login(ctx, "a@x.com", "pw123456", "", DeviceInfo{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := env.engine.ChangePassword(ctx, reg.Account.ID, reg.SessionID, "bad-old-pw", "newpass123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, reg.Account.ID, reg.SessionID, "pw123456", "pw123456"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected reuse rejection, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, reg.Account.ID, reg.SessionID, "pw123456", "newpass123"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := env.engine.Validate(ctx, reg.Token); err != nil {
		t.Fatalf("current session must survive, got %v", err)
	}
	if _, err := env.engine.Validate(ctx, other.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("other session must be revoked, got %v", err)
	}
}
