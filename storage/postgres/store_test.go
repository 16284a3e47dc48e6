package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/shieldauth"
	"github.com/MrEthical07/shieldauth/subscription"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
)

var accountRowColumns = []string{
	"id", "email", "name", "phone", "password_hash", "role", "status", "totp_secret", "totp_enabled",
	"plan", "subscription_id", "subscription_state", "subscription_expires_at", "subscription_event_at",
	"created_at", "updated_at", "totp_last_counter",
}

var testNow = time.Unix(1_760_000_000, 0).UTC()

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewStore(db).WithClock(func() time.Time { return testNow }), mock, db
}

func testAccount() *shieldauth.Account {
	return &shieldauth.Account{
		ID:           "6f1c7f0e-0000-4000-8000-000000000001",
		Email:        "a@x.com",
		Name:         "Alice",
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		Role:         shieldauth.RoleCreator,
		Status:       shieldauth.StatusActive,
		Subscription: shieldauth.Subscription{State: shieldauth.SubscriptionNone},
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
}

func TestFindAccountByEmail_Found(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	expires := testNow.Add(30 * 24 * time.Hour)
	rows := sqlmock.NewRows(accountRowColumns).AddRow(
		"u-1", "a@x.com", "Alice", nil, "hash", "admin", "active", "SECRET", true,
		"monthly", "sub_1", "active", expires, testNow,
		testNow, testNow, int64(58_666_666),
	)
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*email.*FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs("a@x.com").
		WillReturnRows(rows)

	acc, err := store.FindAccountByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("FindAccountByEmail error: %v", err)
	}
	if acc.ID != "u-1" || acc.Role != shieldauth.RoleAdmin || acc.Phone != "" || !acc.TOTPEnabled || acc.TOTPLastCounter != 58_666_666 {
		t.Fatalf("unexpected account: %+v", acc)
	}
	if acc.Subscription.ExternalID != "sub_1" || acc.Subscription.State != shieldauth.SubscriptionActive || !acc.Subscription.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected subscription: %+v", acc.Subscription)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindAccountByID_NotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindAccountByID(context.Background(), "ghost")
	if !errors.Is(err, shieldauth.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestFindAccountBySubscriptionID_EmptyIDSkipsQuery(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	if _, err := store.FindAccountBySubscriptionID(context.Background(), ""); !errors.Is(err, shieldauth.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected query: %v", err)
	}
}

func TestCreateAccount_Success(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	acc := testAccount()
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+accounts\s*\(id,\s*email.*VALUES\s*\(\$1,.*\$16\)$`).
		WithArgs(acc.ID, acc.Email, acc.Name, nil, acc.PasswordHash, "creator", "active", nil, false,
			"", nil, "none", nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.CreateAccount(context.Background(), acc); err != nil {
		t.Fatalf("CreateAccount error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateAccount_Duplicate(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})

	err := store.CreateAccount(context.Background(), testAccount())
	if !errors.Is(err, shieldauth.ErrAccountExists) {
		t.Fatalf("want ErrAccountExists, got %v", err)
	}
}

func TestCreateAccount_DBError(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+accounts`).
		WillReturnError(errors.New("db down"))

	err := store.CreateAccount(context.Background(), testAccount())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestSaveAccount_NotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+accounts\s+SET.*updated_at\s*=\s*\$10\s+WHERE\s+id\s*=\s*\$1$`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.SaveAccount(context.Background(), testAccount()); !errors.Is(err, shieldauth.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestSaveAccount_LeavesSubscriptionColumns(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	acc := testAccount()
	acc.TOTPLastCounter = 99
	acc.Subscription = shieldauth.Subscription{
		Plan:       shieldauth.PlanMonthly,
		ExternalID: "sub_stale",
		State:      shieldauth.SubscriptionExpired,
	}
	mock.ExpectExec(`^UPDATE\s+accounts\s+SET\s+` +
		`email\s*=\s*\$2,\s*name\s*=\s*\$3,\s*phone\s*=\s*\$4,\s*password_hash\s*=\s*\$5,\s*role\s*=\s*\$6,\s*status\s*=\s*\$7,\s*` +
		`totp_secret\s*=\s*\$8,\s*totp_enabled\s*=\s*\$9,\s*updated_at\s*=\s*\$10\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(acc.ID, acc.Email, acc.Name, nil, acc.PasswordHash, "creator", "active", nil, false, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SaveAccount(context.Background(), acc); err != nil {
		t.Fatalf("SaveAccount error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetSubscriptionID(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "linked", affected: 1},
		{name: "missing account", affected: 0, wantErr: shieldauth.ErrAccountNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, mock, db := newStoreWithMock(t)
			defer db.Close()

			mock.ExpectExec(`^UPDATE\s+accounts\s+SET\s+subscription_id\s*=\s*\$2,\s*updated_at\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1$`).
				WithArgs("u-1", "sub_1", testNow).
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			err := store.SetSubscriptionID(context.Background(), "u-1", "sub_1")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestUpdateTOTPLastUsedCounter(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "advanced", affected: 1, want: true},
		{name: "counter already used", affected: 0, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, mock, db := newStoreWithMock(t)
			defer db.Close()

			mock.ExpectExec(`^UPDATE\s+accounts\s+SET\s+totp_last_counter\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+totp_last_counter\s*<\s*\$2$`).
				WithArgs("u-1", int64(58_666_667)).
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			ok, err := store.UpdateTOTPLastUsedCounter(context.Background(), "u-1", 58_666_667)
			if err != nil {
				t.Fatalf("UpdateTOTPLastUsedCounter error: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("want advanced=%v, got %v", tc.want, ok)
			}
		})
	}
}

func TestDeleteAccount_Idempotent(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteAccount(context.Background(), "u-1"); err != nil {
		t.Fatalf("DeleteAccount error: %v", err)
	}
}

func TestFindBySubscriptionID_Unknown(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*WHERE\s+subscription_id\s*=\s*\$1$`).
		WithArgs("sub_missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.FindBySubscriptionID(context.Background(), "sub_missing"); !errors.Is(err, subscription.ErrUnknownSubscription) {
		t.Fatalf("want ErrUnknownSubscription, got %v", err)
	}
}

func TestFindByAccountID_WithoutSubscription(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(accountRowColumns).AddRow(
		"u-1", "a@x.com", "Alice", nil, "hash", "creator", "active", nil, false,
		"trial", nil, "none", nil, nil,
		testNow, testNow, int64(0),
	)
	mock.ExpectQuery(`(?s)^SELECT.*totp_last_counter\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("u-1").
		WillReturnRows(rows)

	rec, err := store.FindByAccountID(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("FindByAccountID error: %v", err)
	}
	if rec.AccountID != "u-1" || rec.SubscriptionID != "" || rec.State != subscription.StateNone || rec.Plan != subscription.PlanTrial {
		t.Fatalf("unexpected record: %+v", rec)
	}

	mock.ExpectQuery(`(?s)^SELECT.*WHERE\s+id\s*=\s*\$1$`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.FindByAccountID(context.Background(), "ghost"); !errors.Is(err, subscription.ErrUnknownSubscription) {
		t.Fatalf("want ErrUnknownSubscription, got %v", err)
	}
}

func TestApplySubscriptionTransition(t *testing.T) {
	prev := &subscription.Record{AccountID: "u-1", SubscriptionID: "sub_1", State: subscription.StateNone}
	next := &subscription.Record{
		AccountID:      "u-1",
		SubscriptionID: "sub_1",
		Plan:           subscription.PlanMonthly,
		State:          subscription.StateActive,
		ExpiresAt:      testNow.Add(30 * 24 * time.Hour),
		LastEventAt:    testNow,
	}
	q := `(?s)^UPDATE\s+accounts\s+SET.*WHERE\s+id\s*=\s*\$6\s+AND\s+subscription_id\s+IS\s+NOT\s+DISTINCT\s+FROM\s+\$7.*IS\s+NOT\s+DISTINCT\s+FROM\s+\$9$`

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "applied", affected: 1, want: true},
		{name: "row moved on", affected: 0, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, mock, db := newStoreWithMock(t)
			defer db.Close()

			mock.ExpectExec(q).
				WithArgs("monthly", "active", sqlmock.AnyArg(), sqlmock.AnyArg(), testNow,
					"u-1", "sub_1", "none", nil).
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			ok, err := store.ApplySubscriptionTransition(context.Background(), prev, next)
			if err != nil {
				t.Fatalf("ApplySubscriptionTransition error: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("want applied=%v, got %v", tc.want, ok)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestMigrateRunsEmbeddedMigrations(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if gotDir != "." {
		t.Fatalf("expected embedded root dir, got %q", gotDir)
	}

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	if err := Migrate(context.Background(), db); err == nil {
		t.Fatal("expected migration error")
	}
}
