package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/shieldauth"
	"github.com/MrEthical07/shieldauth/subscription"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// DBTX is the subset of database/sql used by Store. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  DBTX
	now func() time.Time
}

var (
	_ shieldauth.AccountStore = (*Store)(nil)
	_ subscription.Store      = (*Store)(nil)
)

func NewStore(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the time source used for updated_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

const accountColumns = `id, email, name, phone, password_hash, role, status, totp_secret, totp_enabled,
		plan, subscription_id, subscription_state, subscription_expires_at, subscription_event_at,
		created_at, updated_at`

// selectColumns adds the columns written outside CreateAccount.
const selectColumns = accountColumns + `, totp_last_counter`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*shieldauth.Account, error) {
	var (
		acc                                   shieldauth.Account
		phone, passwordHash, totpSecret, subID sql.NullString
		role, status, plan, state             string
		expiresAt, eventAt                    sql.NullTime
	)
	err := row.Scan(
		&acc.ID, &acc.Email, &acc.Name, &phone, &passwordHash, &role, &status, &totpSecret, &acc.TOTPEnabled,
		&plan, &subID, &state, &expiresAt, &eventAt,
		&acc.CreatedAt, &acc.UpdatedAt, &acc.TOTPLastCounter,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shieldauth.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	acc.Phone = phone.String
	acc.PasswordHash = passwordHash.String
	acc.Role = shieldauth.Role(role)
	acc.Status = shieldauth.Status(status)
	acc.TOTPSecret = totpSecret.String
	acc.Subscription = shieldauth.Subscription{
		Plan:       shieldauth.Plan(plan),
		ExternalID: subID.String,
		State:      shieldauth.SubscriptionState(state),
	}
	if expiresAt.Valid {
		acc.Subscription.ExpiresAt = expiresAt.Time.UTC()
	}
	if eventAt.Valid {
		acc.Subscription.LastEventAt = eventAt.Time.UTC()
	}
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return &acc, nil
}

func (s *Store) findOne(ctx context.Context, where string, arg any) (*shieldauth.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts WHERE ` + where
	return scanAccount(s.db.QueryRowContext(ctx, query, arg))
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*shieldauth.Account, error) {
	return s.findOne(ctx, `email = $1`, email)
}

func (s *Store) FindAccountByID(ctx context.Context, id string) (*shieldauth.Account, error) {
	return s.findOne(ctx, `id = $1`, id)
}

func (s *Store) FindAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*shieldauth.Account, error) {
	if subscriptionID == "" {
		return nil, shieldauth.ErrAccountNotFound
	}
	return s.findOne(ctx, `subscription_id = $1`, subscriptionID)
}

func (s *Store) CreateAccount(ctx context.Context, acc *shieldauth.Account) error {
	query :=
		`INSERT INTO accounts (` + accountColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := s.db.ExecContext(ctx, query, accountArgs(acc)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shieldauth.ErrAccountExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SaveAccount leaves the subscription columns and totp_last_counter alone;
// those have their own conditional writers.
func (s *Store) SaveAccount(ctx context.Context, acc *shieldauth.Account) error {
	query :=
		`UPDATE accounts SET
		 email = $2, name = $3, phone = $4, password_hash = $5, role = $6, status = $7,
		 totp_secret = $8, totp_enabled = $9, updated_at = $10
		 WHERE id = $1`

	args := accountArgs(acc)
	args = append(args[:9], acc.UpdatedAt.UTC())
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shieldauth.ErrAccountExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return shieldauth.ErrAccountNotFound
	}
	return nil
}

func (s *Store) SetSubscriptionID(ctx context.Context, accountID, subscriptionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET subscription_id = $2, updated_at = $3 WHERE id = $1`,
		accountID, nullString(subscriptionID), s.now().UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("db error: subscription id already linked: %w", err)
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return shieldauth.ErrAccountNotFound
	}
	return nil
}

// UpdateTOTPLastUsedCounter only moves the counter forward. Two requests
// racing with the same code cannot both advance it.
func (s *Store) UpdateTOTPLastUsedCounter(ctx context.Context, accountID string, counter int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET totp_last_counter = $2 WHERE id = $1 AND totp_last_counter < $2`,
		accountID, counter,
	)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// DeleteAccount is idempotent.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) FindBySubscriptionID(ctx context.Context, id string) (*subscription.Record, error) {
	return recordOf(s.FindAccountBySubscriptionID(ctx, id))
}

func (s *Store) FindByAccountID(ctx context.Context, accountID string) (*subscription.Record, error) {
	return recordOf(s.FindAccountByID(ctx, accountID))
}

func recordOf(acc *shieldauth.Account, err error) (*subscription.Record, error) {
	if err != nil {
		if errors.Is(err, shieldauth.ErrAccountNotFound) {
			return nil, subscription.ErrUnknownSubscription
		}
		return nil, err
	}
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
	}, nil
}

// ApplySubscriptionTransition writes next only while the row still holds
// prev's subscription id, state and event time.
func (s *Store) ApplySubscriptionTransition(ctx context.Context, prev, next *subscription.Record) (bool, error) {
	query :=
		`UPDATE accounts SET
		 plan = $1, subscription_state = $2, subscription_expires_at = $3,
		 subscription_event_at = $4, updated_at = $5
		 WHERE id = $6 AND subscription_id IS NOT DISTINCT FROM $7
		 AND subscription_state = $8
		 AND subscription_event_at IS NOT DISTINCT FROM $9`

	res, err := s.db.ExecContext(ctx, query,
		string(next.Plan), string(next.State), nullTime(next.ExpiresAt),
		nullTime(next.LastEventAt), s.now().UTC(),
		prev.AccountID, nullString(prev.SubscriptionID),
		string(prev.State), nullTime(prev.LastEventAt),
	)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func accountArgs(acc *shieldauth.Account) []any {
	state := acc.Subscription.State
	if state == "" {
		state = shieldauth.SubscriptionNone
	}
	return []any{
		acc.ID,
		acc.Email,
		acc.Name,
		nullString(acc.Phone),
		nullString(acc.PasswordHash),
		string(acc.Role),
		string(acc.Status),
		nullString(acc.TOTPSecret),
		acc.TOTPEnabled,
		string(acc.Subscription.Plan),
		nullString(acc.Subscription.ExternalID),
		string(state),
		nullTime(acc.Subscription.ExpiresAt),
		nullTime(acc.Subscription.LastEventAt),
		acc.CreatedAt.UTC(),
		acc.UpdatedAt.UTC(),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
