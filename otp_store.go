package shieldauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/shieldauth/internal"
	"github.com/MrEthical07/shieldauth/internal/stores"
	"github.com/redis/go-redis/v9"
)

const (
	otpChannelEmail uint8 = 1
	otpChannelSMS   uint8 = 2
)

// redisOTPStore is the default [OTPStore]. Verification runs as a
// WATCH/MULTI compare-and-delete on the address key.
type redisOTPStore struct {
	store       *stores.OTPStore
	maxAttempts int
}

// NewRedisOTPStore returns an [OTPStore] backed by Redis. maxAttempts wrong
// codes delete the challenge.
func NewRedisOTPStore(rdb redis.UniversalClient, prefix string, maxAttempts int) OTPStore {
	return newRedisOTPStore(stores.NewOTPStore(rdb, prefix), maxAttempts)
}

func newRedisOTPStore(store *stores.OTPStore, maxAttempts int) *redisOTPStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &redisOTPStore{store: store, maxAttempts: maxAttempts}
}

func (s *redisOTPStore) Issue(ctx context.Context, address string, channel Channel, digits int, ttl time.Duration) (string, error) {
	code, err := internal.NewOTP(digits)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	ch := otpChannelEmail
	if channel == ChannelSMS {
		ch = otpChannelSMS
	}
	if err := s.store.Put(ctx, normalizeAddress(address), ch, code, ttl); err != nil {
		return "", mapOTPStoreError(err)
	}
	return code, nil
}

func (s *redisOTPStore) Verify(ctx context.Context, address, code string) error {
	_, err := s.store.Consume(ctx, normalizeAddress(address), code, s.maxAttempts)
	return mapOTPStoreError(err)
}

func mapOTPStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrOTPNotFound):
		return ErrOTPNotFound
	case errors.Is(err, stores.ErrOTPExpired):
		return ErrOTPExpired
	case errors.Is(err, stores.ErrOTPMismatch):
		return ErrOTPMismatch
	case errors.Is(err, stores.ErrOTPAttemptsExceeded):
		return ErrOTPAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
