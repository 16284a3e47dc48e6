package stores

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpRecordVersionV1 = 1
	otpMaxTxRetries    = 4

	// Keys outlive the logical expiry so a late verification can be told
	// apart from a missing challenge.
	otpExpiredGrace = 10 * time.Minute
)

var (
	ErrOTPNotFound         = errors.New("otp challenge not found")
	ErrOTPExpired          = errors.New("otp challenge expired")
	ErrOTPMismatch         = errors.New("otp code mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// OTPRecord is the persisted challenge for one address. Only the SHA-256 of
// the code is stored.
type OTPRecord struct {
	Channel   uint8
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// OTPStore keeps at most one live challenge per address.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock replaces the store's time source.
func (s *OTPStore) WithClock(now func() time.Time) *OTPStore {
	s.now = now
	return s
}

func HashOTP(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

func (s *OTPStore) key(address string) string {
	return s.prefix + ":" + address
}

// Put stores a fresh challenge for address, replacing any previous one.
func (s *OTPStore) Put(ctx context.Context, address string, channel uint8, code string, ttl time.Duration) error {
	record := &OTPRecord{
		Channel:   channel,
		CodeHash:  HashOTP(code),
		ExpiresAt: s.now().Add(ttl).UnixMilli(),
	}
	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(address), encoded, ttl+otpExpiredGrace).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Consume checks code against the live challenge for address inside a
// WATCH/MULTI transaction. A match deletes the challenge. A mismatch counts
// an attempt and deletes the challenge once maxAttempts is reached.
func (s *OTPStore) Consume(ctx context.Context, address, code string, maxAttempts int) (*OTPRecord, error) {
	key := s.key(address)
	provided := HashOTP(code)

	for i := 0; i < otpMaxTxRetries; i++ {
		var matched *OTPRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrOTPNotFound
				}
				return err
			}

			record, err := decodeOTPRecord(data)
			if err != nil {
				return err
			}

			now := s.now()
			if now.UnixMilli() > record.ExpiresAt {
				if err := deleteInTx(ctx, tx, key); err != nil {
					return err
				}
				return ErrOTPExpired
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], provided[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					if err := deleteInTx(ctx, tx, key); err != nil {
						return err
					}
					return ErrOTPAttemptsExceeded
				}

				updated, err := encodeOTPRecord(record)
				if err != nil {
					return err
				}
				ttl := time.UnixMilli(record.ExpiresAt).Sub(now) + otpExpiredGrace
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrOTPMismatch
			}

			if err := deleteInTx(ctx, tx, key); err != nil {
				return err
			}
			matched = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrOTPNotFound), errors.Is(err, ErrOTPExpired),
				errors.Is(err, ErrOTPMismatch), errors.Is(err, ErrOTPAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	// Lost every optimistic race: a concurrent request replaced the code.
	return nil, ErrOTPNotFound
}

// Delete drops any challenge for address.
func (s *OTPStore) Delete(ctx context.Context, address string) error {
	if err := s.redis.Del(ctx, s.key(address)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

func deleteInTx(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

func encodeOTPRecord(record *OTPRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)
	buf.WriteByte(record.Channel)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	channel, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &OTPRecord{Channel: channel}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
