package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrEthical07/shieldauth/internal"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrSessionNotFound is returned when a session is missing, expired, or revoked.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRedisUnavailable wraps transport failures from the backing Redis.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrSessionCorrupt is returned when a stored blob cannot be decoded.
	ErrSessionCorrupt = errors.New("session corrupt")
)

const defaultTouchInterval = time.Minute

// The user index entry is the ownership proof: it is written only by Create
// for the owning user.
const revokeSessionScript = `
if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 0 then
  return -1
end
redis.call("SREM", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// Session keys are "<ARGV[1]>:<id>". The index read and the deletes are one
// step, so a concurrent Create is either revoked or keeps its index entry.
const revokeAllScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  n = n + redis.call("DEL", ARGV[1] .. ":" .. id)
end
redis.call("DEL", KEYS[1])
return n
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// Config tunes the session registry.
type Config struct {
	Prefix string
	// TouchInterval throttles LastActive writes. Zero uses one minute.
	TouchInterval time.Duration
}

// Store is the Redis-backed session registry.
//
// Keys:
//   - <prefix>:<sid>    encoded session, TTL = absolute expiry
//   - <prefix>u:<uid>   set of session IDs for the user
type Store struct {
	redis         redis.UniversalClient
	prefix        string
	touchInterval time.Duration
	now           func() time.Time
}

// NewStore creates a session registry.
func NewStore(redisClient redis.UniversalClient, cfg Config) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "sess"
	}
	interval := cfg.TouchInterval
	if interval <= 0 {
		interval = defaultTouchInterval
	}
	return &Store{
		redis:         redisClient,
		prefix:        prefix,
		touchInterval: interval,
		now:           time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// Create mints a fresh session for userID that expires after ttl.
func (s *Store) Create(ctx context.Context, userID, device, ip string, ttl time.Duration) (*Session, error) {
	if userID == "" {
		return nil, errors.New("empty user id")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be > 0")
	}

	now := s.now()
	sess := &Session{
		SchemaVersion: CurrentSchemaVersion,
		UserID:        userID,
		Device:        device,
		IP:            ip,
		CreatedAt:     now.Unix(),
		LastActive:    now.Unix(),
		ExpiresAt:     now.Add(ttl).Unix(),
	}

	for attempt := 0; attempt < 3; attempt++ {
		sid, err := internal.NewSessionID()
		if err != nil {
			return nil, err
		}
		sess.SessionID = sid.String()

		data, err := Encode(sess)
		if err != nil {
			return nil, err
		}

		ok, err := s.redis.SetNX(ctx, s.key(sess.SessionID), data, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if !ok {
			continue
		}

		_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, s.userKey(userID), sess.SessionID)
			pipe.Expire(ctx, s.userKey(userID), ttl)
			return nil
		})
		if err != nil {
			_ = s.redis.Del(ctx, s.key(sess.SessionID)).Err()
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return sess, nil
	}

	return nil, errors.New("session id collision")
}

// Get loads a live session by ID.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return nil, ErrSessionNotFound
	}
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if sess.Expired(s.now().Unix()) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Touch records activity on sess. Writes are skipped when the previous
// LastActive is newer than the touch interval. The session keeps its TTL and
// is never recreated once revoked.
func (s *Store) Touch(ctx context.Context, sess *Session) error {
	if sess == nil {
		return ErrSessionNotFound
	}
	now := s.now().Unix()
	if now-sess.LastActive < int64(s.touchInterval/time.Second) {
		return nil
	}

	updated := *sess
	updated.LastActive = now
	data, err := Encode(&updated)
	if err != nil {
		return err
	}

	err = s.redis.SetArgs(ctx, s.key(sess.SessionID), data, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sess.LastActive = now
	return nil
}

// List returns the user's live sessions, most recently active first.
// Index entries whose session has expired are pruned.
func (s *Store) List(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now().Unix()
	out := make([]*Session, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := Decode(data)
		if err != nil || sess.UserID != userID || sess.Expired(now) {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, sess)
	}

	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, s.userKey(userID), stale...).Err()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActive != out[j].LastActive {
			return out[i].LastActive > out[j].LastActive
		}
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}

// Revoke deletes one session if it belongs to userID. It reports whether a
// live session was removed.
func (s *Store) Revoke(ctx context.Context, userID, sessionID string) (bool, error) {
	if userID == "" || sessionID == "" {
		return false, nil
	}
	res, err := revokeSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID), s.userKey(userID)},
		sessionID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// RevokeAll deletes every session of userID and returns how many live
// sessions were removed.
func (s *Store) RevokeAll(ctx context.Context, userID string) (int, error) {
	n, err := revokeAllLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.prefix).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}
