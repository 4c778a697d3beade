package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures so callers
// can distinguish "no value" from "backend down".
var ErrRedisUnavailable = errors.New("redis unavailable")

// failureSuffix is appended to the identity key to hold the
// invalid-login counter, mirroring the fixed session-key contract.
const failureSuffix = "_invalid_logins"

// regenerateScript moves a session's identity and failure counter to a
// freshly generated identifier in one atomic call, preserving TTLs.
// The old identifier is invalid the moment the script returns; there is
// no window in which both identifiers resolve.
const regenerateScript = `
local data = redis.call("GET", KEYS[1])
if data then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl <= 0 then ttl = tonumber(ARGV[1]) end
  redis.call("SET", KEYS[3], data, "PX", ttl)
end
local failures = redis.call("GET", KEYS[2])
if failures then
  local fttl = redis.call("PTTL", KEYS[2])
  if fttl <= 0 then fttl = tonumber(ARGV[1]) end
  redis.call("SET", KEYS[4], failures, "PX", fttl)
end
redis.call("DEL", KEYS[1], KEYS[2])
return 1
`

var regenerateLua = redis.NewScript(regenerateScript)

// Store is the Redis-backed cross-request session state: one key per
// session holding the logged-in username, and a sibling key holding the
// invalid-login counter. Everything else about a request's auth state
// is request-scoped and never touches the store.
type Store struct {
	redis    redis.UniversalClient
	prefix   string
	keyName  string
	lifetime time.Duration
}

// NewStore creates a session Store. prefix namespaces all keys, keyName
// is the fixed session key under which the username is stored, and
// lifetime bounds how long an idle session survives.
func NewStore(client redis.UniversalClient, prefix, keyName string, lifetime time.Duration) *Store {
	return &Store{
		redis:    client,
		prefix:   prefix,
		keyName:  keyName,
		lifetime: lifetime,
	}
}

// NewID generates a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

func (s *Store) identityKey(sid string) string {
	return s.prefix + ":" + sid + ":" + s.keyName
}

func (s *Store) failureKey(sid string) string {
	return s.identityKey(sid) + failureSuffix
}

func (s *Store) ticketKey(jti string) string {
	return s.prefix + ":ticket:" + jti
}

// Username returns the username stored for the session, with ok=false
// when the session holds no identity.
func (s *Store) Username(ctx context.Context, sid string) (string, bool, error) {
	username, err := s.redis.Get(ctx, s.identityKey(sid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return username, true, nil
}

// SetUsername stores the logged-in username for the session and renews
// its lifetime.
func (s *Store) SetUsername(ctx context.Context, sid, username string) error {
	if err := s.redis.Set(ctx, s.identityKey(sid), username, s.lifetime).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Clear removes the session's stored identity. Idempotent.
func (s *Store) Clear(ctx context.Context, sid string) error {
	if err := s.redis.Del(ctx, s.identityKey(sid)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Failures returns the session's invalid-login counter.
func (s *Store) Failures(ctx context.Context, sid string) (int, error) {
	count, err := s.redis.Get(ctx, s.failureKey(sid)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// IncrFailures increments the invalid-login counter and returns the new
// value. The counter expires with the session lifetime.
func (s *Store) IncrFailures(ctx context.Context, sid string) (int, error) {
	key := s.failureKey(sid)

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 && s.lifetime > 0 {
		if err := s.redis.Expire(ctx, key, s.lifetime).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return int(count), nil
}

// ResetFailures clears the invalid-login counter. Idempotent.
func (s *Store) ResetFailures(ctx context.Context, sid string) error {
	if err := s.redis.Del(ctx, s.failureKey(sid)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Regenerate atomically moves the session's state to a freshly
// generated identifier and returns it. The old identifier stops
// resolving in the same call, closing the session-fixation window.
func (s *Store) Regenerate(ctx context.Context, sid string) (string, error) {
	newSID := NewID()

	keys := []string{
		s.identityKey(sid),
		s.failureKey(sid),
		s.identityKey(newSID),
		s.failureKey(newSID),
	}
	if err := regenerateLua.Run(ctx, s.redis, keys, s.lifetime.Milliseconds()).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return newSID, nil
}

// ConsumeTicket marks a one-time ticket id as used. Returns true on the
// first call for a given id within ttl and false on every replay.
func (s *Store) ConsumeTicket(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}

	ok, err := s.redis.SetNX(ctx, s.ticketKey(jti), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
