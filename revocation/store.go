package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/shopauth/internal"
)

var (
	// ErrUnavailable wraps any Redis failure.
	ErrUnavailable = errors.New("revocation store unavailable")
	// ErrMFAAttemptsExceeded is returned once the failure cap is reached.
	ErrMFAAttemptsExceeded = errors.New("mfa attempts exceeded")
)

const (
	DefaultPrefix         = "auth"
	DefaultMFAMaxFailures = 5
	DefaultMFAWindow      = 5 * time.Minute
)

// Replace the whitelisted hash only if it still equals the presented one.
const rotateRefreshScript = `
local current = redis.call("GET", KEYS[1])
if not current or current ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// Accept a TOTP step only if it is newer than the last accepted one.
const markStepScript = `
local last = redis.call("GET", KEYS[1])
if last and tonumber(last) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`

var markStepLua = redis.NewScript(markStepScript)

type Config struct {
	Prefix         string
	MFAMaxFailures int
	MFAWindow      time.Duration
}

// Store is safe for concurrent use; all state lives in Redis.
type Store struct {
	redis  redis.UniversalClient
	config Config
}

func New(client redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.MFAMaxFailures <= 0 {
		cfg.MFAMaxFailures = DefaultMFAMaxFailures
	}
	if cfg.MFAWindow <= 0 {
		cfg.MFAWindow = DefaultMFAWindow
	}
	return &Store{redis: client, config: cfg}
}

func (s *Store) key(parts ...string) string {
	k := s.config.Prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// SetWithExpiry writes a namespaced key.
func (s *Store) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Get reads a namespaced key. A missing key is not an error.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.redis.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, unavailable(err)
	}
	return v, true, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.redis.Del(ctx, full...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) refreshKey(userID string) string {
	return s.key("refreshToken", userID)
}

// SetRefresh whitelists token as the user's only valid refresh token,
// replacing whatever was there.
func (s *Store) SetRefresh(ctx context.Context, userID, token string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.refreshKey(userID), internal.HashToken(token), ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// MatchRefresh reports whether token is the user's whitelisted refresh token.
func (s *Store) MatchRefresh(ctx context.Context, userID, token string) (bool, error) {
	current, err := s.redis.Get(ctx, s.refreshKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, unavailable(err)
	}
	return current == internal.HashToken(token), nil
}

// RotateRefresh atomically swaps presented for next. It returns false when
// presented is no longer the whitelisted token, so of two concurrent rotations
// of the same token at most one succeeds.
func (s *Store) RotateRefresh(ctx context.Context, userID, presented, next string, ttl time.Duration) (bool, error) {
	res, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.refreshKey(userID)},
		internal.HashToken(presented),
		internal.HashToken(next),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return res == 1, nil
}

func (s *Store) DeleteRefresh(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.refreshKey(userID)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) accessKey(jti string) string {
	return s.key("jwt", "revoked", jti)
}

// RevokeAccess blacklists a session id until the token would have expired.
// A non-positive ttl means the token is already dead and nothing is written.
func (s *Store) RevokeAccess(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.accessKey(jti), "1", ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) IsAccessRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.accessKey(jti)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (s *Store) resetKey(token string) string {
	return s.key("passwordReset", internal.HashToken(token))
}

// SaveResetToken stores the hash of a reset token mapped to its user.
func (s *Store) SaveResetToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.resetKey(token), userID, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// ConsumeResetToken returns the user id bound to token and deletes it in the
// same round trip. A second call for the same token reports ok=false.
func (s *Store) ConsumeResetToken(ctx context.Context, token string) (string, bool, error) {
	userID, err := s.redis.GetDel(ctx, s.resetKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, unavailable(err)
	}
	return userID, true, nil
}

func (s *Store) mfaKey(userID string) string {
	return s.key("mfa", userID)
}

// CheckMFAAttempts fails with ErrMFAAttemptsExceeded while the user is capped.
func (s *Store) CheckMFAAttempts(ctx context.Context, userID string) error {
	count, err := s.redis.Get(ctx, s.mfaKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return unavailable(err)
	}
	if count >= int64(s.config.MFAMaxFailures) {
		return ErrMFAAttemptsExceeded
	}
	return nil
}

// RecordMFAFailure counts a failed code. The window starts at the first failure.
func (s *Store) RecordMFAFailure(ctx context.Context, userID string) error {
	key := s.mfaKey(userID)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return unavailable(err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, s.config.MFAWindow).Err(); err != nil {
			return unavailable(err)
		}
	}
	if count >= int64(s.config.MFAMaxFailures) {
		return ErrMFAAttemptsExceeded
	}
	return nil
}

func (s *Store) ResetMFAFailures(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.mfaKey(userID)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// MFAChallenge is a login that passed the password check and waits for a
// TOTP code. It is bound to the tenant the login was made against.
type MFAChallenge struct {
	UserID   string `json:"uid"`
	TenantID string `json:"tid"`
}

func (s *Store) challengeKey(id string) string {
	return s.key("mfaChallenge", internal.HashToken(id))
}

// SaveMFAChallenge stores c under the hash of the opaque challenge id.
func (s *Store) SaveMFAChallenge(ctx context.Context, id string, c MFAChallenge, ttl time.Duration) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.challengeKey(id), raw, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// MFAChallenge reads a pending challenge without consuming it.
func (s *Store) MFAChallenge(ctx context.Context, id string) (MFAChallenge, bool, error) {
	return s.readChallenge(s.redis.Get(ctx, s.challengeKey(id)))
}

// ConsumeMFAChallenge reads and deletes a challenge in one round trip. Of two
// concurrent calls for the same id at most one gets ok=true.
func (s *Store) ConsumeMFAChallenge(ctx context.Context, id string) (MFAChallenge, bool, error) {
	return s.readChallenge(s.redis.GetDel(ctx, s.challengeKey(id)))
}

func (s *Store) DeleteMFAChallenge(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.challengeKey(id)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) readChallenge(cmd *redis.StringCmd) (MFAChallenge, bool, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return MFAChallenge{}, false, nil
		}
		return MFAChallenge{}, false, unavailable(err)
	}
	var c MFAChallenge
	if err := json.Unmarshal(raw, &c); err != nil || c.UserID == "" {
		return MFAChallenge{}, false, nil
	}
	return c, true, nil
}

// MarkTOTPStep records step as used for the user's secret. It returns false
// when that step or a later one was already accepted, so a code cannot be
// used twice while it is still inside the skew window.
func (s *Store) MarkTOTPStep(ctx context.Context, userID, secret string, step uint64, ttl time.Duration) (bool, error) {
	key := s.key("totpStep", userID, internal.HashToken(secret)[:16])
	res, err := markStepLua.Run(ctx, s.redis, []string{key}, step, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return res == 1, nil
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
