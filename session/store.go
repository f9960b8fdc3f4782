package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultTombstoneTTL bounds a family tombstone when the family index has no TTL to copy.
const defaultTombstoneTTL = 24 * time.Hour

// Shared Lua helpers. Record blobs carry the revoked flag at byte 2 and the
// family id length at byte 23 (see encoder.go).
const luaHelpers = `
local function flip(key)
  local data = redis.call("GET", key)
  if not data or #data < 23 or string.byte(data, 2) ~= 0 then
    return 0
  end
  local updated = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
  local ttl = redis.call("PTTL", key)
  if ttl > 0 then
    redis.call("SET", key, updated, "PX", ttl)
  else
    redis.call("SET", key, updated)
  end
  return 1
end

local function revoke_family(record_prefix, family_key, tomb_key, fallback_ttl)
  local ttl = redis.call("PTTL", family_key)
  if ttl <= 0 then
    ttl = fallback_ttl
  end
  redis.call("SET", tomb_key, "1", "PX", ttl)
  local count = 0
  for _, hash in ipairs(redis.call("SMEMBERS", family_key)) do
    count = count + flip(record_prefix .. hash)
  end
  return count
end
`

const insertRecordScript = `
local record_key = KEYS[1]
local family_key = KEYS[2]
local user_key = KEYS[3]
local tomb_key = KEYS[4]
local blob = ARGV[1]
local ttl = tonumber(ARGV[2])

if redis.call("EXISTS", record_key) == 1 then
  return 0
end

if redis.call("EXISTS", tomb_key) == 1 then
  blob = string.sub(blob, 1, 1) .. string.char(1) .. string.sub(blob, 3)
end

redis.call("SET", record_key, blob, "PX", ttl)
redis.call("SADD", family_key, ARGV[3])
if redis.call("PTTL", family_key) < ttl then
  redis.call("PEXPIRE", family_key, ttl)
end
redis.call("SADD", user_key, ARGV[4])
if redis.call("PTTL", user_key) < ttl then
  redis.call("PEXPIRE", user_key, ttl)
end
return 1
`

const markRevokedScript = luaHelpers + `
return flip(KEYS[1])
`

const revokeFamilyScript = luaHelpers + `
return revoke_family(ARGV[1], KEYS[1], KEYS[2], tonumber(ARGV[2]))
`

const revokeUserScript = luaHelpers + `
local total = 0
for _, family in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  total = total + revoke_family(ARGV[1], ARGV[2] .. family, ARGV[3] .. family, tonumber(ARGV[4]))
end
return total
`

const deleteRecordScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
redis.call("DEL", KEYS[1])
local family_len = string.byte(data, 23)
if family_len and #data >= 23 + family_len then
  redis.call("SREM", ARGV[2] .. string.sub(data, 24, 23 + family_len), ARGV[1])
end
return 1
`

var (
	insertRecordLua = redis.NewScript(insertRecordScript)
	markRevokedLua  = redis.NewScript(markRevokedScript)
	revokeFamilyLua = redis.NewScript(revokeFamilyScript)
	revokeUserLua   = redis.NewScript(revokeUserScript)
	deleteRecordLua = redis.NewScript(deleteRecordScript)
)

// RedisStore is a Redis-backed [Store]. Each mutation runs as one Lua script,
// so the conditional revoke and the family cascade are atomic per call.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	grace  time.Duration
}

// NewRedisStore creates a [RedisStore] under prefix. Records are kept for
// grace beyond their expiry so late replays still hit the reuse path.
func NewRedisStore(client redis.UniversalClient, prefix string, grace time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "rt"
	}
	if grace < 0 {
		grace = 0
	}
	return &RedisStore{redis: client, prefix: prefix, grace: grace}
}

func (s *RedisStore) recordPrefix() string { return s.prefix + ":rt:" }
func (s *RedisStore) familyPrefix() string { return s.prefix + ":fam:" }
func (s *RedisStore) tombstonePrefix() string { return s.prefix + ":famrev:" }

func (s *RedisStore) recordKey(hash string) string { return s.recordPrefix() + hash }
func (s *RedisStore) familyKey(familyID string) string { return s.familyPrefix() + familyID }
func (s *RedisStore) tombstoneKey(familyID string) string { return s.tombstonePrefix() + familyID }
func (s *RedisStore) userKey(userID string) string { return s.prefix + ":uf:" + userID }

// GetByHash loads a record with a single GET.
func (s *RedisStore) GetByHash(ctx context.Context, hash string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rec.TokenHash = hash
	return rec, nil
}

// Insert stores a new record and indexes it under its family and user.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) Insert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	data, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	ttl := recordTTL(rec, s.grace)

	res, err := insertRecordLua.Run(
		ctx,
		s.redis,
		[]string{
			s.recordKey(rec.TokenHash),
			s.familyKey(rec.FamilyID),
			s.userKey(rec.UserID),
			s.tombstoneKey(rec.FamilyID),
		},
		data,
		ttl.Milliseconds(),
		rec.TokenHash,
		rec.FamilyID,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res == 0 {
		return ErrDuplicate
	}
	return nil
}

// recordTTL is the record's own lifetime plus grace. It is measured between
// the record's timestamps so a caller clock that differs from Redis or from
// this host never shortens it.
func recordTTL(rec *Record, grace time.Duration) time.Duration {
	ttl := rec.ExpiresAt.Sub(rec.IssuedAt) + grace
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// MarkRevokedIfActive flips the revoked byte only if it is still zero.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-set).
//	Security: exactly one concurrent caller observes true.
func (s *RedisStore) MarkRevokedIfActive(ctx context.Context, hash string) (bool, error) {
	res, err := markRevokedLua.Run(ctx, s.redis, []string{s.recordKey(hash)}).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res == 1, nil
}

// RevokeFamily tombstones the family and revokes every indexed record.
func (s *RedisStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	res, err := revokeFamilyLua.Run(
		ctx,
		s.redis,
		[]string{s.familyKey(familyID), s.tombstoneKey(familyID)},
		s.recordPrefix(),
		defaultTombstoneTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(res), nil
}

// RevokeAllForUser revokes every family the user has logged in with.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	res, err := revokeUserLua.Run(
		ctx,
		s.redis,
		[]string{s.userKey(userID)},
		s.recordPrefix(),
		s.familyPrefix(),
		s.tombstonePrefix(),
		defaultTombstoneTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(res), nil
}

// DeleteByHash removes a record and its family index entry. Missing records are ignored.
func (s *RedisStore) DeleteByHash(ctx context.Context, hash string) error {
	if _, err := deleteRecordLua.Run(ctx, s.redis, []string{s.recordKey(hash)}, hash, s.familyPrefix()).Result(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
