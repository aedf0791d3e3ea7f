package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix = "clouddrive:token:"
	linkKeyPrefix  = "clouddrive:link:"
	userKeyPrefix  = "clouddrive:user-tokens:"
)

func tokenKey(token string) string  { return tokenKeyPrefix + token }
func linkKey(subject string) string { return linkKeyPrefix + subject }
func userKey(userID string) string  { return userKeyPrefix + userID }

// record is the JSON value stored under a token key. Field names are read by
// the Lua scripts below.
type record struct {
	Token     string     `json:"token"`
	Kind      string     `json:"kind"`
	UserID    string     `json:"user_id"`
	Subject   string     `json:"subject"`
	ClientID  string     `json:"client_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toRecord(t *models.AccessToken) record {
	return record{
		Token: t.Token, Kind: string(t.Kind), UserID: t.UserID, Subject: t.Subject,
		ClientID: t.ClientID, ExpiresAt: t.ExpiresAt, CreatedAt: t.CreatedAt,
	}
}

func (r record) model() *models.AccessToken {
	return &models.AccessToken{
		Token: r.Token, Kind: models.TokenKind(r.Kind), UserID: r.UserID, Subject: r.Subject,
		ClientID: r.ClientID, ExpiresAt: r.ExpiresAt, CreatedAt: r.CreatedAt,
	}
}

func encodeRecord(t *models.AccessToken) (string, error) {
	b, err := json.Marshal(toRecord(t))
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return string(b), nil
}

func decodeRecord(s string) (*models.AccessToken, error) {
	var r record
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return r.model(), nil
}

// ttlMillis is the redis expiry for t; 0 means no expiry.
func ttlMillis(t *models.AccessToken, now time.Time) int64 {
	if t.ExpiresAt == nil {
		return 0
	}
	ms := t.ExpiresAt.Sub(now).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

// expiryScore orders a token in its user index by expiry in unix millis.
// Permanent tokens sort last.
func expiryScore(t *models.AccessToken) float64 {
	if t.ExpiresAt == nil {
		return math.Inf(1)
	}
	return float64(t.ExpiresAt.UnixMilli())
}

// scoreArg renders a score the way ZADD and ZREMRANGEBYSCORE accept it.
func scoreArg(f float64) string {
	if math.IsInf(f, 1) {
		return "+inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// expiredMax is the inclusive upper score of entries expired at now.
func expiredMax(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// KEYS: link key, new token key, user index key.
// ARGV: token, json, ttl ms, token key prefix, expiry score.
var replaceLinkScript = redis.NewScript(`
local old = redis.call('GET', KEYS[1])
if old then
  redis.call('DEL', ARGV[4] .. old)
  redis.call('ZREM', KEYS[3], old)
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[2], ARGV[2])
  redis.call('SET', KEYS[1], ARGV[1])
end
redis.call('ZADD', KEYS[3], ARGV[5], ARGV[1])
return 1
`)

// KEYS: token key. ARGV: kind, link key prefix, user key prefix.
var takeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return false end
local t = cjson.decode(v)
if t.kind ~= ARGV[1] then return false end
redis.call('DEL', KEYS[1])
redis.call('ZREM', ARGV[3] .. t.user_id, t.token)
local lk = ARGV[2] .. t.subject
if redis.call('GET', lk) == t.token then redis.call('DEL', lk) end
return v
`)

// KEYS: token key. ARGV: link key prefix, user key prefix.
var deleteScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local t = cjson.decode(v)
redis.call('DEL', KEYS[1])
redis.call('ZREM', ARGV[2] .. t.user_id, t.token)
local lk = ARGV[1] .. t.subject
if redis.call('GET', lk) == t.token then redis.call('DEL', lk) end
return 1
`)

// RedisStore keeps tokens in redis with native key expiry. Each user has a
// sorted set of token ids scored by expiry, pruned by DeleteExpired. Multi-key
// updates run as Lua scripts, which redis executes atomically.
type RedisStore struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func (s *RedisStore) Save(ctx context.Context, t *models.AccessToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	b, err := encodeRecord(t)
	if err != nil {
		return err
	}
	ttl := time.Duration(ttlMillis(t, s.now())) * time.Millisecond

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, tokenKey(t.Token), b, ttl)
	pipe.ZAdd(ctx, userKey(t.UserID), redis.Z{Score: expiryScore(t), Member: t.Token})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (s *RedisStore) ReplaceLink(ctx context.Context, t *models.AccessToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	b, err := encodeRecord(t)
	if err != nil {
		return err
	}
	keys := []string{linkKey(t.Subject), tokenKey(t.Token), userKey(t.UserID)}
	if err := replaceLinkScript.Run(ctx, s.rdb, keys, t.Token, b, ttlMillis(t, s.now()), tokenKeyPrefix, scoreArg(expiryScore(t))).Err(); err != nil {
		return fmt.Errorf("redis replace link: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (*models.AccessToken, error) {
	v, err := s.rdb.Get(ctx, tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeRecord(v)
}

func (s *RedisStore) Take(ctx context.Context, token string, kind models.TokenKind) (*models.AccessToken, error) {
	v, err := takeScript.Run(ctx, s.rdb, []string{tokenKey(token)}, string(kind), linkKeyPrefix, userKeyPrefix).Text()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis take: %w", err)
	}
	return decodeRecord(v)
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := deleteScript.Run(ctx, s.rdb, []string{tokenKey(token)}, linkKeyPrefix, userKeyPrefix).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteLinks(ctx context.Context, subject string) error {
	tok, err := s.rdb.Get(ctx, linkKey(subject)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get link: %w", err)
	}
	return s.Delete(ctx, tok)
}

func (s *RedisStore) DeleteByUser(ctx context.Context, userID string) error {
	members, err := s.rdb.ZRange(ctx, userKey(userID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis members: %w", err)
	}
	for _, tok := range members {
		if err := s.Delete(ctx, tok); err != nil {
			return err
		}
	}
	return s.rdb.Del(ctx, userKey(userID)).Err()
}

// DeleteExpired prunes the user indexes. The token keys themselves expire
// natively.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	iter := s.rdb.Scan(ctx, 0, userKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := s.rdb.ZRemRangeByScore(ctx, iter.Val(), "-inf", expiredMax(now)).Result()
		if err != nil {
			return total, fmt.Errorf("redis prune %s: %w", iter.Val(), err)
		}
		total += n
	}
	if err := iter.Err(); err != nil {
		return total, fmt.Errorf("redis scan: %w", err)
	}
	return total, nil
}
