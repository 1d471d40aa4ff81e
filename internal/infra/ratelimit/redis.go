package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docsign/internal/domain"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "docsign:ratelimit:"

// fixedWindowScript increments the window counter, arming its expiry on the
// first hit, and returns {hits, ttl_ms}.
var fixedWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {hits, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter shares fixed windows across replicas.
type RedisLimiter struct {
	client redis.Scripter
	clock  func() time.Time
}

func NewRedisLimiter(addr, password string, db int, now func() time.Time) (*RedisLimiter, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return NewRedisLimiterWithClient(client, now), nil
}

func NewRedisLimiterWithClient(client redis.Scripter, now func() time.Time) *RedisLimiter {
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, clock: now}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, period time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	ms := period.Milliseconds()
	if ms <= 0 {
		ms = 1000
	}
	reply, err := fixedWindowScript.Run(ctx, r.client, []string{redisKeyPrefix + key}, ms).Result()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	return decisionFromScript(reply, limit, r.clock())
}

func decisionFromScript(reply any, limit int, now time.Time) (domain.RateLimitDecision, error) {
	pair, ok := reply.([]any)
	if !ok || len(pair) != 2 {
		return domain.RateLimitDecision{}, errors.New("unexpected redis rate limit response")
	}
	hits, ok := pair[0].(int64)
	if !ok {
		return domain.RateLimitDecision{}, errors.New("invalid redis counter response")
	}
	resetAt := now
	if ttl, _ := pair[1].(int64); ttl > 0 {
		resetAt = now.Add(time.Duration(ttl) * time.Millisecond)
	}
	return decide(limit, hits, resetAt), nil
}
