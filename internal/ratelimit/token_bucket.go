package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	errNotConfigured = errors.New("rate limiter not configured")
	errInvalidLimit  = errors.New("rate limiter key, rate and burst are required")
)

// takeTokenScript refills the bucket from the Redis clock, takes one token
// when available and otherwise reports how many milliseconds remain until
// the next one.
//
// KEYS[1] bucket; ARGV rate per second, burst, ttl ms.
// Returns {allowed, wait_ms}.
const takeTokenScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) * rate / 1000)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {allowed, wait}
`

// TokenBucket is a Redis-backed bucket shared by every replica. It refills
// continuously at rate tokens per second up to burst.
type TokenBucket struct {
	client redis.UniversalClient
	script *redis.Script
}

type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

func NewTokenBucket(client redis.UniversalClient) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(takeTokenScript)}
}

// Allow takes one token from the bucket at key.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, errNotConfigured
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return Result{}, errInvalidLimit
	}

	reply, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, bucketTTL(rate, burst).Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(reply) != 2 {
		return Result{}, errors.New("unexpected rate limit script reply")
	}
	return Result{
		Allowed:    reply[0] == 1,
		RetryAfter: retryAfter(reply[1]),
	}, nil
}

// bucketTTL keeps an idle bucket around for twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(2 * float64(burst) / rate)
	return time.Duration(math.Max(seconds, 1)) * time.Second
}

// retryAfter rounds up to whole seconds for the Retry-After header.
func retryAfter(waitMS int64) time.Duration {
	if waitMS <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(float64(waitMS)/1000)) * time.Second
}
