package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/subkit/internal/config"
	"go.uber.org/zap"
)

const (
	keyLoginEmail = "subkit:ratelimit:login:email:%s"
	keyLoginIP    = "subkit:ratelimit:login:ip:%s"
)

// LoginLimiter throttles credential attempts per email and per client IP.
// A nil limiter or one without Redis allows everything.
type LoginLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewLoginLimiter(client *redis.Client, cfg config.Config, log *zap.Logger) *LoginLimiter {
	if client == nil || cfg.LoginRateBurst <= 0 {
		return &LoginLimiter{log: log}
	}
	return &LoginLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.LoginRatePerSecond,
		burst:  cfg.LoginRateBurst,
		log:    log.Named("ratelimit"),
	}
}

func (l *LoginLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowLogin reports whether another attempt may proceed and, if not, how
// long the caller should wait. Redis failures fail open.
func (l *LoginLimiter) AllowLogin(ctx context.Context, email, ip string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}

	keys := []string{}
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		keys = append(keys, fmt.Sprintf(keyLoginEmail, email))
	}
	if ip = strings.TrimSpace(ip); ip != "" {
		keys = append(keys, fmt.Sprintf(keyLoginIP, ip))
	}

	for _, key := range keys {
		res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
		if err != nil {
			l.log.Warn("login rate limit check failed", zap.Error(err))
			continue
		}
		if !res.Allowed {
			return false, res.RetryAfter
		}
	}
	return true, 0
}
