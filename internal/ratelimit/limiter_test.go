package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/subkit/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLoginLimiterWithoutRedisAllows(t *testing.T) {
	l := NewLoginLimiter(nil, config.Config{LoginRateBurst: 5, LoginRatePerSecond: 1}, zap.NewNop())
	assert.False(t, l.Enabled())

	ok, wait := l.AllowLogin(context.Background(), "a@example.com", "127.0.0.1")
	assert.True(t, ok)
	assert.Zero(t, wait)
}

func TestNilLoginLimiterAllows(t *testing.T) {
	var l *LoginLimiter
	ok, _ := l.AllowLogin(context.Background(), "a@example.com", "")
	assert.True(t, ok)
}

func TestRetryAfterRoundsUpToSeconds(t *testing.T) {
	assert.Zero(t, retryAfter(0))
	assert.Equal(t, time.Second, retryAfter(1))
	assert.Equal(t, 5*time.Second, retryAfter(4001))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, bucketTTL(1, 10))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}
