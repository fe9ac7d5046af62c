package httpx

import (
	"io"
	"log/slog"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	assert.True(t, rl.Allow("k", 2, time.Minute).allowed)
	assert.True(t, rl.Allow("k", 2, time.Minute).allowed)
	d := rl.Allow("k", 2, time.Minute)
	assert.False(t, d.allowed)
	assert.Equal(t, 2, d.count)
	assert.True(t, rl.Allow("other", 2, time.Minute).allowed)
	assert.True(t, rl.Allow("k", 0, time.Minute).allowed, "zero limit disables limiting")
}

func TestMemoryRateLimiterExpires(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	assert.True(t, rl.Allow("k", 1, 20*time.Millisecond).allowed)
	assert.False(t, rl.Allow("k", 1, 20*time.Millisecond).allowed)
	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("k", 1, 20*time.Millisecond).allowed)
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	rl := newRedisRateLimiter(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer rl.Close()

	assert.True(t, rl.Allow("k", 1, time.Minute).allowed)
	assert.True(t, rl.Allow("k", 1, time.Minute).allowed)
}

func TestRateMetricKey(t *testing.T) {
	assert.Equal(t, "operator", rateMetricKey("operator:ops"))
	assert.Equal(t, "ip", rateMetricKey("ip:10.0.0.1"))
	assert.Equal(t, "unknown", rateMetricKey(""))
}
