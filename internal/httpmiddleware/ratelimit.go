package httpmiddleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter decides whether key may make another request now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Middleware enforces l per client IP. Limiter errors fail open.
func Middleware(l Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		ok, err := l.Allow(c.Request.Context(), ip)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// TokenBucket is an in-memory per-key limiter refilled at perMinute.
type TokenBucket struct {
	capacity  float64
	perMinute float64
	mu        sync.Mutex
	state     map[string]*bucket
	now       func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a limiter holding capacity tokens, refilled at perMinute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity:  float64(capacity),
		perMinute: float64(perMinute),
		state:     make(map[string]*bucket),
		now:       time.Now,
	}
}

// Allow spends one token for key if one is available.
func (l *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.state[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.state[key] = b
	}
	b.tokens += now.Sub(b.last).Minutes() * l.perMinute
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.last = now
	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// RedisWindow is a fixed one-minute window counter shared by every API replica.
type RedisWindow struct {
	client    *redis.Client
	prefix    string
	perMinute int64
	now       func() time.Time
}

// NewRedisWindow creates a limiter allowing perMinute requests per key per minute.
func NewRedisWindow(client *redis.Client, prefix string, perMinute int) *RedisWindow {
	if prefix == "" {
		prefix = "geoattend:ratelimit"
	}
	return &RedisWindow{client: client, prefix: prefix, perMinute: int64(perMinute), now: time.Now}
}

// Allow increments the key's counter for the current minute.
func (l *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	window := l.now().Unix() / 60
	k := l.prefix + ":" + key + ":" + strconv.FormatInt(window, 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= l.perMinute, nil
}
