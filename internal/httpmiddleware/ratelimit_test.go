package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4")
		assert.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := l.Allow(ctx, "1.2.3.4")
	assert.False(t, ok, "bucket should be empty")

	ok, _ = l.Allow(ctx, "5.6.7.8")
	assert.True(t, ok, "other keys have their own bucket")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "1.2.3.4")
	assert.True(t, ok, "one token refilled after a second at 60/min")
	ok, _ = l.Allow(ctx, "1.2.3.4")
	assert.False(t, ok)
}

type stubLimiter struct {
	ok  bool
	err error
}

func (s stubLimiter) Allow(context.Context, string) (bool, error) { return s.ok, s.err }

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name    string
		limiter Limiter
		want    int
	}{
		{name: "allowed", limiter: stubLimiter{ok: true}, want: http.StatusOK},
		{name: "limited", limiter: stubLimiter{ok: false}, want: http.StatusTooManyRequests},
		{name: "limiter down fails open", limiter: stubLimiter{err: errors.New("dial tcp")}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(Middleware(tt.limiter, zap.NewNop()))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRedisWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 3, 9, 10, 0, 30, 0, time.UTC)
	l := NewRedisWindow(client, "", 3)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Other clients have their own counter.
	ok, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	key := "geoattend:ratelimit:10.0.0.1:" + strconv.FormatInt(now.Unix()/60, 10)
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "4", got)
	assert.Equal(t, 2*time.Minute, mr.TTL(key))

	now = now.Add(time.Minute)
	ok, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(key))
}

func TestRedisWindowUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisWindow(client, "rl", 3).Allow(context.Background(), "10.0.0.1")
	assert.Error(t, err)
}
