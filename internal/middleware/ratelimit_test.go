package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/ticket-booking-core/internal/config"
)

func TestBucketForSplitsReadsAndWrites(t *testing.T) {
	cfg := config.RateLimitConfig{
		Read:  config.Bucket{Capacity: 60, RefillEvery: time.Second},
		Write: config.Bucket{Capacity: 5, RefillEvery: 2 * time.Second},
	}
	class, b := bucketFor(cfg, http.MethodGet)
	assert.Equal(t, "read", class)
	assert.Equal(t, 60, b.Capacity)

	for _, m := range []string{http.MethodPost, http.MethodDelete} {
		class, b = bucketFor(cfg, m)
		assert.Equal(t, "write", class)
		assert.Equal(t, 5, b.Capacity)
	}
}

func TestRateKeyPrefersSubjectOverIP(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.7")
	c := e.NewContext(req, httptest.NewRecorder())

	assert.Equal(t, "rl:write:ip:203.0.113.7", rateKey("rl", "write", c))
	c.Set(KeyUserID, "alice")
	assert.Equal(t, "rl:write:user:alice", rateKey("rl", "write", c))
}

func TestMiddlewaresPassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil),
		NewRedisCache(config.CacheConfig{Enabled: true, TTL: time.Second}, nil, nil),
	)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestCacheKeyUsesPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/events/ev-1/seats?x=1", nil)
	assert.Equal(t, "seatmap:/v1/events/ev-1/seats", CacheKey("seatmap", req))
}
