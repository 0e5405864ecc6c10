package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-booking-core/internal/config"
)

// tokenBucket refills whole tokens for every elapsed interval, takes one if
// available and reports {allowed, remaining, retry_after_ms}. State lives in
// a hash so all API instances share it.
var tokenBucket = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local every = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local state = redis.call('HMGET', KEYS[1], 'tokens', 'at')
	local tokens = tonumber(state[1]) or capacity
	local at = tonumber(state[2]) or now

	local steps = math.floor(math.max(0, now - at) / every)
	if steps > 0 then
		tokens = math.min(capacity, tokens + steps)
		at = at + steps * every
	end

	local allowed, retry = 0, 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry = math.max(0, every - (now - at))
	end

	redis.call('HSET', KEYS[1], 'tokens', tokens, 'at', at)
	redis.call('EXPIRE', KEYS[1], ttl)
	return {allowed, tokens, retry}
`)

// NewTokenBucket limits each caller with the read or write bucket of cfg,
// chosen by request method. Callers are identified by token subject, or by
// client IP before authentication. Redis errors let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log logrus.FieldLogger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			class, bucket := bucketFor(cfg, c.Request().Method)
			key := rateKey(cfg.Prefix, class, c)

			res, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(),
				bucket.Capacity,
				bucket.RefillEvery.Milliseconds(),
				int64(cfg.TTL/time.Second),
			).Int64Slice()
			if err != nil || len(res) != 3 {
				log.WithError(err).WithField("key", key).Warn("rate limit check failed")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(bucket.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if res[0] == 1 {
				return next(c)
			}

			secs := int(math.Ceil(float64(res[2]) / 1000))
			h.Set("Retry-After", strconv.Itoa(secs))
			log.WithFields(logrus.Fields{"key": key, "retry_after": secs}).Debug("rate limited")
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"kind":        "too_many_requests",
				"retry_after": secs,
			})
		}
	}
}

func bucketFor(cfg config.RateLimitConfig, method string) (string, config.Bucket) {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read", cfg.Read
	}
	return "write", cfg.Write
}

func rateKey(prefix, class string, c echo.Context) string {
	if uid := UserID(c); uid != "" {
		return prefix + ":" + class + ":user:" + uid
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return prefix + ":" + class + ":ip:" + ip
}
