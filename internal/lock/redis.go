package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// releaseScript deletes the lock key only while it still carries our token,
// so an expired lock re-acquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// Redis is a Locker backed by SET NX PX on a single Redis node. It lets
// several API instances share one inventory store. The TTL bounds how long a
// crashed holder can block others; critical sections must finish well
// within it.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	log    logrus.FieldLogger
}

// NewRedis returns a Redis locker. Keys are stored as prefix + ":" + key.
func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration, log logrus.FieldLogger) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl, retry: 5 * time.Millisecond, log: log}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if r.rdb == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	full := r.prefix + ":" + key
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	wait := r.retry
	for {
		ok, err := r.rdb.SetNX(ctx, full, token, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		if wait < 100*time.Millisecond {
			wait *= 2
		}
	}
	return func() {
		// Release on a fresh context so a cancelled request still frees the key.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.rdb, []string{full}, token).Err(); err != nil {
			r.log.WithError(err).WithField("key", full).Warn("lock release failed; key will expire")
		}
	}, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
