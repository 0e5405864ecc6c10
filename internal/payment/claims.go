package payment

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClaimStore records which transactions have already paid for a booking.
// Claim returns false when the transaction was claimed before. Release
// undoes a claim whose booking did not complete.
type ClaimStore interface {
	Claim(ctx context.Context, transactionID string, until time.Time) (bool, error)
	Release(ctx context.Context, transactionID string) error
}

// MemoryClaims is a process-local ClaimStore.
type MemoryClaims struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{claims: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryClaims) Claim(_ context.Context, transactionID string, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.claims {
		if !exp.After(now) {
			delete(m.claims, id)
		}
	}
	if _, ok := m.claims[transactionID]; ok {
		return false, nil
	}
	m.claims[transactionID] = until
	return true, nil
}

func (m *MemoryClaims) Release(_ context.Context, transactionID string) error {
	m.mu.Lock()
	delete(m.claims, transactionID)
	m.mu.Unlock()
	return nil
}

// RedisClaims keeps claims as keys that expire with the proof; once a proof
// has expired the verifier rejects it anyway, so the key is no longer needed.
type RedisClaims struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisClaims(rdb *redis.Client, prefix string) *RedisClaims {
	return &RedisClaims{rdb: rdb, prefix: prefix}
}

func (r *RedisClaims) key(transactionID string) string {
	return r.prefix + ":proof:" + transactionID
}

func (r *RedisClaims) Claim(ctx context.Context, transactionID string, until time.Time) (bool, error) {
	ttl := time.Until(until)
	if ttl < time.Second {
		ttl = time.Second
	}
	return r.rdb.SetNX(ctx, r.key(transactionID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (r *RedisClaims) Release(ctx context.Context, transactionID string) error {
	return r.rdb.Del(ctx, r.key(transactionID)).Err()
}
