package config

import "time"

// Bucket is one token bucket: Capacity requests in a burst, then one more
// every RefillEvery.
type Bucket struct {
	Capacity    int
	RefillEvery time.Duration
}

// RateLimitConfig configures per-caller limits on the authenticated API.
// Reads (tickets, QR images) and writes (book, confirm, cancel) draw from
// separate buckets so a holder polling their tickets cannot starve their own
// booking attempt, and booking bursts stay small.
type RateLimitConfig struct {
	Enabled bool
	Prefix  string
	Read    Bucket
	Write   Bucket
	TTL     time.Duration // idle bucket state expires after this
}

func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		Prefix:  envStr("RATE_LIMIT_PREFIX", "rl"),
		Read: Bucket{
			Capacity:    envInt("RATE_LIMIT_READ_BURST", 60),
			RefillEvery: envDur("RATE_LIMIT_READ_REFILL_EVERY", time.Second),
		},
		Write: Bucket{
			Capacity:    envInt("RATE_LIMIT_WRITE_BURST", 5),
			RefillEvery: envDur("RATE_LIMIT_WRITE_REFILL_EVERY", 2*time.Second),
		},
		TTL: envDur("RATE_LIMIT_TTL", 10*time.Minute),
	}
	cfg.Read = cfg.Read.clamped()
	cfg.Write = cfg.Write.clamped()
	// state must outlive a full refill of the slowest bucket
	for _, b := range []Bucket{cfg.Read, cfg.Write} {
		if min := time.Duration(b.Capacity) * b.RefillEvery; cfg.TTL < min {
			cfg.TTL = min
		}
	}
	return cfg
}

func (b Bucket) clamped() Bucket {
	if b.Capacity < 1 {
		b.Capacity = 1
	}
	if b.RefillEvery <= 0 {
		b.RefillEvery = time.Second
	}
	return b
}
