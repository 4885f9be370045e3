// Package ratelimit implements the sharded, adaptive, and database-backed
// token-bucket rate limiters (§4.2). A single token bucket under high
// concurrency becomes a contention point, so capacity is partitioned across
// shards; callers hash to a primary shard and a secondary, attempting
// primary first — power-of-two choices.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// bucket is a single token bucket: capacity refills continuously at a fixed
// rate per second, capped at burst size. The balance can go negative through
// charge (per §4.2's adaptive variant) and refills from there.
type bucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	ratePerSec float64
	lastRefill time.Time
}

func newBucket(capacity, ratePerSec float64) *bucket {
	return &bucket{
		capacity:   capacity,
		tokens:     capacity,
		ratePerSec: ratePerSec,
		lastRefill: time.Now(),
	}
}

func (b *bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.ratePerSec)
	b.lastRefill = now
}

// tryTake attempts to remove count tokens, returning ok and the remaining
// balance. On failure it also returns the wait until count tokens would be
// available.
func (b *bucket) tryTake(count float64) (ok bool, remaining float64, retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())

	if b.tokens >= count {
		b.tokens -= count
		return true, b.tokens, 0
	}
	if b.ratePerSec <= 0 {
		return false, b.tokens, time.Duration(math.MaxInt64)
	}
	deficit := count - b.tokens
	wait := time.Duration(deficit / b.ratePerSec * float64(time.Second))
	return false, b.tokens, wait
}

// charge adjusts the balance directly (can be negative, per the adaptive
// variant's "charge negative tokens ... to delay recovery").
func (b *bucket) charge(delta float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	b.tokens = math.Min(b.capacity, b.tokens+delta)
}

func (b *bucket) setRate(ratePerSec, capacity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	b.ratePerSec = ratePerSec
	b.capacity = capacity
	if b.tokens > capacity {
		b.tokens = capacity
	}
}

func (b *bucket) rate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ratePerSec
}

func (b *bucket) snapshot() (tokens, capacity, ratePerSec float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return b.tokens, b.capacity, b.ratePerSec
}
