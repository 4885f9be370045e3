package ratelimit

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

// AcquireResult is the outcome of Acquire (§4.2).
type AcquireResult struct {
	Allowed         bool
	TokensRemaining float64
	ShardID         int
	RetryAfter      time.Duration
}

// ShardOptions controls how shard count is derived from a target rate.
type ShardOptions struct {
	MinShards int
	MaxShards int
}

// OptimalShardCount returns floor(rate/10) rounded down to a power of two,
// minimum 1 (§4.2 "Why sharded").
func OptimalShardCount(ratePerSecond float64, opt ShardOptions) int {
	min := opt.MinShards
	if min < 1 {
		min = 1
	}
	max := opt.MaxShards
	if max < min {
		max = 1024
	}
	n := int(math.Floor(ratePerSecond / 10))
	if n < 1 {
		return min
	}
	pow := 1
	for pow*2 <= n {
		pow *= 2
	}
	if pow < min {
		pow = min
	}
	if pow > max {
		pow = max
	}
	return pow
}

// ShardedLimiter is a token-bucket rate limiter partitioned across N shards.
// A caller hashes to a primary shard and a distinct secondary, attempting
// primary first and falling back to secondary (power-of-two choices),
// denying only if both would starve (§4.2).
type ShardedLimiter struct {
	mu      sync.RWMutex
	shards  []*bucket
	rate    float64 // aggregate rate across all shards, requests/sec
	burst   float64 // aggregate burst

	reservationsMu sync.Mutex
	reservations   map[string]model.Reservation
}

// New constructs a ShardedLimiter for the given aggregate rate (requests or
// tokens per second) and burst size, sharded per OptimalShardCount.
func New(ratePerSecond, burst float64, opt ShardOptions) *ShardedLimiter {
	shardCount := OptimalShardCount(ratePerSecond, opt)
	perShardRate := ratePerSecond / float64(shardCount)
	perShardCapacity := burst / float64(shardCount)
	if perShardCapacity < 1 {
		perShardCapacity = 1
	}
	if ratePerSecond <= 0 {
		perShardCapacity = 0
	}
	shards := make([]*bucket, shardCount)
	for i := range shards {
		shards[i] = newBucket(perShardCapacity, perShardRate)
	}
	return &ShardedLimiter{
		shards:       shards,
		rate:         ratePerSecond,
		burst:        burst,
		reservations: make(map[string]model.Reservation),
	}
}

func (s *ShardedLimiter) shardIndices(key string) (primary, secondary int) {
	n := len(s.shards)
	h1 := fnv.New32a()
	_, _ = h1.Write([]byte(key))
	primary = int(h1.Sum32()) % n
	if n == 1 {
		return primary, primary
	}
	h2 := fnv.New32a()
	_, _ = h2.Write([]byte(key + "#2"))
	secondary = int(h2.Sum32()) % n
	if secondary == primary {
		secondary = (secondary + 1) % n
	}
	return primary, secondary
}

// Acquire attempts primary then secondary shard for count tokens, denying
// only if both would starve (§4.2).
func (s *ShardedLimiter) Acquire(_ context.Context, key string, count int) (AcquireResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	primary, secondary := s.shardIndices(key)
	if ok, remaining, _ := s.shards[primary].tryTake(float64(count)); ok {
		return AcquireResult{Allowed: true, TokensRemaining: remaining, ShardID: primary}, nil
	}
	ok, remaining, retryAfter := s.shards[secondary].tryTake(float64(count))
	if ok {
		return AcquireResult{Allowed: true, TokensRemaining: remaining, ShardID: secondary}, nil
	}
	return AcquireResult{Allowed: false, TokensRemaining: remaining, ShardID: secondary, RetryAfter: retryAfter},
		errs.New(errs.RateLimit, "rate limit exceeded").WithRetryAfter(retryAfter.Seconds())
}

// Reserve schedules a future Acquire if tokens are not available now,
// failing if the wait would exceed maxWait (§4.2).
func (s *ShardedLimiter) Reserve(ctx context.Context, key string, count int, maxWait time.Duration) (model.Reservation, error) {
	result, err := s.Acquire(ctx, key, count)
	now := time.Now()
	if err == nil && result.Allowed {
		execAt := now
		res := model.Reservation{
			ID: uuid.NewString(), Key: key, TokenCount: count,
			ReservedAt: now, ExecuteAt: execAt, ExpiresAt: execAt.Add(model.ReservationTTL),
			ShardID: result.ShardID,
		}
		s.reservationsMu.Lock()
		s.reservations[res.ID] = res
		s.reservationsMu.Unlock()
		return res, nil
	}

	if result.RetryAfter > maxWait {
		return model.Reservation{}, errs.Newf(errs.RateLimit, "reservation wait %s exceeds max_wait %s", result.RetryAfter, maxWait)
	}

	execAt := now.Add(result.RetryAfter)
	res := model.Reservation{
		ID: uuid.NewString(), Key: key, TokenCount: count,
		ReservedAt: now, ExecuteAt: execAt, ExpiresAt: execAt.Add(model.ReservationTTL),
		ShardID: result.ShardID,
	}
	s.reservationsMu.Lock()
	s.reservations[res.ID] = res
	s.reservationsMu.Unlock()
	return res, nil
}

// ExecuteReservation performs the acquire for a previously scheduled
// reservation, if it is ready and not expired.
func (s *ShardedLimiter) ExecuteReservation(ctx context.Context, id string) error {
	s.reservationsMu.Lock()
	res, ok := s.reservations[id]
	s.reservationsMu.Unlock()
	if !ok {
		return errs.New(errs.Validation, "unknown reservation")
	}

	now := time.Now()
	if now.After(res.ExpiresAt) {
		s.reservationsMu.Lock()
		delete(s.reservations, id)
		s.reservationsMu.Unlock()
		return errs.New(errs.RateLimit, "reservation expired")
	}
	if now.Before(res.ExecuteAt) {
		return errs.New(errs.RateLimit, "reservation not yet ready").WithRetryAfter(res.ExecuteAt.Sub(now).Seconds())
	}

	if _, err := s.Acquire(ctx, res.Key, res.TokenCount); err != nil {
		return err
	}
	s.reservationsMu.Lock()
	delete(s.reservations, id)
	s.reservationsMu.Unlock()
	return nil
}

// CancelReservation removes a pending reservation if present.
func (s *ShardedLimiter) CancelReservation(id string) {
	s.reservationsMu.Lock()
	delete(s.reservations, id)
	s.reservationsMu.Unlock()
}

// AdjustRate rescales every shard to a new aggregate rate and burst,
// preserving the shard count (used by AdaptiveLimiter).
func (s *ShardedLimiter) AdjustRate(ratePerSecond, burst float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = ratePerSecond
	s.burst = burst
	n := float64(len(s.shards))
	for _, sh := range s.shards {
		sh.setRate(ratePerSecond/n, burst/n)
	}
}

// Charge adjusts the balance of key's primary shard by delta — used to apply
// a negative-token penalty.
func (s *ShardedLimiter) Charge(key string, delta float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	primary, _ := s.shardIndices(key)
	s.shards[primary].charge(delta)
}

// Rate returns the current aggregate rate.
func (s *ShardedLimiter) Rate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate
}
