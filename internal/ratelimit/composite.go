package ratelimit

import (
	"context"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

// Stage identifies which per-stage limiter CompositeLimiter.AcquireForStage
// should additionally consult.
type Stage int

const (
	StageOne Stage = 1
	StageTwo Stage = 2
)

// CompositeLimiter stacks an API limiter, a stage-1 limiter, a stage-2
// limiter, and a cost limiter; AcquireForStage must pass all applicable
// limiters (§4.2 "Composite variant"). Per the reconciled Open Question
// (DESIGN.md), the cost limiter is a token bucket over micro-USD units, not
// request tokens: estimatedTokens is converted via the pricing table before
// being charged against it, while the others charge in request-count or
// token-count units respectively.
type CompositeLimiter struct {
	API    *AdaptiveLimiter
	Cost   *ShardedLimiter // bucket over micro-USD
	Stage1 *ShardedLimiter
	Stage2 *ShardedLimiter
	Rate   model.PricingRate

	// Quota, when set, additionally enforces the database-backed
	// daily-token/monthly-USD budgets (§4.2 "Database-backed variant")
	// before a call is admitted. Nil when no database is configured.
	Quota *DatabaseLimiter
}

// AcquireForStage runs the full per-call limiter chain for one model call.
func (c *CompositeLimiter) AcquireForStage(ctx context.Context, stage Stage, estimatedTokens int) error {
	if _, err := c.API.Acquire(ctx, "api", 1); err != nil {
		return err
	}

	costEstimate := EstimateMicroUSD(c.Rate, estimatedTokens)
	if _, err := c.Cost.Acquire(ctx, "cost", int(costEstimate)); err != nil {
		return err
	}

	if c.Quota != nil {
		if err := c.Quota.CheckAndCharge(ctx, ScopeDailyTokens, int64(estimatedTokens)); err != nil {
			return err
		}
		if err := c.Quota.CheckAndCharge(ctx, ScopeMonthlyUSD, costEstimate); err != nil {
			return err
		}
	}

	if stage == StageOne {
		if _, err := c.Stage1.Acquire(ctx, "stage1", estimatedTokens); err != nil {
			return err
		}
		return nil
	}
	if _, err := c.Stage2.Acquire(ctx, "stage2", estimatedTokens); err != nil {
		return err
	}
	return nil
}

// OnSuccess notifies the adaptive API limiter of a successful call.
func (c *CompositeLimiter) OnSuccess() {
	c.API.OnSuccess()
}

// OnRateLimit notifies the adaptive API limiter of a rate-limit hit.
func (c *CompositeLimiter) OnRateLimit(retryAfterSeconds float64) {
	c.API.OnRateLimit("api", retryAfterSeconds)
}

// Status is a snapshot of every limiter in the stack, for diagnostics.
type Status struct {
	APIRate    float64 `json:"api_rate"`
	CostRate   float64 `json:"cost_rate"`
	Stage1Rate float64 `json:"stage1_rate"`
	Stage2Rate float64 `json:"stage2_rate"`
}

// Status reports the current rate of each stacked limiter.
func (c *CompositeLimiter) Status() Status {
	return Status{
		APIRate:    c.API.Rate(),
		CostRate:   c.Cost.Rate(),
		Stage1Rate: c.Stage1.Rate(),
		Stage2Rate: c.Stage2.Rate(),
	}
}
