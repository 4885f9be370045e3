package ratelimit

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
)

// QuotaScope names one of the two budgets a DatabaseLimiter enforces.
type QuotaScope string

const (
	ScopeDailyTokens  QuotaScope = "daily_tokens"
	ScopeMonthlyUSD   QuotaScope = "monthly_usd"
)

var alertThresholds = []int{50, 80, 90}

// DatabaseLimiter enforces daily-token and monthly-USD quotas before granting
// tokens, keeping one running usage total per scope and period (it writes no
// per-request usage rows), and fires alerts at 50/80/90% of each quota at
// most once per day per threshold (§4.2 "Database-backed variant"). It does
// no token-bucket check of its own.
type DatabaseLimiter struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDatabaseLimiter constructs a DatabaseLimiter over db, whose schema is
// the rate_limiter_quota/usage_alerts tables owned by internal/database.
func NewDatabaseLimiter(db *sql.DB, logger *slog.Logger) *DatabaseLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseLimiter{db: db, logger: logger}
}

// periodKey returns the calendar bucket a scope's quota resets on: a date
// for daily_tokens, a year-month for monthly_usd.
func periodKey(scope QuotaScope, now time.Time) string {
	if scope == ScopeDailyTokens {
		return now.UTC().Format("2006-01-02")
	}
	return now.UTC().Format("2006-01")
}

func retryAfterFor(scope QuotaScope, now time.Time) time.Duration {
	now = now.UTC()
	if scope == ScopeDailyTokens {
		tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		return tomorrow.Sub(now)
	}
	nextMonth := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return nextMonth.Sub(now)
}

// SetLimit ensures a quota row exists for scope in the current period,
// creating it with limitValue if absent.
func (d *DatabaseLimiter) SetLimit(ctx context.Context, scope QuotaScope, limitValue int64) error {
	now := time.Now()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO rate_limiter_quota (scope, period_key, limit_value, used_value, updated_at)
		VALUES ($1, $2, $3, 0, now())
		ON CONFLICT (scope) DO UPDATE SET limit_value = $3, period_key = $2, updated_at = now()
	`, scope, periodKey(scope, now), limitValue)
	if err != nil {
		return errs.Wrap(errs.Database, err, "set quota limit")
	}
	return nil
}

// CheckAndCharge charges amount against scope's current-period usage,
// denying with a RateLimit error carrying the appropriate retry_after if the
// charge would exceed the limit. A quota with no row configured (never
// called via SetLimit) is treated as unlimited.
func (d *DatabaseLimiter) CheckAndCharge(ctx context.Context, scope QuotaScope, amount int64) error {
	now := time.Now()
	key := periodKey(scope, now)

	var limitValue, usedValue int64
	var rowPeriod string
	err := d.db.QueryRowContext(ctx,
		`SELECT period_key, limit_value, used_value FROM rate_limiter_quota WHERE scope = $1`, scope,
	).Scan(&rowPeriod, &limitValue, &usedValue)
	if err == sql.ErrNoRows {
		return nil // unlimited: no quota configured for this scope
	}
	if err != nil {
		return errs.Wrap(errs.Database, err, "read quota")
	}

	if rowPeriod != key {
		// New period: reset usage.
		usedValue = 0
	}

	newUsed := usedValue + amount
	if newUsed > limitValue {
		retryAfter := retryAfterFor(scope, now)
		return errs.Newf(errs.RateLimit, "%s quota exceeded: %d/%d", scope, newUsed, limitValue).
			WithRetryAfter(retryAfter.Seconds())
	}

	_, err = d.db.ExecContext(ctx, `
		UPDATE rate_limiter_quota SET period_key = $2, used_value = $3, updated_at = now()
		WHERE scope = $1
	`, scope, key, newUsed)
	if err != nil {
		return errs.Wrap(errs.Database, err, "update quota usage")
	}

	d.checkAlerts(ctx, scope, key, newUsed, limitValue)
	return nil
}

// checkAlerts fires (and logs) every alert threshold the usage has reached
// that has not yet fired, deduplicated per (scope, threshold, period) via the usage_alerts table's
// primary key — a duplicate insert is swallowed.
func (d *DatabaseLimiter) checkAlerts(ctx context.Context, scope QuotaScope, periodKey string, used, limit int64) {
	if limit <= 0 {
		return
	}
	percent := float64(used) / float64(limit) * 100
	for _, threshold := range alertThresholds {
		if percent < float64(threshold) {
			continue
		}
		res, err := d.db.ExecContext(ctx, `
			INSERT INTO usage_alerts (scope, threshold, period_key, fired_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (scope, threshold, period_key) DO NOTHING
		`, scope, threshold, periodKey)
		if err != nil {
			d.logger.Warn("quota alert insert failed", "scope", scope, "threshold", threshold, "error", err)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			d.logger.Warn("quota usage alert", "scope", scope, "threshold_percent", threshold, "used", used, "limit", limit)
		}
	}
}
