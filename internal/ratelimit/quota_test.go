package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdb "github.com/RexRenatus/korean-flashcard-pipeline/test/database"
)

func TestDatabaseLimiter_EnforcesDailyTokenQuota(t *testing.T) {
	client := testdb.NewTestClient(t)
	limiter := NewDatabaseLimiter(client.DB(), nil)
	ctx := context.Background()

	require.NoError(t, limiter.SetLimit(ctx, ScopeDailyTokens, 1000))

	require.NoError(t, limiter.CheckAndCharge(ctx, ScopeDailyTokens, 600))
	require.NoError(t, limiter.CheckAndCharge(ctx, ScopeDailyTokens, 300))

	err := limiter.CheckAndCharge(ctx, ScopeDailyTokens, 200)
	assert.Error(t, err, "900+200 exceeds the 1000 daily quota")
}

func TestDatabaseLimiter_UnlimitedWithoutConfiguredQuota(t *testing.T) {
	client := testdb.NewTestClient(t)
	limiter := NewDatabaseLimiter(client.DB(), nil)

	err := limiter.CheckAndCharge(context.Background(), ScopeMonthlyUSD, 1_000_000_000)
	assert.NoError(t, err, "a scope with no SetLimit call has no enforced quota")
}

func TestDatabaseLimiter_AlertFiresOnceAtThreshold(t *testing.T) {
	client := testdb.NewTestClient(t)
	limiter := NewDatabaseLimiter(client.DB(), nil)
	ctx := context.Background()

	require.NoError(t, limiter.SetLimit(ctx, ScopeMonthlyUSD, 100))
	require.NoError(t, limiter.CheckAndCharge(ctx, ScopeMonthlyUSD, 55)) // crosses 50%

	var count int
	err := client.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM usage_alerts WHERE scope = $1 AND threshold = 50`, ScopeMonthlyUSD,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A second charge that stays above 50% must not duplicate the alert row
	// (the usage_alerts primary key dedups per scope/threshold/period).
	require.NoError(t, limiter.CheckAndCharge(ctx, ScopeMonthlyUSD, 1))
	err = client.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM usage_alerts WHERE scope = $1 AND threshold = 50`, ScopeMonthlyUSD,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
