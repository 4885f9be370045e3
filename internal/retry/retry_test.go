package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
)

func TestDo_SucceedsWithoutRetryOnFirstTry(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetriableErrorsUntilSuccess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.Jitter = false

	calls := 0
	result, err := Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errs.New(errs.Network, "transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetriableKindFailsImmediately(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) (string, error) {
		calls++
		return "", errs.New(errs.Authentication, "bad key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAfterMaxAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = time.Millisecond
	cfg.Jitter = false

	calls := 0
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		return "", errs.New(errs.Network, "still failing")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)

	var exhausted *Exhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
}

func TestDo_RateLimitRetryAfterOverridesBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Hour // would block forever if not overridden
	cfg.Jitter = false

	calls := 0
	start := time.Now()
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errs.New(errs.RateLimit, "slow down").WithRetryAfter(0.01)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConfig_DelayIsExponentialAndCapped(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, ExponentialBase: 2.0}
	assert.Equal(t, time.Second, cfg.delay(0))
	assert.Equal(t, 2*time.Second, cfg.delay(1))
	assert.Equal(t, 3*time.Second, cfg.delay(2)) // would be 4s uncapped
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, cfg, func(ctx context.Context) (string, error) {
		return "", errs.New(errs.Network, "transient")
	})
	require.Error(t, err)
}
