package apiclient

import (
	"testing"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/breaker"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/ratelimit"
)

func newTestLimiter() *ratelimit.CompositeLimiter {
	opts := ratelimit.ShardOptions{MinShards: 1, MaxShards: 4}
	api := ratelimit.New(1000, 1000, opts)
	return &ratelimit.CompositeLimiter{
		API:    ratelimit.NewAdaptive(api, ratelimit.DefaultAdaptiveOptions(1, 2000)),
		Cost:   ratelimit.New(1_000_000_000, 1_000_000_000, opts),
		Stage1: ratelimit.New(1000, 1000, opts),
		Stage2: ratelimit.New(1000, 1000, opts),
		Rate:   ratelimit.DefaultPricing,
	}
}

func newTestBreakers() *breaker.Registry {
	return breaker.NewRegistry(5, 0, nil)
}

func testConfig(t *testing.T, baseURL string) Config {
	t.Helper()
	return Config{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		ModelStage1: "test-model-1",
		ModelStage2: "test-model-2",
	}
}
