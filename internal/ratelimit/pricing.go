package ratelimit

import "github.com/RexRenatus/korean-flashcard-pipeline/internal/model"

// DefaultPricing mirrors the reference implementation's OpenRouter
// Claude-3.5-Sonnet table: $3.00 per 1M input tokens, $15.00 per 1M output
// tokens, expressed in micro-USD per token (1e-6 USD, §4.2 "Pricing").
var DefaultPricing = model.PricingRate{
	InputMicroUSDPerToken:  3,  // 3.00 * 1_000_000 / 1_000_000
	OutputMicroUSDPerToken: 15,
}

// EstimateMicroUSD converts an estimated token count to an estimated
// micro-USD cost, treating the whole count as output tokens (the
// conservative/worst-case estimate used before a call completes, since the
// split between input and output isn't known yet).
func EstimateMicroUSD(rate model.PricingRate, estimatedTokens int) int64 {
	return rate.Cost(0, estimatedTokens)
}
