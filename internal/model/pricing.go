package model

// PricingRate gives a model's cost per token in micro-USD (1e-6 USD),
// keeping all monetary math in fixed-point int64 to avoid float drift in
// aggregates (§4.2).
type PricingRate struct {
	InputMicroUSDPerToken  int64
	OutputMicroUSDPerToken int64
}

// Cost computes the linear cost of a call in micro-USD: input*rate +
// output*rate.
func (p PricingRate) Cost(inputTokens, outputTokens int) int64 {
	return int64(inputTokens)*p.InputMicroUSDPerToken + int64(outputTokens)*p.OutputMicroUSDPerToken
}

// TokenUsage is the accounting returned alongside a parsed API response.
type TokenUsage struct {
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	CostMicroUSD int64 `json:"cost_micro_usd"`
}
