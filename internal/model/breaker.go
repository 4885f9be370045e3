package model

// BreakerState is a circuit breaker's externally observable state (§3, §4.3).
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerSnapshot is a point-in-time read of one named breaker's counters,
// used by metrics reporting and tests.
type BreakerSnapshot struct {
	Service             string       `json:"service"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	CallCount           int64        `json:"call_count"`
	SuccessCount        int64        `json:"success_count"`
	Threshold           int          `json:"threshold"`
}
