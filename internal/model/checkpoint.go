package model

import "time"

// MetricsSnapshot is the subset of §4.10 per-batch metrics captured inside a
// checkpoint so a resumed run can report cumulative figures.
type MetricsSnapshot struct {
	ItemsCompleted int64   `json:"items_completed"`
	ItemsFailed    int64   `json:"items_failed"`
	CacheHits      int64   `json:"cache_hits"`
	CacheMisses    int64   `json:"cache_misses"`
	TotalTokens    int64   `json:"total_tokens"`
	TotalCostMicroUSD int64 `json:"total_cost_micro_usd"`
}

// Checkpoint is a batch state snapshot persisted by the Checkpoint Store
// (§3, §4.9). ProcessedItems and PendingItems partition the batch's
// positions: their intersection is empty and their union has size equal to
// the batch total.
type Checkpoint struct {
	CheckpointID   string          `json:"checkpoint_id"`
	BatchID        string          `json:"batch_id"`
	Timestamp      time.Time       `json:"timestamp"`
	ProcessedItems []int           `json:"processed_items"`
	PendingItems   []int           `json:"pending_items"`
	Metrics        MetricsSnapshot `json:"metrics"`
	CurrentStage   Stage           `json:"current_stage"`
}

// Complete reports whether the checkpoint accounts for every position in a
// batch of the given total size with no overlap (§8 invariant 7).
func (c Checkpoint) Complete(total int) bool {
	seen := make(map[int]bool, len(c.ProcessedItems)+len(c.PendingItems))
	for _, p := range c.ProcessedItems {
		if seen[p] {
			return false
		}
		seen[p] = true
	}
	for _, p := range c.PendingItems {
		if seen[p] {
			return false
		}
		seen[p] = true
	}
	return len(seen) == total
}

// LatestPointer is the singleton row resolving the checkpoint dual-keying
// scheme (§4.9): it names both the most recent checkpoint id and the batch
// it belongs to, so a resume with no explicit batch id can still look the
// full record up.
type LatestPointer struct {
	CheckpointID string `json:"checkpoint_id"`
	BatchID      string `json:"batch_id"`
}
