package cache

import "sync/atomic"

// Stats holds the cumulative hit/miss/savings counters (§4.1). All fields
// are updated atomically so Snapshot can be called concurrently with
// traffic.
type Stats struct {
	hits            atomic.Int64
	misses          atomic.Int64
	tokensSaved     atomic.Int64
	costSavedMicroUSD atomic.Int64
}

// StatsSnapshot is a point-in-time read of Stats.
type StatsSnapshot struct {
	Hits              int64
	Misses            int64
	TokensSaved       int64
	CostSavedMicroUSD int64
	HitRate           float64
}

func (s *Stats) recordHit(tokensSaved int, costSavedMicroUSD int64) {
	s.hits.Add(1)
	s.tokensSaved.Add(int64(tokensSaved))
	s.costSavedMicroUSD.Add(costSavedMicroUSD)
}

func (s *Stats) recordMiss() {
	s.misses.Add(1)
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	hits := s.hits.Load()
	misses := s.misses.Load()
	snap := StatsSnapshot{
		Hits:              hits,
		Misses:            misses,
		TokensSaved:       s.tokensSaved.Load(),
		CostSavedMicroUSD: s.costSavedMicroUSD.Load(),
	}
	if total := hits + misses; total > 0 {
		snap.HitRate = float64(hits) / float64(total)
	}
	return snap
}

func (s *Stats) reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.tokensSaved.Store(0)
	s.costSavedMicroUSD.Store(0)
}
