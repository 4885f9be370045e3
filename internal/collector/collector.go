// Package collector implements the ordered-output collector (§4.6):
// concurrent workers complete vocabulary items out of order, and downstream
// consumers need them back in ascending-by-position order.
package collector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

// Stats are the derived counters §4.6 "Statistics" names.
type Stats struct {
	Success   int
	Failure   int
	CacheHits int
	HitRate   float64
}

// Collector accumulates model.ProcessingResult values keyed by position,
// exactly once per position, and releases waiters once every expected
// position has arrived. There is no documented Go or Python source for this
// component beyond its call sites in concurrent/orchestrator.py (imported
// as OrderedResultsCollector but never defined in the retrieved source
// tree) — its contract here is built directly from SPEC_FULL.md §4.6 and
// those call sites (positional add_result, wait_for_all(timeout),
// get_ordered_results), expressed with a mutex guarding the results map and
// a done channel closed once the expected count is reached.
type Collector struct {
	mu       sync.Mutex
	expected int
	results  map[int]model.ProcessingResult
	done     chan struct{}
	closed   bool
}

// New constructs a collector that expects exactly expectedCount results.
func New(expectedCount int) *Collector {
	return &Collector{
		expected: expectedCount,
		results:  make(map[int]model.ProcessingResult, expectedCount),
		done:     make(chan struct{}),
	}
}

// AddResult records result at position. A second call for an
// already-populated position is a no-op that returns an error rather than
// overwriting (§4.6: exactly-once, not last-write-wins).
func (c *Collector) AddResult(position int, result model.ProcessingResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.results[position]; exists {
		return errs.Newf(errs.Validation, "position %d already populated", position)
	}
	c.results[position] = result
	if len(c.results) >= c.expected && !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// GetOrderedResults returns every collected result sorted ascending by
// position, regardless of whether the expected count has been reached.
func (c *Collector) GetOrderedResults() []model.ProcessingResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orderedLocked()
}

func (c *Collector) orderedLocked() []model.ProcessingResult {
	out := make([]model.ProcessingResult, 0, len(c.results))
	for pos := 1; pos <= c.expected; pos++ {
		if r, ok := c.results[pos]; ok {
			out = append(out, r)
		}
	}
	// Results outside [1, expected] (batched chunks and resumed runs use
	// positions beyond the collector's count) are appended after, in
	// ascending order.
	if len(out) != len(c.results) {
		extra := make([]int, 0, len(c.results)-len(out))
		for pos := range c.results {
			if pos < 1 || pos > c.expected {
				extra = append(extra, pos)
			}
		}
		sort.Ints(extra)
		for _, pos := range extra {
			out = append(out, c.results[pos])
		}
	}
	return out
}

// WaitForAll blocks until every expected position has arrived or timeout
// elapses, whichever is first. Returns nil if complete, a Timeout error
// otherwise.
func (c *Collector) WaitForAll(ctx context.Context, timeout time.Duration) error {
	select {
	case <-c.done:
		return nil
	case <-time.After(timeout):
		return errs.Newf(errs.Timeout, "wait_for_all: %d/%d results after %s", c.len(), c.expected, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Stats reports success/failure/cache-hit derived counters over every
// result collected so far.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stats Stats
	for _, r := range c.results {
		if r.Success() {
			stats.Success++
		} else {
			stats.Failure++
		}
		if r.FromCache {
			stats.CacheHits++
		}
	}
	if total := len(c.results); total > 0 {
		stats.HitRate = float64(stats.CacheHits) / float64(total)
	}
	return stats
}
