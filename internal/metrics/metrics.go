// Package metrics implements the append-only metrics collector (§4.10):
// atomic per-request counters and a bounded latency histogram, aggregated
// into per-batch snapshots. Grounded on ProcessingMetrics/ProcessingOptimizer
// in the reference implementation's processing_optimizer.py.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

const maxLatencySamples = 100

// RequestRecord is one completed API call, fed to Collector.RecordRequest
// (§4.10 "Per-request fields").
type RequestRecord struct {
	Timestamp time.Time
	Stage     model.Stage
	FromCache bool
	Usage     model.TokenUsage
	LatencyMs float64
	Success   bool
	ErrorKind errs.Kind
}

// Collector accumulates request outcomes into running totals and a
// recent-latency histogram, reset per batch (§5 "metrics collector is
// append-only with atomic counters").
type Collector struct {
	startedAt time.Time

	completed  int64
	failed     int64
	cacheHits  int64
	cacheMiss  int64
	totalTokens int64
	totalCostMicroUSD int64

	mu            sync.Mutex
	latencies     []float64
	errorClusters map[errs.Kind]int64
}

// New constructs a Collector whose clock starts now.
func New() *Collector {
	return &Collector{
		startedAt:     time.Now(),
		errorClusters: make(map[errs.Kind]int64),
	}
}

// RecordRequest folds one completed call's outcome into the running totals.
func (c *Collector) RecordRequest(r RequestRecord) {
	if r.Success {
		atomic.AddInt64(&c.completed, 1)
	} else {
		atomic.AddInt64(&c.failed, 1)
	}
	if r.FromCache {
		atomic.AddInt64(&c.cacheHits, 1)
	} else {
		atomic.AddInt64(&c.cacheMiss, 1)
	}
	atomic.AddInt64(&c.totalTokens, int64(r.Usage.TotalTokens))
	atomic.AddInt64(&c.totalCostMicroUSD, r.Usage.CostMicroUSD)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.latencies) >= maxLatencySamples {
		c.latencies = c.latencies[1:]
	}
	c.latencies = append(c.latencies, r.LatencyMs)
	if !r.Success && r.ErrorKind != "" {
		c.errorClusters[r.ErrorKind]++
	}
}

// Snapshot is the per-batch aggregation §4.10 names.
type Snapshot struct {
	Completed         int64
	Failed            int64
	CacheHits         int64
	CacheMisses       int64
	TotalTokens       int64
	TotalCostMicroUSD int64
	ItemsPerSec       float64
	SuccessRate       float64
	CacheHitRate      float64
	AvgLatencyMs      float64
	ElapsedSeconds    float64
	ErrorClusters     map[string]int64
}

// Snapshot computes the current aggregate view.
func (c *Collector) Snapshot() Snapshot {
	completed := atomic.LoadInt64(&c.completed)
	failed := atomic.LoadInt64(&c.failed)
	cacheHits := atomic.LoadInt64(&c.cacheHits)
	cacheMiss := atomic.LoadInt64(&c.cacheMiss)
	total := completed + failed

	c.mu.Lock()
	var latencySum float64
	for _, l := range c.latencies {
		latencySum += l
	}
	var avgLatency float64
	if len(c.latencies) > 0 {
		avgLatency = latencySum / float64(len(c.latencies))
	}
	clusters := make(map[string]int64, len(c.errorClusters))
	for k, v := range c.errorClusters {
		clusters[string(k)] = v
	}
	c.mu.Unlock()

	elapsed := time.Since(c.startedAt).Seconds()
	var itemsPerSec, successRate, cacheHitRate float64
	if elapsed > 0 {
		itemsPerSec = float64(total) / elapsed
	}
	if total > 0 {
		successRate = float64(completed) / float64(total)
		cacheHitRate = float64(cacheHits) / float64(total)
	}

	return Snapshot{
		Completed:         completed,
		Failed:            failed,
		CacheHits:         cacheHits,
		CacheMisses:       cacheMiss,
		TotalTokens:       atomic.LoadInt64(&c.totalTokens),
		TotalCostMicroUSD: atomic.LoadInt64(&c.totalCostMicroUSD),
		ItemsPerSec:       itemsPerSec,
		SuccessRate:       successRate,
		CacheHitRate:      cacheHitRate,
		AvgLatencyMs:      avgLatency,
		ElapsedSeconds:    elapsed,
		ErrorClusters:     clusters,
	}
}

// ToMetricsSnapshot projects the running totals into the checkpoint's
// narrower model.MetricsSnapshot shape (§4.9: "a final checkpoint carries
// the batch's closing metrics snapshot").
func (c *Collector) ToMetricsSnapshot() model.MetricsSnapshot {
	return model.MetricsSnapshot{
		ItemsCompleted:    atomic.LoadInt64(&c.completed),
		ItemsFailed:       atomic.LoadInt64(&c.failed),
		CacheHits:         atomic.LoadInt64(&c.cacheHits),
		CacheMisses:       atomic.LoadInt64(&c.cacheMiss),
		TotalTokens:       atomic.LoadInt64(&c.totalTokens),
		TotalCostMicroUSD: atomic.LoadInt64(&c.totalCostMicroUSD),
	}
}

// OptimizeBatchSize adjusts batchSize toward targetLatencyMs given the
// collector's current rolling average latency, floored at 10 and capped at
// 200 (§4.8 "Batch-size tuning", ported from optimize_batch_size's concrete
// thresholds and bounds).
func OptimizeBatchSize(currentSize int, avgLatencyMs, targetLatencyMs float64) int {
	if avgLatencyMs <= 0 {
		return currentSize
	}
	ratio := targetLatencyMs / avgLatencyMs
	switch {
	case ratio > 1.5:
		return clampBatchSize(int(float64(currentSize) * 1.5))
	case ratio > 1.1:
		return clampBatchSize(int(float64(currentSize) * 1.1))
	case ratio < 0.7:
		return clampBatchSize(int(float64(currentSize) * 0.7))
	case ratio < 0.9:
		return clampBatchSize(int(float64(currentSize) * 0.9))
	default:
		return currentSize
	}
}

func clampBatchSize(n int) int {
	if n < 10 {
		return 10
	}
	if n > 200 {
		return 200
	}
	return n
}
