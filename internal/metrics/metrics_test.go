package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

func TestCollector_SnapshotAggregatesSuccessAndFailure(t *testing.T) {
	c := New()
	c.RecordRequest(RequestRecord{Success: true, FromCache: true, Usage: model.TokenUsage{TotalTokens: 10, CostMicroUSD: 5}, LatencyMs: 100})
	c.RecordRequest(RequestRecord{Success: true, FromCache: false, Usage: model.TokenUsage{TotalTokens: 20, CostMicroUSD: 10}, LatencyMs: 200})
	c.RecordRequest(RequestRecord{Success: false, ErrorKind: errs.RateLimit, LatencyMs: 50})

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Completed)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(30), snap.TotalTokens)
	assert.Equal(t, int64(15), snap.TotalCostMicroUSD)
	assert.InDelta(t, 2.0/3.0, snap.SuccessRate, 0.001)
	assert.Equal(t, int64(1), snap.ErrorClusters[string(errs.RateLimit)])
}

func TestCollector_LatencyHistogramBoundedToRecentSamples(t *testing.T) {
	c := New()
	for i := 0; i < 150; i++ {
		c.RecordRequest(RequestRecord{Success: true, LatencyMs: 1})
	}
	for i := 0; i < 10; i++ {
		c.RecordRequest(RequestRecord{Success: true, LatencyMs: 1000})
	}

	snap := c.Snapshot()
	assert.Greater(t, snap.AvgLatencyMs, 50.0)
}

func TestCollector_ToMetricsSnapshotMatchesRunningTotals(t *testing.T) {
	c := New()
	c.RecordRequest(RequestRecord{Success: true, Usage: model.TokenUsage{TotalTokens: 5}})
	c.RecordRequest(RequestRecord{Success: false})

	snap := c.ToMetricsSnapshot()
	assert.Equal(t, int64(1), snap.ItemsCompleted)
	assert.Equal(t, int64(1), snap.ItemsFailed)
	assert.Equal(t, int64(5), snap.TotalTokens)
}

func TestOptimizeBatchSize_IncreasesWhenFasterThanTarget(t *testing.T) {
	assert.Equal(t, 75, OptimizeBatchSize(50, 200, 1000)) // ratio 5 -> *1.5 capped
	assert.Equal(t, 55, OptimizeBatchSize(50, 800, 1000))  // ratio 1.25 -> *1.1
}

func TestOptimizeBatchSize_DecreasesWhenSlowerThanTarget(t *testing.T) {
	assert.Equal(t, 35, OptimizeBatchSize(50, 2000, 1000)) // ratio 0.5 -> *0.7
	assert.Equal(t, 45, OptimizeBatchSize(50, 1200, 1000)) // ratio 0.833 -> *0.9
}

func TestOptimizeBatchSize_ClampsToBounds(t *testing.T) {
	assert.Equal(t, 10, OptimizeBatchSize(8, 5000, 1000))
	assert.Equal(t, 200, OptimizeBatchSize(190, 100, 1000))
}

func TestOptimizeBatchSize_NoChangeWithoutSamples(t *testing.T) {
	assert.Equal(t, 50, OptimizeBatchSize(50, 0, 1000))
}
