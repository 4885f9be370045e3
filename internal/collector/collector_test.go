package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

func TestCollector_OrdersOutOfOrderResults(t *testing.T) {
	c := New(3)
	require.NoError(t, c.AddResult(3, model.ProcessingResult{Position: 3}))
	require.NoError(t, c.AddResult(1, model.ProcessingResult{Position: 1}))
	require.NoError(t, c.AddResult(2, model.ProcessingResult{Position: 2}))

	ordered := c.GetOrderedResults()
	require.Len(t, ordered, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{ordered[0].Position, ordered[1].Position, ordered[2].Position})
}

func TestCollector_DuplicatePositionIsRejectedNotOverwritten(t *testing.T) {
	c := New(2)
	require.NoError(t, c.AddResult(1, model.ProcessingResult{Position: 1, Term: "first"}))

	err := c.AddResult(1, model.ProcessingResult{Position: 1, Term: "second"})
	assert.Error(t, err)

	ordered := c.GetOrderedResults()
	require.Len(t, ordered, 1)
	assert.Equal(t, "first", ordered[0].Term)
}

func TestCollector_WaitForAllReturnsOnceComplete(t *testing.T) {
	c := New(2)
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = c.AddResult(1, model.ProcessingResult{Position: 1})
		_ = c.AddResult(2, model.ProcessingResult{Position: 2})
	}()

	err := c.WaitForAll(context.Background(), time.Second)
	require.NoError(t, err)
}

func TestCollector_WaitForAllTimesOutWhenIncomplete(t *testing.T) {
	c := New(2)
	require.NoError(t, c.AddResult(1, model.ProcessingResult{Position: 1}))

	err := c.WaitForAll(context.Background(), 10*time.Millisecond)
	assert.Error(t, err)
}

func TestCollector_WaitForAllRespectsContextCancellation(t *testing.T) {
	c := New(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.WaitForAll(ctx, time.Second)
	assert.Error(t, err)
}

func TestCollector_StatsDerivesSuccessFailureAndHitRate(t *testing.T) {
	c := New(4)
	require.NoError(t, c.AddResult(1, model.ProcessingResult{Position: 1, FromCache: true}))
	require.NoError(t, c.AddResult(2, model.ProcessingResult{Position: 2, FromCache: false}))
	require.NoError(t, c.AddResult(3, model.ProcessingResult{Position: 3, Error: "boom"}))
	require.NoError(t, c.AddResult(4, model.ProcessingResult{Position: 4, FromCache: true}))

	stats := c.Stats()
	assert.Equal(t, 3, stats.Success)
	assert.Equal(t, 1, stats.Failure)
	assert.Equal(t, 2, stats.CacheHits)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}

func TestCollector_ConcurrentAddResultIsSafe(t *testing.T) {
	const n = 50
	c := New(n)

	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(pos int) {
			defer wg.Done()
			_ = c.AddResult(pos, model.ProcessingResult{Position: pos})
		}(i)
	}
	wg.Wait()

	ordered := c.GetOrderedResults()
	require.Len(t, ordered, n)
	for i, r := range ordered {
		assert.Equal(t, i+1, r.Position)
	}
}
