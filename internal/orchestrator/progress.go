package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

// progressTracker accounts for a batch's in-progress/processed/pending
// positions and fires the progress callback on each completion (§4.8
// "Progress & checkpoints": callbacks fire with (completed, total,
// in_progress); a checkpoint snapshot is due every checkpoint_interval
// completions).
type progressTracker struct {
	mu sync.Mutex

	batchID            string
	total              int
	checkpointInterval int
	callback           func(model.BatchProgress)
	startedAt          time.Time

	pending   map[int]bool
	processed map[int]bool
	failed    int

	latencySum   float64
	latencyCount int
}

func newProgressTracker(batchID string, items []model.VocabularyItem, checkpointInterval int, callback func(model.BatchProgress)) *progressTracker {
	return resumeProgressTracker(batchID, len(items), items, nil, checkpointInterval, callback)
}

// resumeProgressTracker builds a tracker for a (possibly resumed) run: total
// is the full batch size, pendingItems is the subset still to be scheduled,
// and alreadyProcessed names positions a checkpoint already accounts for
// (empty for a fresh run).
func resumeProgressTracker(batchID string, total int, pendingItems []model.VocabularyItem, alreadyProcessed []int, checkpointInterval int, callback func(model.BatchProgress)) *progressTracker {
	pending := make(map[int]bool, len(pendingItems))
	for _, item := range pendingItems {
		pending[item.Position] = true
	}
	processed := make(map[int]bool, len(alreadyProcessed))
	for _, pos := range alreadyProcessed {
		processed[pos] = true
	}
	return &progressTracker{
		batchID:            batchID,
		total:              total,
		checkpointInterval: checkpointInterval,
		callback:           callback,
		startedAt:          time.Now(),
		pending:            pending,
		processed:          processed,
	}
}

// recordCompletion marks result's position processed and reports whether a
// checkpoint snapshot is now due.
func (t *progressTracker) recordCompletion(result model.ProcessingResult) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.pending, result.Position)
	t.processed[result.Position] = true
	if !result.Success() {
		t.failed++
	}
	t.latencySum += float64(result.ProcessingTimeMs)
	t.latencyCount++

	completed := len(t.processed)
	if t.callback != nil {
		t.callback(model.BatchProgress{
			BatchID:     t.batchID,
			Total:       t.total,
			Completed:   completed,
			Failed:      t.failed,
			InProgress:  len(t.pending),
			ItemsPerSec: t.itemsPerSecLocked(),
			ETA:         t.etaLocked(completed),
		})
	}

	return t.checkpointInterval > 0 && completed%t.checkpointInterval == 0
}

func (t *progressTracker) itemsPerSecLocked() float64 {
	elapsed := time.Since(t.startedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(len(t.processed)) / elapsed
}

func (t *progressTracker) etaLocked(completed int) time.Duration {
	rate := t.itemsPerSecLocked()
	if rate <= 0 {
		return 0
	}
	remaining := t.total - completed
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/rate) * time.Second
}

// averageLatencyMs reports the rolling average item latency, used by
// batch-size tuning (§4.8 "Batch-size tuning").
func (t *progressTracker) averageLatencyMs() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latencyCount == 0 {
		return 0
	}
	return t.latencySum / float64(t.latencyCount)
}

// positions returns the processed and pending position lists, ascending,
// for a checkpoint snapshot.
func (t *progressTracker) positions() (processed, pending []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	processed = sortedKeys(t.processed)
	pending = sortedKeys(t.pending)
	return processed, pending
}

func (t *progressTracker) currentStage() model.Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return model.StageCompleted
	}
	return model.StageTwo
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
