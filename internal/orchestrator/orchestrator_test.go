package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/metrics"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/parser"
)

type fakeAPI struct {
	mu         sync.Mutex
	failTerms  map[string]bool
	stage1Hits int
	stage2Hits int
}

func newFakeAPI(failTerms ...string) *fakeAPI {
	fail := make(map[string]bool, len(failTerms))
	for _, t := range failTerms {
		fail[t] = true
	}
	return &fakeAPI{failTerms: fail}
}

func (f *fakeAPI) ProcessStage1(_ context.Context, item model.VocabularyItem, _ float64) (model.Stage1Result, model.TokenUsage, error) {
	f.mu.Lock()
	f.stage1Hits++
	f.mu.Unlock()
	if f.failTerms[item.Term] {
		return model.Stage1Result{}, model.TokenUsage{}, errs.New(errs.API, "stage1 failed")
	}
	return model.Stage1Result{PrimaryMeaning: "meaning-" + item.Term}, model.TokenUsage{TotalTokens: 10}, nil
}

func (f *fakeAPI) ProcessStage2(_ context.Context, item model.VocabularyItem, _ model.Stage1Result, _ float64) (model.Stage2Result, model.TokenUsage, error) {
	f.mu.Lock()
	f.stage2Hits++
	f.mu.Unlock()
	row := model.FlashcardRow{Position: item.Position, TermNumber: 1, TabName: model.TabScene, Front: item.Term}
	return model.Stage2Result{Rows: []model.FlashcardRow{row}}, model.TokenUsage{TotalTokens: 20}, nil
}

// fakeCheckpointStore stubs checkpointStore with a single canned Resume
// result and records every Save call.
type fakeCheckpointStore struct {
	mu    sync.Mutex
	cp    model.Checkpoint
	ok    bool
	saved []model.Checkpoint
}

func (f *fakeCheckpointStore) Save(_ context.Context, cp model.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, cp)
	return nil
}

func (f *fakeCheckpointStore) Resume(_ context.Context, _ string) (model.Checkpoint, bool, error) {
	return f.cp, f.ok, nil
}

// fakeArchiver stubs archiveLookup with canned Stage-2 results keyed by
// vocabulary id (== position).
type fakeArchiver struct {
	stage2 map[int]model.Stage2Result
}

func (f *fakeArchiver) GetArchived(_ context.Context, vocabularyID, _ int) (*parser.ArchivedOutput, error) {
	result, ok := f.stage2[vocabularyID]
	if !ok {
		return nil, nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &parser.ArchivedOutput{VocabularyID: vocabularyID, Stage: 2, ParsedOutput: payload}, nil
}

func itemsN(n int) []model.VocabularyItem {
	items := make([]model.VocabularyItem, n)
	for i := 0; i < n; i++ {
		items[i] = model.VocabularyItem{Position: i + 1, Term: fmt.Sprintf("term-%d", i+1), Type: model.POSNoun}
	}
	return items
}

func TestOrchestrator_SequentialPreservesOrder(t *testing.T) {
	api := newFakeAPI()
	o := New(api, nil, nil, nil, Config{Mode: ModeSequential})

	batch := model.Batch{BatchID: "b1", Items: itemsN(5)}
	results, err := o.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, i+1, r.Position)
		assert.True(t, r.Success())
	}
}

func TestOrchestrator_ConcurrentReordersToPosition(t *testing.T) {
	api := newFakeAPI()
	o := New(api, nil, nil, nil, Config{Mode: ModeConcurrent, MaxConcurrent: 4})

	batch := model.Batch{BatchID: "b2", Items: itemsN(20)}
	results, err := o.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, i+1, r.Position)
	}
}

func TestOrchestrator_FailedItemDoesNotAbortBatch(t *testing.T) {
	api := newFakeAPI("term-3")
	o := New(api, nil, nil, nil, Config{Mode: ModeSequential})

	batch := model.Batch{BatchID: "b3", Items: itemsN(5)}
	results, err := o.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.False(t, results[2].Success())
	assert.True(t, results[0].Success())
	assert.True(t, results[4].Success())
}

func TestOrchestrator_BatchedProcessesInChunks(t *testing.T) {
	api := newFakeAPI()
	o := New(api, nil, nil, nil, Config{Mode: ModeBatched, BatchSize: 3, MaxConcurrent: 2})

	batch := model.Batch{BatchID: "b4", Items: itemsN(10)}
	results, err := o.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, r := range results {
		assert.Equal(t, i+1, r.Position)
	}
}

func TestOrchestrator_ProgressCallbackFiresPerCompletion(t *testing.T) {
	api := newFakeAPI()
	var mu sync.Mutex
	var calls int
	o := New(api, nil, nil, nil, Config{
		Mode: ModeSequential,
		ProgressCallback: func(p model.BatchProgress) {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	})

	batch := model.Batch{BatchID: "b5", Items: itemsN(4)}
	_, err := o.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, calls)
}

func TestOrchestrator_MetricsAccumulateAcrossItems(t *testing.T) {
	api := newFakeAPI("term-2")
	o := New(api, nil, nil, nil, Config{Mode: ModeSequential})

	batch := model.Batch{BatchID: "b6", Items: itemsN(3)}
	_, err := o.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)

	snap := o.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.Completed)
	assert.Equal(t, int64(1), snap.Failed)
}

func TestOrchestrator_ResumeSkipsArchivedPositions(t *testing.T) {
	api := newFakeAPI()
	items := itemsN(5)

	archived := make(map[int]model.Stage2Result, 3)
	for _, pos := range []int{1, 2, 3} {
		archived[pos] = model.Stage2Result{Rows: []model.FlashcardRow{
			{Position: pos, TermNumber: 1, TabName: model.TabScene, Front: fmt.Sprintf("archived-%d", pos)},
		}}
	}
	cpStore := &fakeCheckpointStore{
		ok: true,
		cp: model.Checkpoint{
			BatchID:        "b7",
			ProcessedItems: []int{1, 2, 3},
			PendingItems:   []int{4, 5},
		},
	}
	archiver := &fakeArchiver{stage2: archived}

	o := &Orchestrator{
		api:         api,
		checkpoints: cpStore,
		archiver:    archiver,
		metrics:     metrics.New(),
		cfg:         Config{Mode: ModeSequential}.withDefaults(),
	}

	batch := model.Batch{BatchID: "b7", Items: items}
	results, err := o.ResumeBatch(context.Background(), "b7", batch)
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, i+1, r.Position)
		assert.True(t, r.Success())
	}
	assert.True(t, results[0].FromCache)
	assert.Contains(t, results[0].FlashcardTSV, "archived-1")
	assert.False(t, results[3].FromCache)

	// Only the two pending positions actually hit the API.
	assert.Equal(t, 2, api.stage1Hits)
	assert.Equal(t, 2, api.stage2Hits)

	require.Len(t, cpStore.saved, 1)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, cpStore.saved[0].ProcessedItems)
}

func TestOrchestrator_ResumeWithNoCheckpointBehavesLikeFreshRun(t *testing.T) {
	api := newFakeAPI()
	cpStore := &fakeCheckpointStore{ok: false}

	o := &Orchestrator{
		api:         api,
		checkpoints: cpStore,
		metrics:     metrics.New(),
		cfg:         Config{Mode: ModeSequential}.withDefaults(),
	}

	batch := model.Batch{BatchID: "b8", Items: itemsN(3)}
	results, err := o.ResumeBatch(context.Background(), "missing-batch", batch)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 3, api.stage1Hits)
}
