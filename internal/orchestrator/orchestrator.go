// Package orchestrator drives batch processing of vocabulary items through
// the two-stage pipeline (§4.8), in sequential, concurrent, or batched
// mode, with checkpointing and progress reporting. Grounded on
// ConcurrentPipelineOrchestrator (concurrent/orchestrator.py) for the
// worker-pool/collector shape and on pkg/queue/executor.go's
// goroutine-per-unit + WaitGroup idiom for the Go expression of it.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/apiclient"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/cache"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/checkpoint"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/collector"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/metrics"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/parser"
)

// checkpointStore is the subset of *checkpoint.Store the orchestrator
// depends on, narrowed so tests can fake it without a database.
type checkpointStore interface {
	Save(ctx context.Context, cp model.Checkpoint) error
	Resume(ctx context.Context, batchID string) (model.Checkpoint, bool, error)
}

// archiveLookup is the subset of *parser.Archiver the resume path uses to
// rehydrate already-processed positions from durable storage.
type archiveLookup interface {
	GetArchived(ctx context.Context, vocabularyID, stage int) (*parser.ArchivedOutput, error)
}

// Mode selects how a batch's items are scheduled (§4.8 "Three modes").
type Mode int

const (
	ModeSequential Mode = iota
	ModeConcurrent
	ModeBatched
)

// Config tunes an Orchestrator's scheduling and checkpointing behavior.
type Config struct {
	Mode               Mode
	MaxConcurrent      int // worker pool size, default 50
	BatchSize          int // chunk size in ModeBatched, default 50
	CheckpointInterval int // completions between checkpoint snapshots, default 10
	AdmissionTimeout   time.Duration
	Temperature        float64
	TargetLatencyMs    float64
	ProgressCallback   func(model.BatchProgress)
	Logger             *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 50
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 10
	}
	if c.AdmissionTimeout <= 0 {
		c.AdmissionTimeout = 30 * time.Second
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Orchestrator processes a batch of vocabulary items end to end.
type Orchestrator struct {
	api         apiclient.ApiClient
	cache       *cache.Cache
	checkpoints checkpointStore
	archiver    archiveLookup
	metrics     *metrics.Collector
	cfg         Config
}

// New constructs an Orchestrator. cache, checkpoints, and archiver may be
// nil: a nil cache disables the combined-cache short-circuit (every item
// goes through the API client, which may still cache-hit per stage
// internally); a nil checkpoint store disables snapshotting and Resume; a
// nil archiver means a Resume cannot rehydrate already-processed positions
// from durable storage and reprocesses them instead.
func New(api apiclient.ApiClient, c *cache.Cache, checkpoints *checkpoint.Store, archiver *parser.Archiver, cfg Config) *Orchestrator {
	o := &Orchestrator{
		api:     api,
		cache:   c,
		metrics: metrics.New(),
		cfg:     cfg.withDefaults(),
	}
	if checkpoints != nil {
		o.checkpoints = checkpoints
	}
	if archiver != nil {
		o.archiver = archiver
	}
	return o
}

// Metrics exposes the orchestrator's running metrics collector.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// ProcessBatch runs batch through the pipeline according to cfg.Mode and
// returns results ascending by position, with no gaps (§4.8 "Ordering
// guarantee").
func (o *Orchestrator) ProcessBatch(ctx context.Context, batch model.Batch) ([]model.ProcessingResult, error) {
	return o.processBatchFrom(ctx, "", batch)
}

// ResumeBatch resumes batch from the checkpoint named resumeBatchID (the
// latest checkpoint, if resumeBatchID is empty): the checkpoint's
// already-processed positions are rehydrated from archived outputs and
// returned as pre-filled results with no API calls, and only the
// checkpoint's pending positions are scheduled as new work (§4.9 "Resume").
// If no checkpoint is found, it behaves exactly like ProcessBatch.
func (o *Orchestrator) ResumeBatch(ctx context.Context, resumeBatchID string, batch model.Batch) ([]model.ProcessingResult, error) {
	if resumeBatchID == "" && o.checkpoints != nil {
		cp, ok, err := o.checkpoints.Resume(ctx, "")
		if err != nil {
			return nil, err
		}
		if ok {
			resumeBatchID = cp.BatchID
		}
	}
	return o.processBatchFrom(ctx, resumeBatchID, batch)
}

func (o *Orchestrator) processBatchFrom(ctx context.Context, resumeBatchID string, batch model.Batch) ([]model.ProcessingResult, error) {
	preFilled, pendingItems, err := o.loadResumeState(ctx, resumeBatchID, batch)
	if err != nil {
		return nil, err
	}

	processedPositions := make([]int, 0, len(preFilled))
	for pos := range preFilled {
		processedPositions = append(processedPositions, pos)
	}
	tracker := resumeProgressTracker(batch.BatchID, len(batch.Items), pendingItems, processedPositions, o.cfg.CheckpointInterval, o.cfg.ProgressCallback)

	pendingBatch := batch
	pendingBatch.Items = pendingItems

	var results []model.ProcessingResult
	switch o.cfg.Mode {
	case ModeSequential:
		results, err = o.processSequential(ctx, pendingBatch, tracker)
	case ModeBatched:
		results, err = o.processBatched(ctx, pendingBatch, tracker)
	default:
		results, err = o.processConcurrent(ctx, pendingBatch.Items, tracker)
	}

	merged := mergeResults(preFilled, results)
	if err != nil {
		return merged, err
	}

	if o.checkpoints != nil {
		_ = o.saveCheckpoint(ctx, batch.BatchID, tracker, model.StageCompleted)
	}
	return merged, nil
}

// loadResumeState resolves resumeBatchID to a checkpoint (if any) and splits
// batch.Items into already-processed results (rehydrated from archived
// output) and the remaining pending items. With no resumeBatchID, no
// checkpoint store, or no matching checkpoint, every item is pending.
func (o *Orchestrator) loadResumeState(ctx context.Context, resumeBatchID string, batch model.Batch) (map[int]model.ProcessingResult, []model.VocabularyItem, error) {
	if resumeBatchID == "" || o.checkpoints == nil {
		return nil, batch.Items, nil
	}

	cp, ok, err := o.checkpoints.Resume(ctx, resumeBatchID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, batch.Items, nil
	}

	byPosition := make(map[int]model.VocabularyItem, len(batch.Items))
	for _, item := range batch.Items {
		byPosition[item.Position] = item
	}

	pendingPositions := make(map[int]bool, len(cp.PendingItems))
	for _, pos := range cp.PendingItems {
		pendingPositions[pos] = true
	}

	preFilled := make(map[int]model.ProcessingResult, len(cp.ProcessedItems))
	for _, pos := range cp.ProcessedItems {
		item, ok := byPosition[pos]
		if !ok {
			continue
		}
		result, ok := o.rehydrateResult(ctx, item)
		if !ok {
			// No archived output survives for this position: fall back to
			// reprocessing it rather than silently dropping it.
			pendingPositions[pos] = true
			continue
		}
		preFilled[pos] = result
	}

	pending := make([]model.VocabularyItem, 0, len(pendingPositions))
	for _, item := range batch.Items {
		if pendingPositions[item.Position] {
			pending = append(pending, item)
		}
	}
	return preFilled, pending, nil
}

// rehydrateResult looks up item's archived Stage-2 output and turns it back
// into a ProcessingResult, reporting false if none survives.
func (o *Orchestrator) rehydrateResult(ctx context.Context, item model.VocabularyItem) (model.ProcessingResult, bool) {
	if o.archiver == nil {
		return model.ProcessingResult{}, false
	}
	archived, err := o.archiver.GetArchived(ctx, item.Position, 2)
	if err != nil || archived == nil {
		return model.ProcessingResult{}, false
	}
	var stage2 model.Stage2Result
	if err := json.Unmarshal(archived.ParsedOutput, &stage2); err != nil {
		return model.ProcessingResult{}, false
	}
	return model.ProcessingResult{
		Position:         item.Position,
		Term:             item.Term,
		FlashcardTSV:     stage2.ToTSV(),
		FromCache:        true,
		ProcessingTimeMs: int64(archived.ProcessingTimeMs),
	}, true
}

// mergeResults combines pre-filled resume results with freshly processed
// ones into a single slice ascending by position.
func mergeResults(preFilled map[int]model.ProcessingResult, fresh []model.ProcessingResult) []model.ProcessingResult {
	if len(preFilled) == 0 {
		return fresh
	}
	merged := make([]model.ProcessingResult, 0, len(preFilled)+len(fresh))
	for _, r := range preFilled {
		merged = append(merged, r)
	}
	merged = append(merged, fresh...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Position < merged[j].Position })
	return merged
}

// processSequential processes items one at a time, preserving natural
// ordering without any concurrency machinery (§4.8 "Sequential").
func (o *Orchestrator) processSequential(ctx context.Context, batch model.Batch, tracker *progressTracker) ([]model.ProcessingResult, error) {
	results := make([]model.ProcessingResult, 0, len(batch.Items))
	for _, item := range batch.Items {
		if err := ctx.Err(); err != nil {
			o.checkpointOnCancel(ctx, batch.BatchID, tracker)
			return results, err
		}
		result := o.processItem(ctx, item)
		results = append(results, result)
		o.afterCompletion(ctx, batch.BatchID, tracker, result)
	}
	return results, nil
}

// processConcurrent runs a bounded worker pool over items, feeding an
// ordered collector, mirroring process_batch's semaphore-gated
// asyncio.gather fan-out.
func (o *Orchestrator) processConcurrent(ctx context.Context, items []model.VocabularyItem, tracker *progressTracker) ([]model.ProcessingResult, error) {
	coll := collector.New(len(items))
	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrent))

	for _, item := range items {
		item := item
		admitCtx, cancelAdmit := context.WithTimeout(ctx, o.cfg.AdmissionTimeout)
		err := sem.Acquire(admitCtx, 1)
		cancelAdmit()
		if err != nil {
			rateLimitErr := errs.Newf(errs.RateLimit, "pool admission denied: %s", err).WithRetryAfter(o.cfg.AdmissionTimeout.Seconds())
			result := model.ProcessingResult{Position: item.Position, Term: item.Term, Error: rateLimitErr.Error()}
			_ = coll.AddResult(item.Position, result)
			o.afterCompletion(ctx, tracker.batchID, tracker, result)
			continue
		}
		go func() {
			defer sem.Release(1)
			result := o.processItem(ctx, item)
			_ = coll.AddResult(item.Position, result)
			o.afterCompletion(ctx, tracker.batchID, tracker, result)
		}()
	}

	if err := coll.WaitForAll(ctx, 300*time.Second); err != nil {
		return coll.GetOrderedResults(), err
	}
	return coll.GetOrderedResults(), nil
}

// processBatched divides items into BatchSize chunks, running each chunk
// concurrently and draining it before starting the next (§4.8 "Batched").
func (o *Orchestrator) processBatched(ctx context.Context, batch model.Batch, tracker *progressTracker) ([]model.ProcessingResult, error) {
	results := make([]model.ProcessingResult, 0, len(batch.Items))
	size := o.cfg.BatchSize

	for start := 0; start < len(batch.Items); start += size {
		end := start + size
		if end > len(batch.Items) {
			end = len(batch.Items)
		}
		chunk := batch.Items[start:end]

		chunkResults, err := o.processConcurrent(ctx, chunk, tracker)
		results = append(results, chunkResults...)
		if err != nil {
			return results, err
		}

		if avg := tracker.averageLatencyMs(); avg > 0 && o.cfg.TargetLatencyMs > 0 {
			o.cfg.BatchSize = metrics.OptimizeBatchSize(o.cfg.BatchSize, avg, o.cfg.TargetLatencyMs)
			size = o.cfg.BatchSize
		}
	}
	return results, nil
}

// processItem runs the full per-item pipeline (§4.8 "Per-item processing"):
// a combined-cache short-circuit, else both model calls in sequence.
func (o *Orchestrator) processItem(ctx context.Context, item model.VocabularyItem) model.ProcessingResult {
	start := time.Now()

	if result, ok := o.checkCombinedCache(item); ok {
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		o.metrics.RecordRequest(metrics.RequestRecord{
			Timestamp: start, FromCache: true, Success: true,
			LatencyMs: float64(result.ProcessingTimeMs),
		})
		return result
	}

	stage1, usage1, err := o.api.ProcessStage1(ctx, item, o.cfg.Temperature)
	if err != nil {
		return o.failureResult(item, start, err)
	}

	stage2, usage2, err := o.api.ProcessStage2(ctx, item, stage1, o.cfg.Temperature)
	if err != nil {
		return o.failureResult(item, start, err)
	}

	elapsed := time.Since(start)
	o.metrics.RecordRequest(metrics.RequestRecord{
		Timestamp: start, Success: true,
		Usage:     model.TokenUsage{TotalTokens: usage1.TotalTokens + usage2.TotalTokens, CostMicroUSD: usage1.CostMicroUSD + usage2.CostMicroUSD},
		LatencyMs: float64(elapsed.Milliseconds()),
	})

	return model.ProcessingResult{
		Position:         item.Position,
		Term:             item.Term,
		FlashcardTSV:     stage2.ToTSV(),
		FromCache:        false,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}

func (o *Orchestrator) failureResult(item model.VocabularyItem, start time.Time, err error) model.ProcessingResult {
	elapsed := time.Since(start)
	kind, _ := errs.KindOf(err)
	o.metrics.RecordRequest(metrics.RequestRecord{
		Timestamp: start, Success: false, ErrorKind: kind,
		LatencyMs: float64(elapsed.Milliseconds()),
	})
	return model.ProcessingResult{
		Position:         item.Position,
		Term:             item.Term,
		Error:            err.Error(),
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}

// checkCombinedCache short-circuits an item whose Stage-1 and Stage-2
// results are both already cached, mirroring _check_cache's requirement
// that *both* stages hit before treating the item as a cache hit.
func (o *Orchestrator) checkCombinedCache(item model.VocabularyItem) (model.ProcessingResult, bool) {
	if o.cache == nil {
		return model.ProcessingResult{}, false
	}
	stage1, _, ok := o.cache.GetStage1(item)
	if !ok {
		return model.ProcessingResult{}, false
	}
	stage2, _, ok, err := o.cache.GetStage2(item, stage1)
	if err != nil || !ok {
		return model.ProcessingResult{}, false
	}
	return model.ProcessingResult{
		Position:     item.Position,
		Term:         item.Term,
		FlashcardTSV: stage2.ToTSV(),
		FromCache:    true,
	}, true
}

func (o *Orchestrator) afterCompletion(ctx context.Context, batchID string, tracker *progressTracker, result model.ProcessingResult) {
	shouldCheckpoint := tracker.recordCompletion(result)
	if shouldCheckpoint && o.checkpoints != nil {
		_ = o.saveCheckpoint(ctx, batchID, tracker, model.StageTwo)
	}
}

func (o *Orchestrator) checkpointOnCancel(ctx context.Context, batchID string, tracker *progressTracker) {
	if o.checkpoints == nil {
		return
	}
	_ = o.saveCheckpoint(context.Background(), batchID, tracker, tracker.currentStage())
}

func (o *Orchestrator) saveCheckpoint(ctx context.Context, batchID string, tracker *progressTracker, stage model.Stage) error {
	processed, pending := tracker.positions()
	cp := model.Checkpoint{
		CheckpointID:   uuid.NewString(),
		BatchID:        batchID,
		Timestamp:      time.Now().UTC(),
		ProcessedItems: processed,
		PendingItems:   pending,
		Metrics:        o.metrics.ToMetricsSnapshot(),
		CurrentStage:   stage,
	}
	if err := o.checkpoints.Save(ctx, cp); err != nil {
		o.cfg.Logger.Warn("save checkpoint failed", "batch_id", batchID, "error", err)
		return err
	}
	return nil
}
