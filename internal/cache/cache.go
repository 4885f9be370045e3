package cache

import (
	"sync"
	"time"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

// DefaultTTL is the default entry lifetime before opportunistic expiry on
// read (§4.1).
const DefaultTTL = 24 * time.Hour

// Config controls a Cache's storage location, front size, and entry TTL.
type Config struct {
	BaseDir     string
	TTL         time.Duration
	FrontSize   int // in-memory LRU front capacity, per stage
	DefaultRate model.PricingRate
}

// Cache is the two-stage, disk-backed, content-addressed cache (§4.1). An
// in-memory LRU fronts the disk store per stage; per-key locks serialize
// concurrent writers to the same on-disk record. Coalescing concurrent
// *misses* into a single upstream fetch (the other half of the single-flight
// requirement) is the API client's responsibility — see internal/apiclient —
// since only it knows how to recompute a miss.
type Cache struct {
	disk   *diskStore
	front1 *lruFront
	front2 *lruFront
	stats  Stats
	ttl    time.Duration
	rate   model.PricingRate

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex
}

// New constructs a Cache rooted at cfg.BaseDir, creating the stage1/stage2
// subtrees on first write.
func New(cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	front := cfg.FrontSize
	if front <= 0 {
		front = 1000
	}
	return &Cache{
		disk:     newDiskStore(cfg.BaseDir),
		front1:   newLRUFront(front),
		front2:   newLRUFront(front),
		ttl:      ttl,
		rate:     cfg.DefaultRate,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

func (c *Cache) frontFor(stage model.CacheStage) *lruFront {
	if stage == model.CacheStage1 {
		return c.front1
	}
	return c.front2
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	c.keyLocksMu.Lock()
	defer c.keyLocksMu.Unlock()
	m, ok := c.keyLocks[key]
	if !ok {
		m = &sync.Mutex{}
		c.keyLocks[key] = m
	}
	return m
}

func (c *Cache) expired(rec cacheRecord) bool {
	return time.Since(rec.CreatedAt) > c.ttl
}

// GetStage1 looks up a cached Stage-1 result. A disk read error is treated
// as a miss (§4.1 failure mode): the cache is an optimization, never a
// correctness dependency.
func (c *Cache) GetStage1(item model.VocabularyItem) (model.Stage1Result, int, bool) {
	return getTyped[model.Stage1Result](c, model.CacheStage1, Stage1Key(item))
}

// SaveStage1 persists a Stage-1 result. Disk errors are logged by the caller
// (returned here, swallowed by convention at the call site per §4.1) and
// never block the pipeline.
func (c *Cache) SaveStage1(item model.VocabularyItem, result model.Stage1Result, tokensUsed int) error {
	return saveTyped(c, model.CacheStage1, Stage1Key(item), item.Term, result, tokensUsed)
}

// GetStage2 looks up a cached Stage-2 result keyed on the item and its
// Stage-1 payload.
func (c *Cache) GetStage2(item model.VocabularyItem, stage1 model.Stage1Result) (model.Stage2Result, int, bool, error) {
	key, err := Stage2Key(item, stage1)
	if err != nil {
		return model.Stage2Result{}, 0, false, errs.Wrap(errs.Cache, err, "compute stage2 cache key")
	}
	result, saved, ok := getTyped[model.Stage2Result](c, model.CacheStage2, key)
	return result, saved, ok, nil
}

// SaveStage2 persists a Stage-2 result keyed on the item and its Stage-1
// payload.
func (c *Cache) SaveStage2(item model.VocabularyItem, stage1 model.Stage1Result, result model.Stage2Result, tokensUsed int) error {
	key, err := Stage2Key(item, stage1)
	if err != nil {
		return errs.Wrap(errs.Cache, err, "compute stage2 cache key")
	}
	return saveTyped(c, model.CacheStage2, key, item.Term, result, tokensUsed)
}

// InvalidateBySize evicts least-recently-accessed entries (across both
// stages) until total on-disk size is at or below targetBytes.
func (c *Cache) InvalidateBySize(targetBytes int64) (int, error) {
	n, err := c.disk.invalidateBySize([]model.CacheStage{model.CacheStage1, model.CacheStage2}, targetBytes)
	if err != nil {
		return n, errs.Wrap(errs.Cache, err, "invalidate by size")
	}
	return n, nil
}

// Clear removes all entries. If stage is the zero value, both stages are
// cleared; otherwise only the named stage is.
func (c *Cache) Clear(stage model.CacheStage) (int, error) {
	stages := []model.CacheStage{model.CacheStage1, model.CacheStage2}
	if stage != "" {
		stages = []model.CacheStage{stage}
	}
	n, err := c.disk.clear(stages)
	if err != nil {
		return n, errs.Wrap(errs.Cache, err, "clear cache")
	}
	if stage == "" || stage == model.CacheStage1 {
		c.front1.clear()
	}
	if stage == "" || stage == model.CacheStage2 {
		c.front2.clear()
	}
	if stage == "" {
		c.stats.reset()
	}
	return n, nil
}

// Stats returns the cumulative hit/miss/savings counters.
func (c *Cache) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// WarmFromBatch probes Stage-1 cache membership for every item without
// touching the LRU front or triggering any API traffic, returning the count
// of already-cached items so the orchestrator can size expected API call
// volume before starting (§4.1).
func (c *Cache) WarmFromBatch(items []model.VocabularyItem) int {
	cached := 0
	for _, item := range items {
		if c.disk.exists(model.CacheStage1, Stage1Key(item)) {
			cached++
		}
	}
	return cached
}
