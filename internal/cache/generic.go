package cache

import (
	"encoding/json"
	"time"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

// getTyped implements the shared Get path for both stages: LRU front, then
// disk with opportunistic TTL expiry, recording stats either way.
func getTyped[T any](c *Cache, stage model.CacheStage, key string) (T, int, bool) {
	var zero T

	if rec, ok := c.frontFor(stage).get(key); ok && !c.expired(rec) {
		var payload T
		if err := json.Unmarshal(rec.Payload, &payload); err == nil {
			c.stats.recordHit(rec.TokensUsed, c.rate.Cost(0, rec.TokensUsed))
			return payload, rec.TokensUsed, true
		}
	}

	mu := c.lockFor(key)
	mu.Lock()
	rec, found, err := c.disk.read(stage, key)
	mu.Unlock()
	if err != nil || !found {
		c.stats.recordMiss()
		return zero, 0, false
	}
	if c.expired(rec) {
		c.stats.recordMiss()
		return zero, 0, false
	}

	var payload T
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		c.stats.recordMiss()
		return zero, 0, false
	}
	c.frontFor(stage).set(key, rec)
	c.stats.recordHit(rec.TokensUsed, c.rate.Cost(0, rec.TokensUsed))
	return payload, rec.TokensUsed, true
}

// saveTyped implements the shared Save path: marshal, write under the
// per-key lock, then refresh the LRU front.
func saveTyped[T any](c *Cache, stage model.CacheStage, key, input string, payload T, tokensUsed int) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	rec := cacheRecord{
		Input:      input,
		Payload:    raw,
		TokensUsed: tokensUsed,
		CreatedAt:  time.Now(),
	}

	mu := c.lockFor(key)
	mu.Lock()
	err = c.disk.write(stage, key, rec)
	mu.Unlock()
	if err != nil {
		return err
	}
	c.frontFor(stage).set(key, rec)
	return nil
}
