package apiclient

import (
	"context"
	"log/slog"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/cache"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/parser"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/ratelimit"
)

const defaultMaxTokens = 2048

// stage1Outcome is what the singleflight-coalesced miss path produces: the
// parsed result, its token usage, and whether it was served from cache.
type stage1Outcome struct {
	result    model.Stage1Result
	usage     model.TokenUsage
	raw       string
	fromCache bool
}

type stage2Outcome struct {
	result    model.Stage2Result
	usage     model.TokenUsage
	raw       string
	fromCache bool
}

// processStage1 runs the full §4.7 pipeline for one vocabulary item: cache
// lookup, then (on miss, coalesced via singleflight so concurrent callers
// for the same key trigger one upstream call) rate-limited, breaker- and
// retry-wrapped HTTP call, parse, and cache save.
func (c *client) processStage1(ctx context.Context, item model.VocabularyItem, temperature float64) (stage1Outcome, error) {
	if c.cache != nil {
		if cached, _, ok := c.cache.GetStage1(item); ok {
			return stage1Outcome{result: cached, fromCache: true}, nil
		}
	}

	key := cache.Stage1Key(item)
	v, err, _ := c.sf.Do(key, func() (any, error) {
		return c.fetchStage1(ctx, item, temperature)
	})
	if err != nil {
		return stage1Outcome{}, err
	}
	return v.(stage1Outcome), nil
}

func (c *client) fetchStage1(ctx context.Context, item model.VocabularyItem, temperature float64) (stage1Outcome, error) {
	// Re-check the cache: a coalesced sibling call may have populated it
	// while this goroutine waited to enter singleflight.Do.
	if c.cache != nil {
		if cached, _, ok := c.cache.GetStage1(item); ok {
			return stage1Outcome{result: cached, fromCache: true}, nil
		}
	}

	messages := buildStage1Messages(item)
	res, err := c.call(ctx, ratelimit.StageOne, "stage1", messages, temperature, defaultMaxTokens)
	if err != nil {
		return stage1Outcome{}, err
	}

	parsed, err := parser.ParseStage1(res.Content)
	if err != nil {
		return stage1Outcome{}, err
	}

	if c.cache != nil {
		if err := c.cache.SaveStage1(item, parsed, res.Usage.TotalTokens); err != nil {
			slog.Warn("save stage1 cache entry failed", "term", item.Term, "error", err)
		}
	}

	return stage1Outcome{result: parsed, usage: res.Usage, raw: res.Content}, nil
}

// processStage2 runs the mirror-image pipeline for the second model call.
func (c *client) processStage2(ctx context.Context, item model.VocabularyItem, stage1 model.Stage1Result, temperature float64) (stage2Outcome, error) {
	if c.cache != nil {
		if cached, _, ok, err := c.cache.GetStage2(item, stage1); err == nil && ok {
			return stage2Outcome{result: cached, fromCache: true}, nil
		}
	}

	key, err := cache.Stage2Key(item, stage1)
	if err != nil {
		return stage2Outcome{}, err
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		return c.fetchStage2(ctx, item, stage1, temperature)
	})
	if err != nil {
		return stage2Outcome{}, err
	}
	return v.(stage2Outcome), nil
}

func (c *client) fetchStage2(ctx context.Context, item model.VocabularyItem, stage1 model.Stage1Result, temperature float64) (stage2Outcome, error) {
	if c.cache != nil {
		if cached, _, ok, err := c.cache.GetStage2(item, stage1); err == nil && ok {
			return stage2Outcome{result: cached, fromCache: true}, nil
		}
	}

	messages := buildStage2Messages(item, stage1)
	res, err := c.call(ctx, ratelimit.StageTwo, "stage2", messages, temperature, defaultMaxTokens)
	if err != nil {
		return stage2Outcome{}, err
	}

	parsed, err := parser.ParseStage2TSV(res.Content)
	if err != nil {
		return stage2Outcome{}, err
	}

	if c.cache != nil {
		if err := c.cache.SaveStage2(item, stage1, parsed, res.Usage.TotalTokens); err != nil {
			slog.Warn("save stage2 cache entry failed", "term", item.Term, "error", err)
		}
	}

	return stage2Outcome{result: parsed, usage: res.Usage, raw: res.Content}, nil
}
