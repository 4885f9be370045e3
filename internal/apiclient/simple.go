package apiclient

import (
	"context"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/breaker"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/cache"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/ratelimit"
)

// SimpleClient runs the pipeline with no archiving and no health tracking,
// mirroring ClientMode.SIMPLE in the reference implementation.
type SimpleClient struct {
	*client
}

// NewSimpleClient builds a SimpleClient around the given cache, limiter, and
// breaker registry.
func NewSimpleClient(cfg Config, c *cache.Cache, limiter *ratelimit.CompositeLimiter, breakers *breaker.Registry) *SimpleClient {
	return &SimpleClient{client: newBaseClient(cfg, c, limiter, breakers)}
}

func (s *SimpleClient) ProcessStage1(ctx context.Context, item model.VocabularyItem, temperature float64) (model.Stage1Result, model.TokenUsage, error) {
	out, err := s.processStage1(ctx, item, temperature)
	if err != nil {
		return model.Stage1Result{}, model.TokenUsage{}, err
	}
	return out.result, out.usage, nil
}

func (s *SimpleClient) ProcessStage2(ctx context.Context, item model.VocabularyItem, stage1 model.Stage1Result, temperature float64) (model.Stage2Result, model.TokenUsage, error) {
	out, err := s.processStage2(ctx, item, stage1, temperature)
	if err != nil {
		return model.Stage2Result{}, model.TokenUsage{}, err
	}
	return out.result, out.usage, nil
}

var _ ApiClient = (*SimpleClient)(nil)
