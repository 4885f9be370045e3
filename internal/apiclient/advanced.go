package apiclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/breaker"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/cache"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/parser"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/ratelimit"
)

// AdvancedClient wraps the shared pipeline with durable output archiving
// and a rolling connection health score, mirroring ClientMode.ADVANCED.
type AdvancedClient struct {
	*client
	archiver *parser.Archiver
	health   *healthTracker
	logger   *slog.Logger
}

// NewAdvancedClient builds an AdvancedClient. archiver may be nil, in which
// case archiving is skipped (e.g. no database configured). logger may be
// nil, in which case slog.Default() is used.
func NewAdvancedClient(cfg Config, c *cache.Cache, limiter *ratelimit.CompositeLimiter, breakers *breaker.Registry, archiver *parser.Archiver, logger *slog.Logger) *AdvancedClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvancedClient{
		client:   newBaseClient(cfg, c, limiter, breakers),
		archiver: archiver,
		health:   newHealthTracker(),
		logger:   logger,
	}
}

// Health reports the client's current connection health snapshot.
func (a *AdvancedClient) Health() HealthSnapshot {
	return a.health.Snapshot()
}

func (a *AdvancedClient) ProcessStage1(ctx context.Context, item model.VocabularyItem, temperature float64) (model.Stage1Result, model.TokenUsage, error) {
	start := time.Now()
	out, err := a.processStage1(ctx, item, temperature)
	if err != nil {
		a.health.record(false, timeSince(start))
		return model.Stage1Result{}, model.TokenUsage{}, err
	}
	a.health.record(true, timeSince(start))

	if !out.fromCache && a.archiver != nil {
		if err := a.archiver.ArchiveStage1(ctx, uuid.NewString(), item.Position, out.raw, out.result, out.usage.TotalTokens, timeSince(start)); err != nil {
			a.logger.Warn("archive stage1 output failed", "term", item.Term, "error", err)
		}
	}
	return out.result, out.usage, nil
}

func (a *AdvancedClient) ProcessStage2(ctx context.Context, item model.VocabularyItem, stage1 model.Stage1Result, temperature float64) (model.Stage2Result, model.TokenUsage, error) {
	start := time.Now()
	out, err := a.processStage2(ctx, item, stage1, temperature)
	if err != nil {
		a.health.record(false, timeSince(start))
		return model.Stage2Result{}, model.TokenUsage{}, err
	}
	a.health.record(true, timeSince(start))

	if !out.fromCache && a.archiver != nil {
		if err := a.archiver.ArchiveStage2(ctx, uuid.NewString(), item.Position, out.raw, out.result, out.usage.TotalTokens, timeSince(start)); err != nil {
			a.logger.Warn("archive stage2 output failed", "term", item.Term, "error", err)
		}
	}
	return out.result, out.usage, nil
}

var _ ApiClient = (*AdvancedClient)(nil)
