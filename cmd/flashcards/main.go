// Command flashcards wires config, cache, rate limiting, circuit breaking,
// the API client, and the orchestrator into a minimal end-to-end pipeline:
// a JSON-lines list of vocabulary items on stdin, a TSV of flashcard rows
// on stdout. It exists to exercise the engine, not as a product CLI —
// ingress/egress format handling, dashboards, and health endpoints are
// out of scope (§1).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/apiclient"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/breaker"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/cache"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/checkpoint"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/config"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/database"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/orchestrator"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/parser"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/ratelimit"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/retry"
	"github.com/RexRenatus/korean-flashcard-pipeline/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "."), "directory holding an optional .env")
	resume := flag.Bool("resume", getEnv("RESUME_BATCH_ID", "") != "", "resume a previously checkpointed batch instead of starting a fresh one")
	resumeBatchID := flag.String("resume-batch-id", getEnv("RESUME_BATCH_ID", ""), "checkpoint batch id to resume from (latest checkpoint if empty)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("starting", "version", version.Full())

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	items, err := readVocabulary(os.Stdin)
	if err != nil {
		logger.Error("failed to read vocabulary items", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	c := cache.New(cache.Config{
		BaseDir:     cfg.CacheDir,
		TTL:         secondsToDuration(cfg.CacheTTLSeconds),
		DefaultRate: ratelimit.DefaultPricing,
	})

	shardOpts := ratelimit.ShardOptions{}
	apiLimiter := ratelimit.NewAdaptive(
		ratelimit.New(float64(cfg.RequestsPerMinute)/60, float64(cfg.BurstSize), shardOpts),
		ratelimit.DefaultAdaptiveOptions(10, float64(cfg.RequestsPerMinute)/60),
	)
	limiter := &ratelimit.CompositeLimiter{
		API:    apiLimiter,
		Cost:   ratelimit.New(1e9, 1e9, shardOpts),
		Stage1: ratelimit.New(float64(cfg.RequestsPerMinute)/60, float64(cfg.BurstSize), shardOpts),
		Stage2: ratelimit.New(float64(cfg.RequestsPerMinute)/60, float64(cfg.BurstSize), shardOpts),
		Rate:   ratelimit.DefaultPricing,
	}

	breakers := breaker.NewRegistry(cfg.CircuitFailureThreshold, secondsToDuration(cfg.CircuitRecoveryTimeoutSeconds), nil)

	apiCfg := apiclient.Config{
		APIKey:      cfg.APIKey,
		ModelStage1: cfg.ModelStage1,
		ModelStage2: cfg.ModelStage2,
		RetryConfig: retry.Config{
			MaxAttempts:     cfg.RetryMaxAttempts,
			InitialDelay:    floatSecondsToDuration(cfg.RetryInitialDelaySeconds),
			MaxDelay:        floatSecondsToDuration(cfg.RetryMaxDelaySeconds),
			ExponentialBase: 2.0,
			Jitter:          true,
		},
	}

	var checkpoints *checkpoint.Store
	var archiver *parser.Archiver
	var client apiclient.ApiClient
	if cfg.DatabaseURL != "" {
		dbClient, err := database.NewClient(ctx, database.Config{DSN: cfg.DatabaseURL, MaxOpenConns: 10, MaxIdleConns: 5})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbClient.Close()
		if health, err := database.Health(ctx, dbClient.DB()); err != nil {
			logger.Warn("database health check failed", "error", err)
		} else {
			logger.Info("database connected", "status", health.Status, "open_connections", health.OpenConnections)
		}
		checkpoints = checkpoint.New(dbClient.DB())
		archiver = parser.NewArchiver(dbClient.DB())
		client = apiclient.NewAdvancedClient(apiCfg, c, limiter, breakers, archiver, logger)

		quota := ratelimit.NewDatabaseLimiter(dbClient.DB(), logger)
		if cfg.DailyTokenQuota > 0 {
			if err := quota.SetLimit(ctx, ratelimit.ScopeDailyTokens, cfg.DailyTokenQuota); err != nil {
				logger.Warn("failed to set daily token quota", "error", err)
			}
		}
		if cfg.MonthlyBudgetUSD > 0 {
			monthlyMicroUSD := int64(cfg.MonthlyBudgetUSD * 1_000_000)
			if err := quota.SetLimit(ctx, ratelimit.ScopeMonthlyUSD, monthlyMicroUSD); err != nil {
				logger.Warn("failed to set monthly budget quota", "error", err)
			}
		}
		limiter.Quota = quota
	} else {
		client = apiclient.NewSimpleClient(apiCfg, c, limiter, breakers)
	}

	orch := orchestrator.New(client, c, checkpoints, archiver, orchestrator.Config{
		Mode:               orchestrator.ModeConcurrent,
		MaxConcurrent:      cfg.MaxConcurrent,
		BatchSize:          cfg.BatchSize,
		CheckpointInterval: cfg.CheckpointInterval,
		Logger:             logger,
	})

	batch := model.Batch{BatchID: "cli-run", Items: items}
	var results []model.ProcessingResult
	if *resume {
		results, err = orch.ResumeBatch(ctx, *resumeBatchID, batch)
	} else {
		results, err = orch.ProcessBatch(ctx, batch)
	}
	if err != nil {
		logger.Error("batch processing ended early", "error", err)
	}

	writeResults(os.Stdout, results)
}

func readVocabulary(r *os.File) ([]model.VocabularyItem, error) {
	var items []model.VocabularyItem
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		var item model.VocabularyItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("parsing vocabulary line: %w", err)
		}
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("invalid vocabulary item at position %d: %w", item.Position, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func writeResults(w *os.File, results []model.ProcessingResult) {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	fmt.Fprintln(bw, model.HeaderRow)
	for _, r := range results {
		if !r.Success() {
			fmt.Fprintf(os.Stderr, "item %d (%s) failed: %s\n", r.Position, r.Term, r.Error)
			continue
		}
		if r.FlashcardTSV != "" {
			fmt.Fprintln(bw, r.FlashcardTSV)
		}
	}
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func floatSecondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
