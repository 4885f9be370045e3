// Package apiclient implements the chat-completions API client (§4.7): the
// per-call pipeline of cache lookup, rate limiting, circuit breaking, retry,
// HTTP, and output parsing, in both a simple and an advanced (archiving +
// health-tracked) mode sharing one pipeline (§9 "Duck-typed mode switches").
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/breaker"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/cache"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/ratelimit"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/retry"
	"github.com/RexRenatus/korean-flashcard-pipeline/pkg/version"
	"golang.org/x/sync/singleflight"
)

// Config wires a client's endpoint, per-stage model identifiers, and HTTP
// tuning. Grounded on OpenRouterClient's constructor arguments, with the
// single `model` argument split into ModelStage1/ModelStage2 per §6's
// separate MODEL_STAGE1/MODEL_STAGE2 variables (the Nuance and Flashcard
// models are ordinarily different models).
type Config struct {
	APIKey          string
	BaseURL         string
	ModelStage1     string
	ModelStage2     string
	Timeout         time.Duration
	MaxConnsPerHost int
	RetryConfig     retry.Config
}

func (c Config) modelFor(stage ratelimit.Stage) string {
	if stage == ratelimit.StageOne {
		return c.ModelStage1
	}
	return c.ModelStage2
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = 20
	}
	if c.RetryConfig.MaxAttempts == 0 {
		c.RetryConfig = retry.DefaultConfig()
	}
	return c
}

// ApiClient is the common interface both the simple and advanced clients
// satisfy (§9: "interface abstraction ... sharing a common pipeline").
type ApiClient interface {
	ProcessStage1(ctx context.Context, item model.VocabularyItem, temperature float64) (model.Stage1Result, model.TokenUsage, error)
	ProcessStage2(ctx context.Context, item model.VocabularyItem, stage1 model.Stage1Result, temperature float64) (model.Stage2Result, model.TokenUsage, error)
}

// client holds the shared pipeline both modes build on. It has no back
// reference to the breaker or limiter it calls through (§9: no cyclic
// reference between breaker and client — the breaker takes the HTTP call as
// an opaque closure).
type client struct {
	cfg        Config
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *ratelimit.CompositeLimiter
	breakers   *breaker.Registry
	sf         singleflight.Group
}

func newBaseClient(cfg Config, c *cache.Cache, limiter *ratelimit.CompositeLimiter, breakers *breaker.Registry) *client {
	cfg = cfg.withDefaults()
	return &client{
		cfg:   cfg,
		cache: c,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		limiter:  limiter,
		breakers: breakers,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// callResult is what survives the breaker+retry pipeline: raw content plus
// token accounting, before stage-specific parsing.
type callResult struct {
	Content string
	Usage   model.TokenUsage
}

// call runs steps 2-6 of the §4.7 per-call pipeline: acquire a rate-limit
// token for stage, enter the named circuit breaker, retry the HTTP call
// within it, and return the parsed envelope.
func (c *client) call(ctx context.Context, stage ratelimit.Stage, breakerName string, messages []chatMessage, temperature float64, maxTokens int) (callResult, error) {
	if err := c.limiter.AcquireForStage(ctx, stage, maxTokens); err != nil {
		return callResult{}, err
	}

	model := c.cfg.modelFor(stage)
	b := c.breakers.Get(breakerName)
	result, err := breaker.Call(ctx, b, func(ctx context.Context) (callResult, error) {
		return retry.Do(ctx, c.cfg.RetryConfig, func(ctx context.Context) (callResult, error) {
			return c.postChatCompletion(ctx, model, messages, temperature, maxTokens)
		})
	})

	if err != nil {
		if rerr, ok := err.(*errs.Error); ok && rerr.Kind == errs.RateLimit {
			c.limiter.OnRateLimit(rerr.RetryAfterSeconds)
		}
		return callResult{}, err
	}

	c.limiter.OnSuccess()
	return result, nil
}

// postChatCompletion performs one HTTP POST to the chat-completions endpoint
// and classifies the response (§4.7 step 6).
func (c *client) postChatCompletion(ctx context.Context, model string, messages []chatMessage, temperature float64, maxTokens int) (callResult, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return callResult{}, errs.Wrap(errs.Validation, err, "marshal chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return callResult{}, errs.Wrap(errs.Validation, err, "build chat request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", "https://github.com/RexRenatus/korean-flashcard-pipeline")
	req.Header.Set("X-Title", version.Full())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return callResult{}, errs.Wrap(errs.Network, err, "chat completions request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return callResult{}, errs.Wrap(errs.Network, err, "read chat completions response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return callResult{}, errs.Newf(errs.RateLimit, "rate limited: %s", string(body)).WithRetryAfter(retryAfter)
	case resp.StatusCode == http.StatusUnauthorized:
		return callResult{}, errs.Newf(errs.Authentication, "authentication failed: %s", string(body))
	case resp.StatusCode >= 500:
		return callResult{}, errs.Newf(errs.API, "server error %d: %s", resp.StatusCode, string(body))
	case resp.StatusCode >= 400:
		return callResult{}, errs.Newf(errs.Validation, "request rejected %d: %s", resp.StatusCode, string(body))
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return callResult{}, errs.Wrap(errs.Parsing, err, "decode chat completions response")
	}
	if len(decoded.Choices) == 0 {
		return callResult{}, errs.New(errs.API, "chat completions response had no choices")
	}

	return callResult{
		Content: decoded.Choices[0].Message.Content,
		Usage: model.TokenUsage{
			InputTokens:  decoded.Usage.PromptTokens,
			OutputTokens: decoded.Usage.CompletionTokens,
			TotalTokens:  decoded.Usage.TotalTokens,
			CostMicroUSD: ratelimit.DefaultPricing.Cost(decoded.Usage.PromptTokens, decoded.Usage.CompletionTokens),
		},
	}, nil
}

func parseRetryAfter(header string) float64 {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(header, 64); err == nil {
		return seconds
	}
	if when, err := http.ParseTime(header); err == nil {
		return time.Until(when).Seconds()
	}
	return 0
}
