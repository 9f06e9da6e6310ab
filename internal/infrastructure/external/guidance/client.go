// Package guidance implements the side-effect guidance client backed by an
// OpenAI-compatible chat completion API.
package guidance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/healthloop/companion/internal/domain/shared"
	"github.com/healthloop/companion/pkg/circuitbreaker"
	"github.com/healthloop/companion/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the guidance client.
type ClientConfig struct {
	// APIKey authenticates against the completion API
	APIKey string

	// BaseURL overrides the API endpoint, e.g. for a gateway or a test server
	BaseURL string

	Model       string
	MaxTokens   int
	Temperature float32

	// RequestTimeout bounds a single HTTP attempt
	RequestTimeout time.Duration

	// Retry behaviour; MaxAttempts includes the first attempt
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Circuit breaker
	BreakerThreshold   int
	BreakerTimeout     time.Duration
	BreakerHalfOpenMax int

	// Client-side request pacing
	RateLimit RateLimiterConfig

	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(apiKey string) ClientConfig {
	return ClientConfig{
		APIKey:             apiKey,
		Model:              "gpt-4o-mini",
		MaxTokens:          600,
		Temperature:        0.4,
		RequestTimeout:     30 * time.Second,
		MaxAttempts:        3,
		RetryBaseDelay:     500 * time.Millisecond,
		RetryMaxDelay:      5 * time.Second,
		BreakerThreshold:   5,
		BreakerTimeout:     time.Minute,
		BreakerHalfOpenMax: 1,
		RateLimit:          DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client requests guidance for a reported side effect.
type Client struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	retrier     *retry.Retrier
	breaker     *circuitbreaker.CircuitBreaker
	limiter     *RateLimiter
	logger      *slog.Logger
}

// NewClient creates a guidance client. It fails with ErrGuidanceUnavailable
// when no API key is configured.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, shared.ErrGuidanceUnavailable
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	logger := cfg.Logger.With("component", "guidance_client")

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}

	retrier := retry.GuidanceRetrier(cfg.MaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay,
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Debug("retrying guidance request", "attempt", attempt, "delay", delay, "error", err)
		}),
	)

	breaker := circuitbreaker.GuidanceBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout, cfg.BreakerHalfOpenMax,
		func(name string, from, to circuitbreaker.State) {
			logger.Warn("guidance circuit breaker state changed", "from", from.String(), "to", to.String())
		})

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.RequestTimeout,
		retrier:     retrier,
		breaker:     breaker,
		limiter:     NewRateLimiter(cfg.RateLimit),
		logger:      logger,
	}, nil
}

// GetGuidance returns Markdown guidance for a side effect and its severity.
func (c *Client) GetGuidance(ctx context.Context, effect string, severity int) (string, error) {
	start := time.Now()

	text, err := retry.DoWith(ctx, c.retrier, func(ctx context.Context) (string, error) {
		var out string
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			var callErr error
			out, callErr = c.complete(ctx, effect, severity)
			return callErr
		})
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return "", retry.Permanent(shared.WrapError("guidance", "Request", shared.ErrServiceUnavailable, "circuit open", err))
		}
		return out, err
	})
	if err != nil {
		c.logger.Warn("guidance request failed", "effect", effect, "duration", time.Since(start), "error", err)
		return "", err
	}

	c.logger.Debug("guidance received", "effect", effect, "length", len(text), "duration", time.Since(start))
	return text, nil
}

// Ping reports whether guidance requests are currently let through. It does
// not call the API.
func (c *Client) Ping(context.Context) error {
	if err := c.breaker.Err(); err != nil {
		return fmt.Errorf("guidance: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, effect string, severity int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", retry.Permanent(err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildReport(effect, severity)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		err = classify(ctx, err)
		if errors.Is(err, shared.ErrRateLimited) {
			c.limiter.RecordRateLimitHit(0)
		}
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", retry.Permanent(shared.ErrGuidanceEmpty)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", retry.Permanent(shared.ErrGuidanceEmpty)
	}
	return text, nil
}

// classify maps transport and API failures onto domain errors and marks
// which of them are worth retrying.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		return retry.Permanent(err)
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return retry.Retryable(shared.WrapError("guidance", "Request", shared.ErrTimeout, "request timed out", err))
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return retry.Retryable(shared.WrapError("guidance", "Request", shared.ErrRateLimited, "rate limited", err))
	case status >= 500:
		return retry.Retryable(shared.WrapError("guidance", "Request", shared.ErrServiceUnavailable, "server error", err))
	case status >= 400:
		return retry.Permanent(shared.WrapError("guidance", "Request", shared.ErrExternalService, "request rejected", err))
	default:
		// Transport failure without a response.
		return retry.Retryable(shared.WrapError("guidance", "Request", shared.ErrExternalService, "transport error", err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UNAVAILABLE SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Unavailable is used when guidance is disabled or not configured; every
// request fails so the caller attaches the fallback text.
type Unavailable struct{}

// GetGuidance always returns ErrGuidanceUnavailable.
func (Unavailable) GetGuidance(context.Context, string, int) (string, error) {
	return "", shared.ErrGuidanceUnavailable
}
