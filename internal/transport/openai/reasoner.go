package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/omnisource/internal/domain"
	"github.com/kailas-cloud/omnisource/internal/metrics"
)

// Reasoner is a text-generation provider using the OpenAI-compatible API.
// It applies a per-call timeout, a shared token-bucket rate limit, and
// bounded retries with exponential backoff for transient failures only.
type Reasoner struct {
	client     *openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
	operation  string
	logger     *zap.Logger
}

// Config holds the reasoning provider settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	RateLimitRPS float64 // 0 = unlimited
	RateBurst    int
	Logger       *zap.Logger
}

// NewReasoner creates an OpenAI-compatible reasoning provider.
func NewReasoner(cfg *Config) *Reasoner {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Reasoner{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
		limiter:    limiter,
		operation:  "generate",
		logger:     cfg.Logger,
	}
}

// Op returns a view of the reasoner labelled with the given operation for
// metrics. The underlying client, limiter, and retry policy are shared.
func (r *Reasoner) Op(operation string) *Reasoner {
	clone := *r
	clone.operation = operation
	return &clone
}

// Generate implements domain.Reasoner.
func (r *Reasoner) Generate(ctx context.Context, prompt string, cfg domain.GenerationConfig) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if cfg.MaxTokens > 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	// go-openai omits zero-valued fields from the request body, so an
	// explicit temperature of 0 cannot be expressed; those requests run
	// at the provider default.
	if cfg.Temperature > 0 {
		req.Temperature = cfg.Temperature
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("generate cancelled: %w", errors.Join(domain.ErrReasoningUnavailable, ctx.Err()))
			case <-time.After(backoff):
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", errors.Join(domain.ErrReasoningUnavailable, err))
		}

		text, err := r.generateOnce(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !isTransient(err) {
			return "", err
		}
		if r.logger != nil {
			r.logger.Warn("reasoning call failed, retrying",
				zap.String("operation", r.operation),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}
	}

	return "", lastErr
}

func (r *Reasoner) generateOnce(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(callCtx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.ReasoningRequestsTotal.WithLabelValues(r.operation, "error").Inc()
		return "", mapAPIError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		metrics.ReasoningRequestsTotal.WithLabelValues(r.operation, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrReasoningUnavailable)
	}

	metrics.ReasoningRequestsTotal.WithLabelValues(r.operation, "success").Inc()
	metrics.ReasoningRequestDuration.WithLabelValues(r.operation).Observe(duration.Seconds())

	return resp.Choices[0].Message.Content, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (r *Reasoner) HealthCheck(ctx context.Context) error {
	if _, err := r.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// mapAPIError translates provider errors into the domain taxonomy.
func mapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		sentinel := domain.ErrReasoningUnavailable
		if apiErr.HTTPStatusCode == 429 {
			sentinel = domain.ErrReasoningRateLimited
		}
		return fmt.Errorf("reasoning API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, errors.Join(sentinel, err))
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		sentinel := domain.ErrReasoningUnavailable
		if reqErr.HTTPStatusCode == 429 {
			sentinel = domain.ErrReasoningRateLimited
		}
		return fmt.Errorf("reasoning API error %d: %w", reqErr.HTTPStatusCode, errors.Join(sentinel, err))
	}

	return fmt.Errorf("reasoning request failed: %w", errors.Join(domain.ErrReasoningUnavailable, err))
}

// isTransient reports whether the failure is worth a bounded retry:
// rate limits, provider 5xx, timeouts, and network-class errors.
// Semantic failures (4xx other than 429) fail immediately.
func isTransient(err error) bool {
	if errors.Is(err, domain.ErrReasoningRateLimited) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
