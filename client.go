// Package omnisource is a Go client for the omnisource conversational API.
package omnisource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 60 * time.Second

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	apiKey  string
	httpc   *http.Client
	timeout time.Duration
}

// WithAPIKey sets the Bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *clientConfig) { c.httpc = httpc }
}

// WithTimeout sets the per-request timeout. Ignored when WithHTTPClient
// is also given.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// Client is the omnisource SDK entry point.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("omnisource: base URL required")
	}

	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}

	httpc := cfg.httpc
	if httpc == nil {
		httpc = &http.Client{Timeout: cfg.timeout}
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.apiKey,
		httpc:   httpc,
	}, nil
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("omnisource: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Locator pins a citation to a table row or a document page.
type Locator struct {
	Table    string `json:"table,omitempty"`
	Row      string `json:"row,omitempty"`
	Document string `json:"document,omitempty"`
	Page     int    `json:"page,omitempty"`
	Chunk    string `json:"chunk,omitempty"`
}

// Citation is one verified source reference in an answer.
type Citation struct {
	Source  string  `json:"source_kind"`
	Locator Locator `json:"locator"`
	Label   string  `json:"label"`
}

// ChatResult is a completed conversational turn.
type ChatResult struct {
	TurnID              string     `json:"turn_id"`
	Answer              string     `json:"answer"`
	Citations           []Citation `json:"citations"`
	Route               []string   `json:"route"`
	LatencyMS           int64      `json:"latency_ms"`
	UnverifiedCitations bool       `json:"unverified_citations,omitempty"`
}

// Chat sends one question for the given session and returns the answer.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (*ChatResult, error) {
	body := map[string]string{"session_id": sessionID, "message": message}
	var result ChatResult
	if err := c.do(ctx, http.MethodPost, "/chat", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Feedback rates a completed turn. rating is +1 or -1.
func (c *Client) Feedback(ctx context.Context, sessionID, turnID string, rating int) error {
	body := map[string]any{"session_id": sessionID, "turn_id": turnID, "rating": rating}
	return c.do(ctx, http.MethodPost, "/feedback", body, nil)
}

// UsageSummary aggregates turn and feedback counters.
type UsageSummary struct {
	TotalTurns   int64            `json:"total_turns"`
	ByRoute      map[string]int64 `json:"by_route"`
	AvgLatencyMS float64          `json:"avg_latency_ms"`
	FeedbackUp   int64            `json:"feedback_up"`
	FeedbackDown int64            `json:"feedback_down"`
}

// AnalyticsSummary returns the service usage report.
func (c *Client) AnalyticsSummary(ctx context.Context) (*UsageSummary, error) {
	var summary UsageSummary
	if err := c.do(ctx, http.MethodGet, "/analytics/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health checks the health of all system components. A degraded service
// still returns a status rather than an error.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	err := c.do(ctx, http.MethodGet, "/health", nil, &status)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && status.Status != "" {
		return &status, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("omnisource: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("omnisource: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("omnisource: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("omnisource: read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		if apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("omnisource: decode response: %w", err)
		}
	}
	return nil
}
