// File: internal/llmclient/anthropic_client.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

const (
	anthropicVersion = "2023-06-01"
	// computerUseBeta opts the request into the computer-use tool schema.
	computerUseBeta = "computer-use-2024-10-22"

	defaultAnthropicBaseURL = "https://api.anthropic.com"
	messagesPath            = "/v1/messages"
)

// AnthropicClient implements schemas.ModelClient against the Anthropic
// Messages API with the computer-use beta enabled.
type AnthropicClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	config     config.ModelConfig

	backoffFactory func() backoff.BackOff
}

var _ schemas.ModelClient = (*AnthropicClient)(nil)

// -- Messages API Request/Response Structures (Internal to this file) --

type anthropicRequestPayload struct {
	Model       string                   `json:"model"`
	MaxTokens   int                      `json:"max_tokens"`
	Temperature float64                  `json:"temperature"`
	System      string                   `json:"system,omitempty"`
	Messages    []schemas.Message        `json:"messages"`
	Tools       []schemas.ToolDefinition `json:"tools,omitempty"`
}

type anthropicResponsePayload struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Role       string                 `json:"role"`
	Content    []schemas.ContentBlock `json:"content"`
	StopReason string                 `json:"stop_reason"`
	Usage      schemas.Usage          `json:"usage"`
}

type anthropicErrorPayload struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicClient initializes the client.
func NewAnthropicClient(cfg config.ModelConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API Key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	endpoint := strings.TrimRight(baseURL, "/") + messagesPath

	// Requests per minute converts to a per-second token rate with burst 1 so
	// turns space out evenly instead of clustering.
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60.0)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	budget := retryBudget(cfg.APITimeout, maxRetries)

	return &AnthropicClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		config:   cfg,
		httpClient: &http.Client{
			Timeout:   cfg.APITimeout,
			Transport: NewDecompressingTransport(nil),
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("llm_client.anthropic"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = budget
			return backoff.WithMaxRetries(b, uint64(maxRetries))
		},
	}, nil
}

// CreateMessage performs one model turn with retries for transient failures.
func (c *AnthropicClient) CreateMessage(ctx context.Context, req schemas.MessageRequest) (*schemas.MessageResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	payload := anthropicRequestPayload{
		Model:       c.config.ID,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		System:      req.System,
		Messages:    req.Messages,
		Tools:       req.Tools,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var response *schemas.MessageResponse

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)
		httpReq.Header.Set("anthropic-beta", computerUseBeta)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during model request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload anthropicResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		if len(responsePayload.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("anthropic API returned no content blocks (stop_reason: %s)", responsePayload.StopReason))
		}

		c.logger.Info("Model turn complete.",
			zap.Duration("duration", duration),
			zap.String("stop_reason", responsePayload.StopReason),
			zap.Int("input_tokens", responsePayload.Usage.InputTokens),
			zap.Int("output_tokens", responsePayload.Usage.OutputTokens),
		)

		response = &schemas.MessageResponse{
			ID:         responsePayload.ID,
			Content:    responsePayload.Content,
			StopReason: responsePayload.StopReason,
			Usage:      responsePayload.Usage,
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return nil, err
	}
	return response, nil
}

// Close releases idle transport connections.
func (c *AnthropicClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// handleAPIError classifies failure statuses. Rate limits, overloads and
// server faults are retried; everything else fails the turn immediately.
func (c *AnthropicClient) handleAPIError(statusCode int, body []byte) error {
	message := string(body)
	var errPayload anthropicErrorPayload
	if jsonErr := json.Unmarshal(body, &errPayload); jsonErr == nil && errPayload.Error.Message != "" {
		message = fmt.Sprintf("%s: %s", errPayload.Error.Type, errPayload.Error.Message)
	}

	c.logger.Error("Anthropic API returned error status",
		zap.Int("status", statusCode),
		zap.String("response", message))
	err := fmt.Errorf("anthropic API error: status %d, %s", statusCode, message)

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable, statusOverloaded:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err) // Permanent errors.
	}
}

// statusOverloaded is Anthropic's non-standard overload status.
const statusOverloaded = 529

// retryBudget bounds the whole retry sequence: every attempt may run to the
// configured request timeout, so the elapsed budget scales with it. Without
// a timeout the budget falls back to two minutes.
func retryBudget(apiTimeout time.Duration, maxRetries int) time.Duration {
	if apiTimeout <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(maxRetries+1) * apiTimeout
}
