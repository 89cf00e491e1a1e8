// File: internal/llmclient/accelerator_gemini.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/llmutil"
)

// -- Gemini API Request/Response Structures (Internal to this file) --

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig,omitempty"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// GeminiAccelerator rewrites raw user commands through the Gemini API.
type GeminiAccelerator struct {
	apiKey      string
	endpoint    string
	temperature float64
	maxChars    int
	httpClient  *http.Client
	logger      *zap.Logger

	backoffFactory func() backoff.BackOff
}

var _ schemas.Accelerator = (*GeminiAccelerator)(nil)

// NewGeminiAccelerator initializes the accelerator from configuration.
func NewGeminiAccelerator(cfg config.AcceleratorConfig, logger *zap.Logger) (*GeminiAccelerator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required for the accelerator")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 300
	}

	return &GeminiAccelerator{
		apiKey:      cfg.GeminiAPIKey,
		endpoint:    endpoint,
		temperature: cfg.Temperature,
		maxChars:    maxChars,
		httpClient: &http.Client{
			Timeout:   cfg.APITimeout,
			Transport: NewDecompressingTransport(nil),
		},
		logger: logger.Named("accelerator.gemini"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 30 * time.Second
			b.MaxInterval = 10 * time.Second
			return b
		},
	}, nil
}

// Enhance rewrites command into a more explicit instruction with retries for
// transient API failures. Callers treat any error as "use the original text".
func (a *GeminiAccelerator) Enhance(ctx context.Context, command string) (string, error) {
	payload := geminiRequestPayload{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: fmt.Sprintf(acceleratorPromptTemplate, command, a.maxChars)}},
			},
		},
		SystemInstruction: &geminiSystemInstruction{
			Parts: []geminiPart{{Text: acceleratorSystemPrompt}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     a.temperature,
			MaxOutputTokens: 1024,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var enhanced string

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", a.apiKey)

		resp, err := a.httpClient.Do(httpReq)
		if err != nil {
			a.logger.Warn("Network error during acceleration, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("gemini API error: status %d, body: %s", resp.StatusCode, string(respBody))
			switch resp.StatusCode {
			case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
				return err
			default:
				return backoff.Permanent(err)
			}
		}

		var responsePayload geminiResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(responsePayload.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}

		candidate := responsePayload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
		}

		enhanced = llmutil.FirstLine(llmutil.CleanResponse(candidate.Content.Parts[0].Text))
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(a.backoffFactory(), ctx)); err != nil {
		return "", err
	}
	if enhanced == "" {
		return "", fmt.Errorf("gemini API returned an empty completion")
	}

	a.logger.Debug("Command enhanced.",
		zap.Int("original_len", len(command)),
		zap.Int("enhanced_len", len(enhanced)))
	return enhanced, nil
}

// Close releases idle transport connections.
func (a *GeminiAccelerator) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}
