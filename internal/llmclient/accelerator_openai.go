// File: internal/llmclient/accelerator_openai.go
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/llmutil"
)

const acceleratorSystemPrompt = "You are a command optimization assistant that makes user commands more explicit and detailed."

// acceleratorPromptTemplate expands a terse user command into explicit steps
// while keeping the output short enough to stay a command, not an essay.
const acceleratorPromptTemplate = `As a command optimizer, enhance the following user command into a detailed, step-by-step instruction:

User Command: %s

Convert this into specific, actionable steps that would help an AI assistant better understand and execute the task.
Make it more explicit and detailed while maintaining the original intent.

Respond ONLY with the enhanced command, no extra text or explanations.
IMPORTANT: DO NOT EXCEED %d Characters total in your output.`

// OpenAIAccelerator rewrites raw user commands through an OpenAI chat model
// before they reach the control loop.
type OpenAIAccelerator struct {
	client      openai.Client
	model       string
	temperature float64
	maxChars    int
	logger      *zap.Logger
}

var _ schemas.Accelerator = (*OpenAIAccelerator)(nil)

// NewOpenAIAccelerator initializes the accelerator from configuration.
func NewOpenAIAccelerator(cfg config.AcceleratorConfig, logger *zap.Logger) (*OpenAIAccelerator, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key is required for the accelerator")
	}

	httpClient := &http.Client{
		Timeout:   cfg.APITimeout,
		Transport: NewDecompressingTransport(nil),
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.OpenAIAPIKey),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.Endpoint); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}

	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 300
	}

	return &OpenAIAccelerator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxChars:    maxChars,
		logger:      logger.Named("accelerator.openai"),
	}, nil
}

// Enhance rewrites command into a more explicit instruction. Callers treat
// any error as "use the original text".
func (a *OpenAIAccelerator) Enhance(ctx context.Context, command string) (string, error) {
	prompt := fmt.Sprintf(acceleratorPromptTemplate, command, a.maxChars)

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(acceleratorSystemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: param.NewOpt(a.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai API returned no choices")
	}

	// Models asked for a bare command still wrap it in fences or quotes.
	enhanced := llmutil.FirstLine(llmutil.CleanResponse(resp.Choices[0].Message.Content))
	if enhanced == "" {
		return "", fmt.Errorf("openai API returned an empty completion")
	}

	a.logger.Debug("Command enhanced.",
		zap.String("model", a.model),
		zap.Int("original_len", len(command)),
		zap.Int("enhanced_len", len(enhanced)))
	return enhanced, nil
}

// Close is a no-op; the SDK owns no long-lived resources beyond the HTTP
// client's idle pool.
func (a *OpenAIAccelerator) Close() error { return nil }
