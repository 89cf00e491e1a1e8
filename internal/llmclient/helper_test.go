// File: internal/llmclient/helper_test.go
package llmclient

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// setupTestLogger is a helper to create a zap logger for testing with an observer.
func setupTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	core, _ := observer.New(zap.DebugLevel)
	return zap.New(core)
}

// validModelConfig returns a model transport configuration suitable for tests.
func validModelConfig() config.ModelConfig {
	return config.ModelConfig{
		ID:                "claude-3-5-sonnet-20241022",
		APIKey:            "test-api-key",
		APITimeout:        5 * time.Second,
		MaxRetries:        3,
		MaxTokens:         1024,
		Temperature:       0.0,
		RequestsPerMinute: 600,
	}
}

// validAcceleratorConfig returns an enabled accelerator configuration with
// both provider keys populated.
func validAcceleratorConfig(provider config.AcceleratorProvider) config.AcceleratorConfig {
	return config.AcceleratorConfig{
		Enabled:      true,
		Provider:     provider,
		Model:        "test-model",
		OpenAIAPIKey: "test-openai-key",
		GeminiAPIKey: "test-gemini-key",
		APITimeout:   5 * time.Second,
		Temperature:  0.7,
		MaxChars:     300,
	}
}
