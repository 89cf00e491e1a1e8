// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// NewAccelerator is a factory that creates the configured command
// accelerator, or (nil, nil) when acceleration is disabled.
func NewAccelerator(cfg config.AcceleratorConfig, logger *zap.Logger) (schemas.Accelerator, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Provider {
	case config.AcceleratorOpenAI:
		return NewOpenAIAccelerator(cfg, logger)
	case config.AcceleratorGemini:
		return NewGeminiAccelerator(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported accelerator provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.AcceleratorOpenAI, config.AcceleratorGemini)
	}
}
