// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Model() ModelConfig
	Agent() AgentConfig
	Display() DisplayConfig
	Scaling() ScalingConfig
	Screenshot() ScreenshotConfig
	Input() InputConfig
	Accelerator() AcceleratorConfig

	// Display Setters
	SetDisplayNumber(int)

	// Scaling Setters
	SetScalingEnabled(bool)

	// Model Setters
	SetModelID(string)

	// Accelerator Setters
	SetAcceleratorEnabled(bool)
}

// Config holds the entire application configuration. Access goes through the
// Interface getters so call sites stay mockable.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	ModelCfg       ModelConfig       `mapstructure:"model" yaml:"model"`
	AgentCfg       AgentConfig       `mapstructure:"agent" yaml:"agent"`
	DisplayCfg     DisplayConfig     `mapstructure:"display" yaml:"display"`
	ScalingCfg     ScalingConfig     `mapstructure:"scaling" yaml:"scaling"`
	ScreenshotCfg  ScreenshotConfig  `mapstructure:"screenshot" yaml:"screenshot"`
	InputCfg       InputConfig       `mapstructure:"input" yaml:"input"`
	AcceleratorCfg AcceleratorConfig `mapstructure:"accelerator" yaml:"accelerator"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Model() ModelConfig             { return c.ModelCfg }
func (c *Config) Agent() AgentConfig             { return c.AgentCfg }
func (c *Config) Display() DisplayConfig         { return c.DisplayCfg }
func (c *Config) Scaling() ScalingConfig         { return c.ScalingCfg }
func (c *Config) Screenshot() ScreenshotConfig   { return c.ScreenshotCfg }
func (c *Config) Input() InputConfig             { return c.InputCfg }
func (c *Config) Accelerator() AcceleratorConfig { return c.AcceleratorCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetDisplayNumber(n int)       { c.DisplayCfg.Number = n }
func (c *Config) SetScalingEnabled(b bool)     { c.ScalingCfg.Enabled = b }
func (c *Config) SetModelID(id string)         { c.ModelCfg.ID = id }
func (c *Config) SetAcceleratorEnabled(b bool) { c.AcceleratorCfg.Enabled = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ModelConfig configures the computer-use model transport.
type ModelConfig struct {
	// ID is the model identifier sent with every request.
	ID string `mapstructure:"id" yaml:"id"`
	// APIKey is normally bound from ANTHROPIC_API_KEY rather than the file.
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	// RequestsPerMinute throttles outbound turns across a whole session.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// AgentConfig configures the control loop's conversation management.
type AgentConfig struct {
	// HistorySize is the number of messages retained between commands. The
	// hard turn ceiling is ten times this value.
	HistorySize int `mapstructure:"history_size" yaml:"history_size"`
	// ImagesToKeep bounds how many embedded screenshots survive pruning.
	ImagesToKeep int `mapstructure:"images_to_keep" yaml:"images_to_keep"`
	// ImageBatchSize forces pruning in fixed multiples to keep transport
	// caching effective.
	ImageBatchSize int `mapstructure:"image_batch_size" yaml:"image_batch_size"`
	// SystemPrompt overrides the built-in system instructions when set.
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// DisplayConfig describes the logical (model-facing) display geometry.
type DisplayConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
	// Number selects the physical monitor, 1-based, ordered left to right.
	Number int `mapstructure:"number" yaml:"number"`
}

// ScalingConfig controls logical<->physical coordinate mapping.
type ScalingConfig struct {
	Enabled             bool `mapstructure:"enabled" yaml:"enabled"`
	BaseWidth           int  `mapstructure:"base_width" yaml:"base_width"`
	BaseHeight          int  `mapstructure:"base_height" yaml:"base_height"`
	MaintainAspectRatio bool `mapstructure:"maintain_aspect_ratio" yaml:"maintain_aspect_ratio"`
}

// ScreenshotConfig controls capture and encoding.
type ScreenshotConfig struct {
	// SettleDelay is how long the desktop gets to settle before capture.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// Compression selects the PNG compression level: "default", "speed",
	// "best" or "none".
	Compression string `mapstructure:"compression" yaml:"compression"`
}

// InputConfig controls OS input injection pacing.
type InputConfig struct {
	// TypingChunkSize is how many characters are entered per burst.
	TypingChunkSize int `mapstructure:"typing_chunk_size" yaml:"typing_chunk_size"`
	// TypingDelay is the inter-keystroke delay within a burst.
	TypingDelay time.Duration `mapstructure:"typing_delay" yaml:"typing_delay"`
	// ChunkPause is the settle pause after each burst.
	ChunkPause time.Duration `mapstructure:"chunk_pause" yaml:"chunk_pause"`
	// DragDuration is the press-to-release travel time for drags.
	DragDuration time.Duration `mapstructure:"drag_duration" yaml:"drag_duration"`
	// PostActionPause follows pointer moves and clicks.
	PostActionPause time.Duration `mapstructure:"post_action_pause" yaml:"post_action_pause"`
}

// AcceleratorProvider enumerates the supported command-accelerator backends.
type AcceleratorProvider string

const (
	AcceleratorOpenAI AcceleratorProvider = "openai"
	AcceleratorGemini AcceleratorProvider = "gemini"
)

// AcceleratorConfig configures the optional command pre-processing step.
type AcceleratorConfig struct {
	Enabled  bool                `mapstructure:"enabled" yaml:"enabled"`
	Provider AcceleratorProvider `mapstructure:"provider" yaml:"provider"`
	Model    string              `mapstructure:"model" yaml:"model"`
	// OpenAIAPIKey is normally bound from OPENAI_API_KEY.
	OpenAIAPIKey string `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	// GeminiAPIKey is normally bound from GEMINI_API_KEY.
	GeminiAPIKey string        `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout   time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature  float64       `mapstructure:"temperature" yaml:"temperature"`
	// MaxChars caps the enhanced command length the provider is asked for.
	MaxChars int `mapstructure:"max_chars" yaml:"max_chars"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "marionette")
	v.SetDefault("logger.log_file", "marionette.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Model --
	v.SetDefault("model.id", "claude-3-5-sonnet-20241022")
	v.SetDefault("model.base_url", "https://api.anthropic.com")
	v.SetDefault("model.api_timeout", "30s")
	v.SetDefault("model.max_retries", 3)
	v.SetDefault("model.max_tokens", 1024)
	v.SetDefault("model.temperature", 0.0)
	v.SetDefault("model.requests_per_minute", 50.0)

	// -- Agent --
	v.SetDefault("agent.history_size", 10)
	v.SetDefault("agent.images_to_keep", 2)
	v.SetDefault("agent.image_batch_size", 2)
	v.SetDefault("agent.system_prompt", "")

	// -- Display / Scaling --
	v.SetDefault("display.width", 1024)
	v.SetDefault("display.height", 768)
	v.SetDefault("display.number", 1)
	v.SetDefault("scaling.enabled", true)
	v.SetDefault("scaling.base_width", 1366)
	v.SetDefault("scaling.base_height", 768)
	v.SetDefault("scaling.maintain_aspect_ratio", true)

	// -- Screenshot --
	v.SetDefault("screenshot.settle_delay", "500ms")
	v.SetDefault("screenshot.compression", "best")

	// -- Input --
	v.SetDefault("input.typing_chunk_size", 50)
	v.SetDefault("input.typing_delay", "12ms")
	v.SetDefault("input.chunk_pause", "20ms")
	v.SetDefault("input.drag_duration", "200ms")
	v.SetDefault("input.post_action_pause", "50ms")

	// -- Accelerator --
	v.SetDefault("accelerator.enabled", false)
	v.SetDefault("accelerator.provider", "openai")
	v.SetDefault("accelerator.model", "gpt-4o")
	v.SetDefault("accelerator.endpoint", "")
	v.SetDefault("accelerator.api_timeout", "30s")
	v.SetDefault("accelerator.temperature", 0.7)
	v.SetDefault("accelerator.max_chars", 300)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for secrets.
	v.BindEnv("model.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("accelerator.openai_api_key", "OPENAI_API_KEY")
	v.BindEnv("accelerator.gemini_api_key", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the keys if Unmarshal didn't pick them up.
	if cfg.ModelCfg.APIKey == "" {
		cfg.ModelCfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.AcceleratorCfg.OpenAIAPIKey == "" {
		cfg.AcceleratorCfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.AcceleratorCfg.GeminiAPIKey == "" {
		cfg.AcceleratorCfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ModelCfg.ID == "" {
		return fmt.Errorf("model.id is a required configuration field")
	}
	if c.ModelCfg.MaxTokens <= 0 {
		return fmt.Errorf("model.max_tokens must be a positive integer")
	}
	if c.ModelCfg.RequestsPerMinute <= 0 {
		return fmt.Errorf("model.requests_per_minute must be positive")
	}
	if c.DisplayCfg.Width <= 0 || c.DisplayCfg.Height <= 0 {
		return fmt.Errorf("display dimensions must be positive")
	}
	if c.DisplayCfg.Number < 1 {
		return fmt.Errorf("display.number is 1-based and must be >= 1")
	}
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if c.InputCfg.TypingChunkSize <= 0 {
		return fmt.Errorf("input.typing_chunk_size must be a positive integer")
	}
	if err := c.AcceleratorCfg.Validate(); err != nil {
		return fmt.Errorf("accelerator configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the control loop settings.
func (a *AgentConfig) Validate() error {
	if a.HistorySize < 1 {
		return fmt.Errorf("history_size must be >= 1")
	}
	if a.ImagesToKeep < 1 {
		return fmt.Errorf("images_to_keep must be >= 1")
	}
	if a.ImageBatchSize < 1 {
		return fmt.Errorf("image_batch_size must be >= 1")
	}
	return nil
}

// Validate checks the accelerator settings.
func (a *AcceleratorConfig) Validate() error {
	if !a.Enabled {
		return nil
	}
	switch a.Provider {
	case AcceleratorOpenAI, AcceleratorGemini:
	default:
		return fmt.Errorf("unknown accelerator provider %q", a.Provider)
	}
	if a.Model == "" {
		return fmt.Errorf("model is required when the accelerator is enabled")
	}
	if a.MaxChars <= 0 {
		return fmt.Errorf("max_chars must be a positive integer")
	}
	return nil
}
