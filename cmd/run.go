// File: cmd/run.go
package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/agent"
	"github.com/xkilldash9x/marionette-cli/internal/capture"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/input"
	"github.com/xkilldash9x/marionette-cli/internal/llmclient"
	"github.com/xkilldash9x/marionette-cli/internal/manager"
	"github.com/xkilldash9x/marionette-cli/internal/observability"
	"github.com/xkilldash9x/marionette-cli/internal/screen"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [instruction...]",
		Short: "Executes a single natural-language instruction against the desktop",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			statusOnly, err := cmd.Flags().GetBool("status")
			if err != nil {
				return err
			}
			if !statusOnly && len(args) == 0 {
				return fmt.Errorf("requires an instruction (or --status)")
			}

			cfg := loadedConfig
			if cfg == nil {
				return fmt.Errorf("configuration was not initialized")
			}
			applyFlagOverrides(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration after flag overrides: %w", err)
			}

			components, err := initializeSessionComponents(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize session components: %w", err)
			}
			defer components.Shutdown()

			if statusOnly {
				printSessionStatus(cmd.OutOrStdout(), components.Manager.Status())
				return nil
			}

			components.Manager.Start()

			instruction := strings.Join(args, " ")
			logger.Info("Submitting instruction",
				zap.String("instruction", instruction),
				zap.Int("display", cfg.Display().Number))

			printer := newChunkPrinter(cmd.OutOrStdout())
			command := components.Manager.Submit(instruction, printer.observe)

			select {
			case <-command.Done():
			case <-ctx.Done():
				components.Manager.CancelCurrent()
			}

			switch command.State() {
			case schemas.CommandCompleted:
				fmt.Fprintln(cmd.OutOrStdout(), "\nCommand completed.")
				return nil
			case schemas.CommandCancelled:
				fmt.Fprintln(cmd.OutOrStdout(), "\nCommand cancelled.")
				if ctx.Err() != nil {
					return fmt.Errorf("command aborted by user signal")
				}
				return nil
			default:
				return fmt.Errorf("command failed: %s", command.Err())
			}
		},
	}

	runCmd.Flags().IntP("display", "d", 0, "Physical display number, 1-based. (Overrides config/env)")
	runCmd.Flags().StringP("model", "m", "", "Model identifier for the computer-use turns. (Overrides config/env)")
	runCmd.Flags().Bool("no-scaling", false, "Disable logical<->physical coordinate scaling.")
	runCmd.Flags().Bool("accelerate", false, "Rewrite the instruction through the configured accelerator first.")
	runCmd.Flags().Bool("status", false, "Print the session status snapshot instead of running an instruction.")

	return runCmd
}

// applyFlagOverrides pushes explicit run flags over the loaded configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("display") {
		if n, err := cmd.Flags().GetInt("display"); err == nil {
			cfg.SetDisplayNumber(n)
		}
	}
	if cmd.Flags().Changed("model") {
		if id, err := cmd.Flags().GetString("model"); err == nil && id != "" {
			cfg.SetModelID(id)
		}
	}
	if cmd.Flags().Changed("no-scaling") {
		if disabled, err := cmd.Flags().GetBool("no-scaling"); err == nil && disabled {
			cfg.SetScalingEnabled(false)
		}
	}
	if cmd.Flags().Changed("accelerate") {
		if enabled, err := cmd.Flags().GetBool("accelerate"); err == nil {
			cfg.SetAcceleratorEnabled(enabled)
		}
	}
}

// sessionComponents holds the initialized services for one agent session.
type sessionComponents struct {
	Client      schemas.ModelClient
	Accelerator schemas.Accelerator
	Executor    *agent.ToolExecutor
	Loop        *agent.ControlLoop
	Manager     *manager.Manager
	Display     schemas.DisplayInfo
}

// Shutdown gracefully closes all components.
func (sc *sessionComponents) Shutdown() {
	logger := observability.GetLogger()
	if sc.Manager != nil {
		sc.Manager.Shutdown()
	}
	if sc.Loop != nil {
		sc.Loop.Close()
	}
	if sc.Client != nil {
		if err := sc.Client.Close(); err != nil {
			logger.Warn("Error closing model client", zap.Error(err))
		}
	}
	if sc.Accelerator != nil {
		if err := sc.Accelerator.Close(); err != nil {
			logger.Warn("Error closing accelerator", zap.Error(err))
		}
	}
}

// newCoordinateMapper builds the mapper over the same canvas the screenshot
// pipeline normalizes captures to. Model coordinates index into the image the
// model was shown, so the mapper and the pipeline must share one logical
// space or clicks land off-target.
func newCoordinateMapper(cfg config.Interface, geometry screen.Geometry) *screen.Mapper {
	scaling := cfg.Scaling()
	return screen.NewMapper(geometry, scaling.BaseWidth, scaling.BaseHeight, scaling.Enabled)
}

// initializeSessionComponents handles dependency injection.
func initializeSessionComponents(cfg *config.Config, logger *zap.Logger) (*sessionComponents, error) {
	components := &sessionComponents{}

	// 1. Display geometry and coordinate mapping.
	geometry := screen.Detect(logger, cfg.Display().Number, screen.DefaultProbes()...)
	mapper := newCoordinateMapper(cfg, geometry)

	components.Display = schemas.DisplayInfo{
		ScalingEnabled: cfg.Scaling().Enabled,
		LogicalWidth:   cfg.Scaling().BaseWidth,
		LogicalHeight:  cfg.Scaling().BaseHeight,
		RealWidth:      geometry.Width,
		RealHeight:     geometry.Height,
		OffsetX:        geometry.OffsetX,
		OffsetY:        geometry.OffsetY,
		DisplayNumber:  cfg.Display().Number,
	}

	// 2. Screenshot pipeline and OS input injection.
	pipeline := capture.NewPipeline(cfg, capture.DisplayCapturer{}, geometry, logger)
	injector := input.NewRobotgoInjector()

	// 3. Tool executor.
	executor := agent.NewToolExecutor(cfg, injector, pipeline, mapper, logger)
	components.Executor = executor

	// 4. Model transport.
	client, err := llmclient.NewAnthropicClient(cfg.Model(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model client: %w", err)
	}
	components.Client = client

	// 5. Control loop.
	loop := agent.NewControlLoop(cfg, client, executor, logger)
	components.Loop = loop

	// 6. Optional command accelerator.
	accelerator, err := llmclient.NewAccelerator(cfg.Accelerator(), logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize accelerator: %w", err)
	}
	components.Accelerator = accelerator

	// 7. Command manager.
	mgr, err := manager.NewManager(loop, accelerator, executor, components.Display, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize command manager: %w", err)
	}
	components.Manager = mgr

	return components, nil
}

// chunkPrinter renders command callbacks as a readable stream, skipping the
// repeated final chunk the terminal transition carries.
type chunkPrinter struct {
	mu          sync.Mutex
	out         io.Writer
	lastPrinted string
}

func newChunkPrinter(out io.Writer) *chunkPrinter {
	return &chunkPrinter{out: out}
}

func (p *chunkPrinter) observe(cmd *manager.Command) {
	chunk := cmd.Result()
	p.mu.Lock()
	defer p.mu.Unlock()
	if chunk == "" || chunk == p.lastPrinted {
		return
	}
	p.lastPrinted = chunk
	fmt.Fprintln(p.out, chunk)
}
