// File: cmd/session.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/manager"
	"github.com/xkilldash9x/marionette-cli/internal/observability"
)

const sessionPrompt = "marionette> "

const sessionHelp = `Enter a natural-language instruction to queue it for the agent.

Session keywords:
  status        show queue, current command and tool statistics
  cancel        cancel the command currently executing
  help          show this help
  exit | quit   shut down the session
`

// StartSession runs the interactive agent shell on stdin/stdout. Commands
// typed at the prompt are queued on a shared manager, so a long-running
// instruction can be cancelled or inspected from the same terminal.
func StartSession(ctx context.Context) error {
	v := viper.New()
	config.SetDefaults(v)
	if err := setupConfigSources(v); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	observability.InitializeLogger(cfg.Logger())
	defer observability.Sync()
	logger := observability.GetLogger()

	components, err := initializeSessionComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session components: %w", err)
	}
	defer components.Shutdown()

	components.Manager.Start()
	logger.Info("Interactive session started.",
		zap.Int("display", components.Display.DisplayNumber),
		zap.Bool("scaling", components.Display.ScalingEnabled),
	)

	fmt.Printf("Display %d: %dx%d logical -> %dx%d real. Type 'help' for keywords.\n\n",
		components.Display.DisplayNumber,
		components.Display.LogicalWidth, components.Display.LogicalHeight,
		components.Display.RealWidth, components.Display.RealHeight,
	)

	// Ctrl+C cancels the in-flight command even while the loop below is
	// blocked reading stdin.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			components.Manager.CancelCurrent()
		case <-sessionDone:
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)

loop:
	for {
		fmt.Print(sessionPrompt)
		if !scanner.Scan() {
			break // Exit on EOF (Ctrl+D).
		}
		if ctx.Err() != nil {
			fmt.Println("Interrupted.")
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "exit", "quit":
			break loop
		case "help":
			fmt.Print(sessionHelp)
		case "status":
			printSessionStatus(os.Stdout, components.Manager.Status())
		case "cancel":
			components.Manager.CancelCurrent()
		default:
			// Fire and forget: progress arrives through the observer while
			// the prompt stays responsive for status/cancel.
			cmd := components.Manager.Submit(line, newSessionObserver(os.Stdout))
			fmt.Printf("[%s] queued\n", shortID(cmd.ID))
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		return err
	}

	fmt.Println("Exiting marionette.")
	return nil
}

// newSessionObserver returns a per-command callback that prints streamed
// result chunks and a single terminal-state line.
func newSessionObserver(out io.Writer) func(*manager.Command) {
	var (
		mu            sync.Mutex
		lastPrinted   string
		finalReported bool
	)
	return func(cmd *manager.Command) {
		mu.Lock()
		defer mu.Unlock()

		if result := cmd.Result(); result != "" && result != lastPrinted {
			lastPrinted = result
			fmt.Fprintf(out, "[%s] %s\n", shortID(cmd.ID), result)
		}

		state := cmd.State()
		if !state.IsTerminal() || finalReported {
			return
		}
		finalReported = true
		switch state {
		case schemas.CommandCompleted:
			fmt.Fprintf(out, "[%s] completed\n", shortID(cmd.ID))
		case schemas.CommandCancelled:
			fmt.Fprintf(out, "[%s] cancelled\n", shortID(cmd.ID))
		default:
			fmt.Fprintf(out, "[%s] failed: %s\n", shortID(cmd.ID), cmd.Err())
		}
	}
}

// printSessionStatus renders a SystemStatus snapshot for the shell.
func printSessionStatus(out io.Writer, status schemas.SystemStatus) {
	fmt.Fprintf(out, "Session:  %s\n", status.SessionID)
	fmt.Fprintf(out, "Running:  %t\n", status.Running)
	if status.Current != nil {
		fmt.Fprintf(out, "Current:  [%s] %s (%s)\n",
			shortID(status.Current.ID), status.Current.Text, status.Current.State)
	} else {
		fmt.Fprintln(out, "Current:  idle")
	}
	fmt.Fprintf(out, "Queued:   %d\n", status.QueueDepth)
	fmt.Fprintf(out, "History:  %d commands\n", status.HistoryCount)
	fmt.Fprintf(out, "Tools:    %d calls (%d ok, %d failed), avg %.3fs\n",
		status.ToolStats.TotalCalls, status.ToolStats.SuccessCount,
		status.ToolStats.ErrorCount, status.ToolStats.AverageDuration)
	fmt.Fprintf(out, "Display:  %d (%dx%d logical -> %dx%d real)\n",
		status.Display.DisplayNumber,
		status.Display.LogicalWidth, status.Display.LogicalHeight,
		status.Display.RealWidth, status.Display.RealHeight)
}

// shortID truncates a command UUID for shell output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
