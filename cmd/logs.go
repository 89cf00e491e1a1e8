// File: cmd/logs.go
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

// newLogsCmd creates and configures the `logs` command.
func newLogsCmd() *cobra.Command {
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Prints the application log, optionally following new entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadedConfig
			if cfg == nil {
				return fmt.Errorf("configuration was not initialized")
			}
			logFile := cfg.Logger().LogFile
			if logFile == "" {
				return fmt.Errorf("no log file configured (logger.log_file)")
			}

			lines, err := cmd.Flags().GetInt("lines")
			if err != nil {
				return err
			}
			follow, err := cmd.Flags().GetBool("follow")
			if err != nil {
				return err
			}

			if err := printLastLines(cmd, logFile, lines); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			return followLog(cmd, logFile)
		},
	}

	logsCmd.Flags().IntP("lines", "n", 50, "Number of trailing log lines to print.")
	logsCmd.Flags().BoolP("follow", "f", false, "Keep the log open and stream new entries.")

	return logsCmd
}

// printLastLines dumps the trailing n lines of the log file.
func printLastLines(cmd *cobra.Command, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "Log file %s does not exist yet.\n", path)
			return nil
		}
		return fmt.Errorf("failed to read log file: %w", err)
	}

	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	for _, line := range all {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

// followLog streams appended lines until the context is cancelled. The file
// is reopened across rotations so following survives lumberjack rollover.
func followLog(cmd *cobra.Command, path string) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: 2},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail log file: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("error while following log: %w", line.Err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line.Text)
		}
	}
}
