// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/observability"
)

var (
	cfgFile string
	// loadedConfig is populated by the root command's PersistentPreRunE and
	// consumed by subcommands.
	loadedConfig *config.Config
)

// NewRootCommand builds a pristine root command tree. Interactive sessions
// create a fresh instance per line so flag state never leaks between runs.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "marionette",
		Short:   "Marionette drives a desktop through a remote computer-use model.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "marionette"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "marionette"})
				return err
			}
			loadedConfig = cfg

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Info("Starting marionette", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml, then ~/.marionette/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newLogsCmd())
	return rootCmd
}

// Execute runs the CLI against the given signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		return err
	}
	return nil
}

// initializeConfig reads in the config file and MARIONETTE_* environment
// variables, then binds command flags over them.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if err := setupConfigSources(v); err != nil {
		return err
	}
	return v.BindPFlags(cmd.Flags())
}

// setupConfigSources wires the config file search path and environment
// binding. Interactive sessions use it without a cobra command.
func setupConfigSources(v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".marionette"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("MARIONETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}
	return nil
}
