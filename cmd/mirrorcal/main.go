package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mirrorcal/internal/capture"
	"mirrorcal/internal/config"
	appLog "mirrorcal/internal/log"
)

var version = "0.1.0-dev"

// globalFlags holds flag values shared by every command.
type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	listen     string
}

var flags globalFlags

func bindGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&flags.configPath, "config", "/etc/mirrorcal/config.yaml", "Path to config file")
	fs.StringVar(&flags.envFile, "env-file", ".env", "Optional .env file with MIRRORCAL_* overrides")
	fs.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")
}

var rootCmd = &cobra.Command{
	Use:           "mirrorcal",
	Short:         "Weekly calendar module for a smart-mirror dashboard",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	bindGlobalFlags(rootCmd.PersistentFlags())

	serveCmd.Flags().StringVar(&flags.listen, "listen", "", "HTTP listen address (overrides config if set)")
	rootCmd.AddCommand(serveCmd)

	renderCmd.Flags().String("url", "", "Page to capture (default: the configured /calendar)")
	renderCmd.Flags().String("output", "", "PNG output path (default: snapshot.output_path)")
	rootCmd.AddCommand(renderCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config file, then applies .env, environment and
// flag overrides in that order of increasing precedence.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", flags.envFile, err)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if flags.listen != "" {
		cfg.Listen = flags.listen
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", flags.configPath, err)
	}

	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Capture one PNG snapshot of a running server's calendar page",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts := capture.OptionsFromConfig(cfg)
		if u, _ := cmd.Flags().GetString("url"); u != "" {
			opts.URL = u
		}
		if out, _ := cmd.Flags().GetString("output"); out != "" {
			opts.OutputPath = out
		}

		if err := capture.CaptureCalendarPNG(cmd.Context(), opts); err != nil {
			return err
		}
		appLog.Info("snapshot written", "path", opts.OutputPath, "url", opts.URL)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(flags.configPath); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", flags.configPath)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := config.Save(flags.configPath, config.DefaultConfig()); err != nil {
			return err
		}
		appLog.Info("default config written", "path", flags.configPath)
		return nil
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		appLog.Error("mirrorcal failed", err)
		os.Exit(1)
	}
}
