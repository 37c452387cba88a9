package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrypster/orderscope/internal/config"
	"github.com/scrypster/orderscope/internal/logger"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	appLog *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "orderscope",
	Short: "Browse and search a large remote order dataset",
	Long: `orderscope pages through a remote order dataset served in fixed-size chunks,
caches what it fetched, searches the remote index and filters pages with a
small query language.

Settings come from ORDERSCOPE_* environment variables, an optional .env file
and an optional YAML or TOML file given with --config.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadConfigFile(configPath)
		} else {
			cfg, err = config.LoadConfig()
		}
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		appLog = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level)
		slog.SetDefault(appLog)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
}
