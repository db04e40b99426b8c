// Package main provides the planarc command-line entry point.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/michaelc143/Planarc/services"
)

var (
	envFile string
	conf    = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "planarc",
	Short: "Multi-tenant Kanban board service",
	Long: `planarc serves boards, lanes, tasks, sprints and reports over a JSON API.

Quick start:
  planarc migrate             Apply pending schema migrations
  planarc token --user-id 1   Mint a development token
  planarc serve               Start the HTTP server`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file with settings")
	rootCmd.PersistentFlags().String("db-driver", "", "database driver (sqlite or postgres)")
	rootCmd.PersistentFlags().String("database-url", "", "database path or connection string")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text or json)")

	bindFlag(rootCmd, services.KeyDBDriver, "db-driver")
	bindFlag(rootCmd, services.KeyDatabaseURL, "database-url")
	bindFlag(rootCmd, services.KeyLogLevel, "log-level")
	bindFlag(rootCmd, services.KeyLogFormat, "log-format")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newTokenCmd())
}

func bindFlag(cmd *cobra.Command, key, name string) {
	flag := cmd.PersistentFlags().Lookup(name)
	if flag == nil {
		flag = cmd.Flags().Lookup(name)
	}
	if err := conf.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// loadRuntime resolves the configuration and installs the default logger.
func loadRuntime() (*services.Config, *slog.Logger, error) {
	cfg, err := services.LoadConfig(conf, envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := services.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
