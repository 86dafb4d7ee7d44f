// Package cmd implements the inboxt command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"inboxt_server/config"
	"inboxt_server/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "inboxt",
	Short: "Daily AI email digests from Gmail",
	Long: `inboxt fetches each user's last day of Gmail, summarizes and ranks the
messages with an LLM and stores a short daily digest.

It runs as:
  - an HTTP API (serve --mode api)
  - a background worker that schedules and builds digests (serve --mode worker)
  - both in one process (serve, the default)`,
	SilenceUsage: true,
}

// version is set by main.
var version = "dev"

func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxt version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDigestCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// loadConfig reads .env when present, loads the environment and sets up
// logging for service.
func loadConfig(service string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: service,
		Console: cfg.IsDevelopment(),
	})
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "inboxt version %s\n", version)
		},
	}
}
