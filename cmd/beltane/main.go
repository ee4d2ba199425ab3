// Command beltane is the local-first transcription pipeline's CLI and
// HTTP daemon entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragaeeb/beltane-pipeline/internal/config"
	"github.com/ragaeeb/beltane-pipeline/internal/log"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		cliLogger := log.WithComponent("cli")
		cliLogger.Error().Err(err).Msg("command failed")
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "beltane",
		Short:         "Local-first transcription pipeline orchestrator",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("BPB_CONFIG_PATH"), "path to JSON config file")
	cmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override the configured log level")

	cmd.AddCommand(newRunCmd(&configPath))
	cmd.AddCommand(newSearchCmd(&configPath))
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newConfigCmd(&configPath))

	return cmd
}

var logLevelFlag string

// loadConfig loads and validates RunConfig, then configures the global
// logger from it before returning.
func loadConfig(path string) (config.RunConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	log.Configure(log.Config{Level: level, Version: version})
	return cfg, nil
}

// exitCodeFor maps a terminal error to the process exit code: 130 for
// user interruption, 1 for everything else.
func exitCodeFor(err error) int {
	if err == errInterrupted {
		return 130
	}
	return 1
}
