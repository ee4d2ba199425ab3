package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragaeeb/beltane-pipeline/internal/config"
)

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(newConfigValidateCmd(configPath))
	return cmd
}

func newConfigValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config file without starting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			fmt.Printf("config OK: dataDir=%s dbPath=%s engine=%s jobs=%d\n",
				cfg.DataDir, cfg.DBPath, cfg.Engine, cfg.Jobs)
			return nil
		},
	}
}
