package main

import (
	"fmt"
	"os"

	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/persistence"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the Hermes base directory and default config.yaml",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := core.DefaultConfig()
	if dir := os.Getenv("HERMES_BASE_DIR"); dir != "" {
		cfg.BaseDir = dir
	}
	baseDir, err := cfg.ResolvedBaseDir()
	if err != nil {
		return core.NewError("init", core.KindFatal, err)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return core.NewError("init", core.KindFatal, err)
	}

	configs := persistence.NewConfigRepository(baseDir)
	if configs.Exists() {
		fmt.Fprintf(cmd.OutOrStdout(), "config.yaml already exists at %s\n", baseDir)
		return nil
	}
	if err := configs.Save(cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "initialized Hermes at %s\n", baseDir)
	return nil
}
