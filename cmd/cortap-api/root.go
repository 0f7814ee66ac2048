package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cortap/cortap-rpt/internal/config"
	"github.com/cortap/cortap-rpt/pkg/log"
)

var rootCmd = &cobra.Command{
	Use:   "cortap-api",
	Short: "CORTAP audit report service",
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
}

// setup reads the configuration and installs the global logger. The returned
// func flushes and restores the previous logger.
func setup() (*config.Config, func()) {
	cfg, err := config.New()
	if err != nil {
		zap.S().Fatalw("reading configuration", "error", err)
	}

	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel))
	undo := zap.ReplaceGlobals(logger)

	return cfg, func() {
		_ = logger.Sync()
		undo()
	}
}
