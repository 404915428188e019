package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prospexs-ab/prospexs-api/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "prospexs",
	Short: "B2B sales intelligence backend",
	Long:  "Campaign wizard API with LLM-driven lead enrichment: website analysis, audience discovery, lead search, and a multi-stage insight chain over a Postgres job queue.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
