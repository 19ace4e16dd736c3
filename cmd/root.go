package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "receipts",
	Short: "Multi-source receipt extraction aggregator",
	Long:  "Scores extraction results from multiple receipt sources, reconciles them into a single record with full field attribution, and persists run history.",
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
