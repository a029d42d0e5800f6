package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taste-trails/localguide/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "localguide",
	Short: "Seoul local guide recommendation service",
	Long:  "Answers visitor questions by orchestrating cultural similarity, search index, and map providers over a resilience core, with a local knowledge base as the always-available fallback.",
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
