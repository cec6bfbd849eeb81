package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/impresso/consolidator/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "consolidator",
	Short: "Consolidate canonical newspaper issues with langident/OCRQA enrichments",
	Long: "Fuses canonical issue data with per-content-item language identification and OCR\n" +
		"quality enrichments, producing a versioned consolidated dataset. Partitions are\n" +
		"processed idempotently, so any number of workers and machines can run concurrently.",
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
