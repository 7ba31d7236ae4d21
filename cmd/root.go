package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dokanalyse",
	Short: "Spatial analysis of an input geometry against public datasets",
	Long:  "Intersects an input geometry with configured OGC API and shapefile datasets and reports hit status, areas, distance, guidance and quality measurements per dataset.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return cfg.Validate()
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
