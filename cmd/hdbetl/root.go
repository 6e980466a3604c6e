// Command hdbetl fetches HDB property information from data.gov.sg, enriches
// it with area names and OneMap coordinates, and serves the result.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/hdb-property-etl/internal/config"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
)

var (
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hdbetl",
	Short: "HDB property retrieval and enrichment",
	Long: "Downloads the HDB property information dataset, keeps residential blocks, " +
		"attaches area names and OneMap coordinates, and writes an enriched CSV.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		logger = observability.NewLogger(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml, json, toml or .env); environment variables take precedence")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
