package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/hdb-property-etl/internal/adapter/apiclient"
	"github.com/couchcryptid/hdb-property-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/hdb-property-etl/internal/adapter/datagov"
	httpadapter "github.com/couchcryptid/hdb-property-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hdb-property-etl/internal/adapter/kafka"
	"github.com/couchcryptid/hdb-property-etl/internal/adapter/onemap"
	"github.com/couchcryptid/hdb-property-etl/internal/domain"
	"github.com/couchcryptid/hdb-property-etl/internal/observability"
	"github.com/couchcryptid/hdb-property-etl/internal/pipeline"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run the export, enrichment and load pipeline once",
	Long: "Exports the dataset from data.gov.sg, keeps residential rows, joins area names " +
		"from the column metadata, geocodes every address with OneMap and writes OUTPUT_PATH. " +
		"Any failure aborts the run without writing output.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runFetch(ctx)
	},
}

func init() { rootCmd.AddCommand(fetchCmd) }

func runFetch(ctx context.Context) error {
	// Fail before any network traffic when the geocoder cannot authenticate.
	if err := cfg.OneMap.Validate(); err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	datagovAPI := apiclient.New("datagov", cfg.HTTPTimeout, logger, metrics)
	onemapAPI := apiclient.New("onemap", cfg.HTTPTimeout, logger, metrics)

	client := onemap.NewClient(onemapAPI, cfg.OneMapBaseURL, cfg.GeocodeRatePerMinute, logger, metrics)
	src := pipeline.Sources{
		Exporter: datagov.NewExporter(datagovAPI, cfg.DataGovBaseURL, cfg.PollMaxAttempts, cfg.PollInterval, logger, metrics),
		Metadata: datagov.NewMetadataClient(datagovAPI, cfg.DataGovMetadataBaseURL, logger),
		Tokens:   onemap.NewTokenProvider(onemapAPI, cfg.OneMapBaseURL, cfg.OneMap, logger),
		Geocoder: onemap.NewCachedGeocoder(client, cfg.GeocodeCacheSize, metrics),
	}

	loaders := []pipeline.Loader{csvfile.NewWriter(cfg.OutputPath, logger, metrics)}
	if cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(cfg, logger, metrics)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		loaders = append(loaders, writer)
		logger.Info("kafka fan-out enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(src, loaders, pipeline.Options{
		DatasetID:  cfg.DatasetID,
		TownColumn: cfg.TownColumn,
	}, logger, metrics)

	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, p, nil, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	sum, err := p.Run(ctx)
	if err != nil {
		var timeoutErr *domain.ExportTimeoutError
		if errors.As(err, &timeoutErr) {
			logger.Warn("export not ready; rerun later", "dataset_id", timeoutErr.DatasetID, "polls", timeoutErr.Attempts)
		}
		return fmt.Errorf("fetch: %w", err)
	}

	logger.Info("fetch complete",
		"output", cfg.OutputPath,
		"rows", sum.Residential,
		"mapped", sum.Mapped,
		"geocoded", sum.Geocoded,
	)
	return nil
}
