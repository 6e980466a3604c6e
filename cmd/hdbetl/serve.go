package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/hdb-property-etl/internal/adapter/http"
)

var serveFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the enriched table as a read-only dashboard",
	Long:  "Serves GET / (HTML table), GET /api/properties (JSON), /healthz, /readyz and /metrics on HTTP_ADDR.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path := cfg.OutputPath
		if serveFile != "" {
			path = serveFile
		}
		source := httpadapter.FileSource{Path: path}
		srv := httpadapter.NewServer(cfg.HTTPAddr, source, source, logger)

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFile, "file", "", "enriched CSV to serve (default: OUTPUT_PATH)")
	rootCmd.AddCommand(serveCmd)
}
