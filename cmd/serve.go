// cmd/serve.go - HTTP service command implementation
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"poolscan/internal/cache"
	"poolscan/internal/config"
	"poolscan/internal/detect"
	"poolscan/internal/imagery"
	"poolscan/internal/logging"
	"poolscan/internal/pipeline"
	"poolscan/internal/server"
)

// serveCmd runs the detection pipeline as an HTTP service
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pool detection HTTP service",
	Long: `Start the HTTP service exposing the detection pipeline.

Endpoints:
  POST   /cv/pool-detect       Run detection for a parcel polygon
  DELETE /cv/cache/{parcelId}  Clear the cached result for one parcel
  DELETE /cv/cache             Clear every cached result
  GET    /cv/cache/stats       Cache statistics
  GET    /health               Liveness probe

The service shuts down gracefully on SIGINT and SIGTERM, draining
in-flight requests up to the configured shutdown timeout.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen-addr", ":8000", "listen address")
	viper.BindPFlag("server.listen_addr", serveCmd.Flags().Lookup("listen-addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(&cfg.Logging)

	store, err := cache.NewStore(&cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	fetcher := imagery.NewHTTPFetcher(cfg, logger)
	detector := detect.NewHTTPDetector(&cfg.Detection, logger)
	service := pipeline.New(cfg, store, fetcher, detector, logger)

	// Non-fatal: the inference service may come up after us.
	if cfg.Detection.InferenceURL != "" {
		if err := detector.Healthy(cmd.Context()); err != nil {
			logger.Warn("inference service not ready", "error", err)
		}
	}

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.New(service, logger).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting service", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("service failed: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("service stopped")
	return nil
}
