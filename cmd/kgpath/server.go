package kgpath

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/kgpath"
	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the kgpath HTTP server",
	Long: `Start the kgpath HTTP server to provide REST API access to path search and
relation scoring.

The server provides endpoints for:
- Scoring candidate relations (/api/v1/score, /api/v1/score/batch)
- Finding paths for a sample (/api/v1/paths)
- Loading triples into writable backends (/api/v1/ingest/triples)
- Health checks and Prometheus metrics

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().String("host", "localhost", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
	serverCmd.Flags().String("mode", "release", "Server mode (debug, release, test)")
	serverCmd.Flags().Bool("metrics", true, "expose Prometheus metrics on /metrics")
	serverCmd.Flags().Bool("tracing", false, "emit OpenTelemetry spans")
	serverCmd.Flags().Bool("no-scorer", false, "start without loading the encoder; scoring endpoints answer 501")

	addSearchFlags(serverCmd)
	addGraphFlags(serverCmd)
	addEncoderFlags(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("metrics") {
		cfg.Telemetry.Metrics = true
	}
	if err := validateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, closeLog := setupLogging(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	noScorer, _ := cmd.Flags().GetBool("no-scorer")
	prom := newRecorder(cfg)
	client, err := kgpath.NewClient(ctx, cfg, kgpath.Options{
		RequireScorer: !noScorer,
		Recorder:      recorderOrNil(prom),
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize kgpath: %w", err)
	}
	defer client.Close()

	deps := server.Dependencies{
		Graph:    client.Graph(),
		Loader:   client.Loader(),
		Finder:   client.Finder(),
		Recorder: recorderOrNil(prom),
		Logger:   logger,
	}
	if s := client.Scorer(); s != nil {
		deps.Scorer = s
	}
	if prom != nil {
		deps.Metrics = prom.Handler()
	}

	srv := server.New(cfg, deps)
	srv.Setup()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		logger.Info("Server stopped gracefully")
		return nil
	}
}

func validateServerConfig(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	return nil
}
