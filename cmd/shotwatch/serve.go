package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/shotwatch/shotwatch/internal/database"
	"github.com/shotwatch/shotwatch/internal/emitter"
	"github.com/shotwatch/shotwatch/internal/logging"
	"github.com/shotwatch/shotwatch/internal/metrics"
	"github.com/shotwatch/shotwatch/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local ActivityWatch-compatible collection service",
	Long: `Serve the collector REST API on --host/--port over the local sqlite
store, together with /api/0/report, /healthz, /metrics and the screenshot
directory.

Examples:
  shotwatch serve
  shotwatch serve --testing        # listen on the testing port
  shotwatch serve --port 5601`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("storage-dir", "", "screenshot directory to serve")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	handler := web.NewHandler(database.NewRepository(db), web.Options{
		Hostname:   emitter.Hostname(),
		Testing:    cfg.Server.Testing,
		StorageDir: cfg.Capture.StorageDir,
	}, metrics.New(prometheus.NewRegistry()), logger.Slog())

	server := web.NewServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), handler.Routes(), logger.Slog())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
