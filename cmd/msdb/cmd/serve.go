package cmd

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
	"go.uber.org/zap"

	"github.com/ChrisMcGann/msdb/internal/metrics"
	"github.com/ChrisMcGann/msdb/internal/transport/httpapi"
	"github.com/ChrisMcGann/msdb/internal/usecase/search"
	"github.com/ChrisMcGann/msdb/pkg/core"
	"github.com/ChrisMcGann/msdb/pkg/index"
	"github.com/ChrisMcGann/msdb/pkg/match"
	"github.com/ChrisMcGann/msdb/pkg/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP search service",
	Long: `Serve searches over HTTP against an in-memory index of a reference database.

Endpoints:
  POST /v1/search   match peaks given as columns: {"mz": [...], "rt": [...], "mode": "pos"}
  POST /v1/reload   rebuild the index from the database and swap it in
  GET  /healthz     index status
  GET  /metrics     Prometheus metrics`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"db":        "database.path",
			"addr":      "http.addr",
			"unit":      "tolerance.unit",
			"shift":     "tolerance.shift",
			"precision": "tolerance.precision",
			"adducts":   "adducts.file",
			"workers":   "search.workers",
		})
	},
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("db", "msdb.db", "Reference database file")
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	serveCmd.Flags().String("unit", "ppm", "Tolerance unit: ppm or absolute")
	serveCmd.Flags().Float64("shift", 0, "Default m/z shift when a request omits it")
	serveCmd.Flags().Float64("precision", 5, "Default precision when a request omits it")
	serveCmd.Flags().String("adducts", "", "CSV file with extra adduct definitions (name,mass,charge[,multiplier])")
	serveCmd.Flags().Int("workers", 4, "Concurrent query chunks per search")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting msdb HTTP server",
		zap.String("version", rootCmd.Version),
		zap.String("env", cfg.Logging.Env),
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("database", cfg.Database.Path),
		zap.String("unit", cfg.Tolerance.Unit),
	)

	metrics.RegisterSearchMetrics()
	metrics.RegisterHTTPMetrics()

	snapshot := index.NewSnapshot()
	engineConfig, err := cfg.EngineConfig(log)
	if err != nil {
		return err
	}
	engine, err := match.NewEngine(snapshot, engineConfig)
	if err != nil {
		return err
	}

	dbPath := cfg.Database.Path
	loader := func(ctx context.Context) ([]core.ReferenceEntry, error) {
		return sqlite.LoadEntries(ctx, dbPath)
	}

	server := httpapi.NewServer(snapshot, search.NewInstrumentedSearcher(engine, log), loader, httpapi.Options{
		Shift:           cfg.Tolerance.Shift,
		Precision:       cfg.Tolerance.Precision,
		RTTolerance:     cfg.Tolerance.RTTolerance,
		MaxRequestBytes: cfg.HTTP.MaxRequestBytes,
		APIKeys:         cfg.HTTP.APIKeys,
		Logger:          log,
	})

	if _, err := server.Reload(cmd.Context()); err != nil {
		return fmt.Errorf("failed to load reference database: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		return err
	}

	log.Info("Server stopped gracefully")
	return nil
}
