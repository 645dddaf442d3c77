package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"zone-routing-service/internal/adapters/cache"
	"zone-routing-service/internal/adapters/matrix"
	"zone-routing-service/internal/api"
	"zone-routing-service/internal/config"
	"zone-routing-service/internal/dataset"
	"zone-routing-service/internal/platform/db"
	"zone-routing-service/internal/platform/obs"
	"zone-routing-service/internal/runstore"
	"zone-routing-service/internal/services"
)

// main is the application composition root. It wires concrete adapters
// (dataset files, OSRM table service, run store) behind ports and starts
// the HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := obs.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	slog.SetDefault(logger)

	loader := dataset.NewLoader(
		filepath.Join(cfg.DataRoot, cfg.CustomerFile),
		filepath.Join(cfg.DataRoot, cfg.DepotFile),
		logger,
	)
	if err := loader.Load(); err != nil {
		logger.Error("dataset load failed", "err", err)
		os.Exit(1)
	}

	pairs, closeCache, err := openPairCache(cfg, logger)
	if err != nil {
		logger.Error("matrix cache unavailable", "err", err)
		os.Exit(1)
	}
	if closeCache != nil {
		defer closeCache()
	}

	provider, err := matrix.New(matrix.Config{
		BaseURL:     cfg.MatrixBaseURL,
		Profile:     cfg.MatrixProfile,
		MaxRetries:  cfg.MatrixMaxRetries,
		Backoff:     cfg.MatrixBackoff(),
		ChunkSize:   cfg.MatrixChunkSize,
		Concurrency: cfg.MatrixConcurrency,
	}, pairs, logger)
	if err != nil {
		logger.Error("matrix provider init failed", "err", err)
		os.Exit(1)
	}

	runs := runstore.New(filepath.Join(cfg.DataRoot, "outputs"), logger)

	svc := services.NewOrchestrator(loader, provider, runs, logger, services.Options{
		WorkingDays:      cfg.WorkingDays,
		SolverTimeLimit:  cfg.SolverTimeLimit(),
		BalanceTolerance: cfg.BalanceToleranceDflt,
	})

	// Timeouts are tuned for cold-cache matrix fetches (external API latency).
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.NewRouter(svc, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server listening", "addr", srv.Addr, "matrix_base_url", cfg.MatrixBaseURL)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// openPairCache picks the persistent matrix cache backend. Postgres wins
// when both are configured; with neither, the provider runs uncached.
func openPairCache(cfg config.Config, logger *slog.Logger) (cache.PairCache, func() error, error) {
	switch {
	case cfg.CacheDatabaseURL != "":
		conn, err := db.Open(cfg.CacheDatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open pair cache: %w", err)
		}
		logger.Info("matrix pair cache enabled", "backend", "postgres")
		return cache.NewSQLMatrixCache(conn), conn.Close, nil

	case cfg.CacheSqlitePath != "":
		conn, err := sql.Open("sqlite", cfg.CacheSqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open pair cache: %w", err)
		}
		if err := cache.InitSqliteSchema(conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("open pair cache: %w", err)
		}
		logger.Info("matrix pair cache enabled", "backend", "sqlite", "path", cfg.CacheSqlitePath)
		return cache.NewSqliteMatrixCache(conn), conn.Close, nil

	default:
		logger.Info("matrix pair cache disabled")
		return nil, nil, nil
	}
}
