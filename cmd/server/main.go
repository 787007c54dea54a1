package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/studydata/internal/config"
	"github.com/JonMunkholm/studydata/internal/core"
	"github.com/JonMunkholm/studydata/internal/database"
	"github.com/JonMunkholm/studydata/internal/database/sqlite"
	"github.com/JonMunkholm/studydata/internal/logging"
	"github.com/JonMunkholm/studydata/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"export_path", cfg.Export.Path,
		"audit_log", cfg.Audit.LogPath,
		"instruction_dir", cfg.Instructions.Dir(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	auditLog, err := logging.OpenAuditLog(cfg.Audit.LogPath)
	if err != nil {
		slog.Error("failed to open audit log", "error", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	ctx := context.Background()
	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	metrics := core.NewMetrics(prometheus.DefaultRegisterer)
	audit := core.NewAuditService(store, auditLog.Logger)
	exporter := core.NewExporter(cfg.Export.Path, core.NewSnapshotWriter(store), audit, metrics)
	instructions := core.NewInstructionLibrary(cfg.Instructions.Dir(), store, audit, cfg.Instructions.MaxUploadBytes)
	service := core.NewService(store, audit, exporter, instructions)

	server := web.NewServer(service, cfg, prometheus.DefaultGatherer)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	sweeper := core.NewTempSweeper(cfg.Export.Path, core.SweepConfig{
		Schedule: cfg.Export.TempSweepSchedule,
		MaxAge:   cfg.Export.TempMaxAge,
	}, metrics)
	if err := sweeper.Start(jobCtx); err != nil {
		slog.Error("failed to start temp sweeper", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests first so no new export can start.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Let a running export rename its temp file
		if n := exporter.ActiveCount(); n > 0 {
			slog.Info("waiting for export to complete", "active", n)
			if err := exporter.WaitForExports(shutdownCtx); err != nil {
				slog.Warn("export did not complete in time", "error", err)
			} else {
				slog.Info("export completed")
			}
		}

		// Stop background jobs
		cancelJobs()
		sweeper.Stop()
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("server stopped")
}

// openStore connects the store selected by DATABASE_URL.
func openStore(ctx context.Context, cfg *config.DatabaseConfig) (core.Store, error) {
	driver, err := cfg.Driver()
	if err != nil {
		return nil, err
	}

	if driver == config.DriverSQLite {
		path := cfg.SQLitePath()
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to database", "driver", driver, "path", path)
		return store, nil
	}

	pool, err := database.Open(ctx, database.PoolConfig{
		URL:             cfg.URL,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "driver", driver, "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database", "driver", driver)
	}
	return database.NewStore(pool), nil
}
