package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/tickfeed/internal/config"
	"github.com/JonMunkholm/tickfeed/internal/core"
	_ "github.com/JonMunkholm/tickfeed/internal/core/feeds" // Register built-in feeds
	"github.com/JonMunkholm/tickfeed/internal/logging"
	"github.com/JonMunkholm/tickfeed/internal/metrics"
	"github.com/JonMunkholm/tickfeed/internal/pipeline"
	"github.com/JonMunkholm/tickfeed/internal/store"
	"github.com/JonMunkholm/tickfeed/internal/web"
)

func main() {
	// Overload so a local .env wins over stale shell exports
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := web.Deps{Config: cfg}

	if cfg.Database.Enabled() {
		pool, err := store.Open(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		deps.DB = pool
		slog.Info("connected to database", "name", store.DatabaseName(cfg.Database.URL))
	} else {
		slog.Warn("DATABASE_URL not set; ingested observations will not be persisted")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Metrics = metrics.New(reg)
	deps.Gatherer = reg
	deps.Limiter = pipeline.NewLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime, deps.Metrics)

	slog.Info("feeds registered", "count", core.FeedCount(), "groups", len(core.Groups()))
	for _, group := range core.Groups() {
		slog.Debug("feed group", "group", group, "feeds", len(core.ByGroup(group)))
	}

	server := web.NewServer(deps)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := deps.Limiter.Status(); status.Active > 0 {
			slog.Info("waiting for ingest runs to complete", "active", status.Active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("server stopped")
}
