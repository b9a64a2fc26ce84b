package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docoutline/internal/api"
	"github.com/dgallion1/docoutline/internal/cache"
	"github.com/dgallion1/docoutline/internal/config"
	"github.com/dgallion1/docoutline/internal/marker"
	"github.com/dgallion1/docoutline/internal/observability"
	"github.com/dgallion1/docoutline/internal/pathstore"
	"github.com/dgallion1/docoutline/internal/pipeline"
	"github.com/dgallion1/docoutline/internal/stats"
	"github.com/dgallion1/docoutline/internal/version"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, log, observability.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.OTelServiceName,
		Version:     version.Version,
		Endpoint:    cfg.OTelEndpoint,
	})
	if err != nil {
		log.Error("tracing init failed", "error", err)
		os.Exit(1)
	}

	// Catalogs.
	catalogs := marker.NewRegistry()
	if cfg.CatalogDir != "" {
		n, err := catalogs.LoadDir(cfg.CatalogDir)
		if err != nil {
			log.Error("custom catalogs failed to load", "dir", cfg.CatalogDir, "error", err)
			os.Exit(1)
		}
		log.Info("custom catalogs loaded", "dir", cfg.CatalogDir, "count", n)
	}
	if _, err := catalogs.Lookup(cfg.Catalog); err != nil {
		log.Error("invalid default catalog", "error", err)
		os.Exit(1)
	}

	// Result cache: redis when configured, otherwise in-process.
	var results cache.Cache
	var closeCache func() error
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			log.Error("redis unavailable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		results, closeCache = rc, rc.Close
	} else {
		mc := cache.NewMemory(cfg.CacheTTL)
		go sweep(ctx, mc, cfg.CacheTTL)
		results = mc
	}

	parseStats := stats.NewParseStats(time.Hour)
	deps := api.Deps{
		Catalogs: catalogs,
		Cache:    results,
		Stats:    parseStats,
	}

	// Ingest pipeline, only with a pathstore.
	var orch *pipeline.Orchestrator
	var ps *pathstore.Client
	if cfg.IngestEnabled() {
		ps = pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		orch = pipeline.NewOrchestrator(cfg, ps, catalogs, parseStats, log)
		orch.Start(ctx)
		deps.Orchestrator = orch
		deps.Documents = ps
	} else {
		log.Info("PATHSTORE_URL not set, ingest disabled")
	}

	srv := api.NewServer(deps, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		if orch != nil {
			orch.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if ps != nil {
			ps.Close()
		}
		if closeCache != nil {
			closeCache()
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	log.Info("starting docoutline",
		"port", cfg.Port,
		"version", version.Version,
		"catalog", cfg.Catalog,
		"ingest", cfg.IngestEnabled(),
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func sweep(ctx context.Context, mc *cache.Memory, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.Sweep()
		}
	}
}
