package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/dkovacevic/toolpulse/internal/api"
	"github.com/dkovacevic/toolpulse/internal/collect"
	"github.com/dkovacevic/toolpulse/internal/enrich"
	"github.com/dkovacevic/toolpulse/internal/feed"
	"github.com/dkovacevic/toolpulse/internal/schedule"
	"github.com/dkovacevic/toolpulse/internal/server"
	"github.com/dkovacevic/toolpulse/internal/storage/pg"
)

func main() {
	cfg, err := LoadAppConfig()
	if err != nil {
		slog.Error("Failed to load app configuration", "error", err)
		os.Exit(1)
	}

	sCfg, err := server.LoadConfig("8080")
	if err != nil {
		slog.Error("Failed to load server config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pg.NewConnectionPool(ctx, pg.PoolConfig{ConnStr: cfg.DatabaseURL})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	store := pg.NewNewsStore(pool)
	fetcher := feed.NewFetcher(nil)
	enricher := enrich.NewEnricher(enrich.NewClient(cfg.Generation))
	if !enricher.Available() {
		slog.Warn("generation credential missing, collection runs without enrichment")
	}

	orchestrator := collect.NewOrchestrator(fetcher, enricher, store, cfg.Sources)
	scheduler := schedule.NewScheduler(orchestrator)
	if err := scheduler.Start(ctx); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	s := server.NewServer(sCfg, pool)
	api.NewNewsRouter(s.Echo, store).Bind()
	api.NewCollectionRouter(s.Echo, scheduler).Bind()

	slog.Info("api server starting", "port", sCfg.Port, "sources", len(cfg.Sources))
	if err := s.Start(scheduler.Stop); err != nil {
		slog.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
