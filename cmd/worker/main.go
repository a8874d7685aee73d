package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/dkovacevic/toolpulse/internal/api"
	"github.com/dkovacevic/toolpulse/internal/collect"
	"github.com/dkovacevic/toolpulse/internal/enrich"
	"github.com/dkovacevic/toolpulse/internal/feed"
	"github.com/dkovacevic/toolpulse/internal/jobs"
	"github.com/dkovacevic/toolpulse/internal/queue"
	"github.com/dkovacevic/toolpulse/internal/server"
	"github.com/dkovacevic/toolpulse/internal/storage/pg"
)

func main() {
	cfg, err := LoadWorkerConfig()
	if err != nil {
		slog.Error("Failed to load worker configuration", "error", err)
		os.Exit(1)
	}

	sCfg, err := server.LoadConfig("8081")
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
	orchestrator := collect.NewOrchestrator(fetcher, enricher, store, feed.DefaultSources)

	q := queue.NewPGQueue(pool)
	worker := queue.NewWorker(q)

	must(worker.Register(queue.JobNewsCollection, queue.Retryable(jobs.NewsCollection(orchestrator))))
	must(worker.Register(queue.JobArticleGeneration, queue.BestEffort(jobs.ArticleGeneration(store, enricher))))
	must(worker.Register(queue.JobArticleGenerationBatch, queue.Retryable(jobs.ArticleGenerationBatch(store, q))))
	must(worker.Register(queue.JobFetchFromX, queue.BestEffort(jobs.FetchFromX(fetcher, enricher, store))))

	must(q.Schedule(ctx, "hourly-news-collection", "0 * * * *", queue.JobNewsCollection, queue.NewsCollectionPayload{}))
	must(q.Schedule(ctx, "daily-article-generation", "30 6 * * *", queue.JobArticleGenerationBatch, queue.ArticleGenerationBatchPayload{Limit: 10}))
	if cfg.XFeedURL != "" {
		must(q.Schedule(ctx, "x-feed-sync", "15 */4 * * *", queue.JobFetchFromX, queue.FetchFromXPayload{FeedURL: cfg.XFeedURL}))
	}

	if err := q.StartSchedules(ctx); err != nil {
		slog.Error("Failed to start schedules", "error", err)
		os.Exit(1)
	}
	if err := worker.Start(ctx); err != nil {
		slog.Error("Failed to start worker", "error", err)
		os.Exit(1)
	}

	s := server.NewServer(sCfg, pool)
	api.NewWorkerRouter(s.Echo, worker).Bind()

	slog.Info("worker starting", "port", sCfg.Port)
	if err := s.Start(func() {
		q.StopSchedules()
		worker.Stop()
	}); err != nil {
		slog.Error("Failed to start worker server", "error", err)
		os.Exit(1)
	}
}

func must(err error) {
	if err != nil {
		slog.Error("worker setup failed", "error", err)
		os.Exit(1)
	}
}
