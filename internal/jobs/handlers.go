// Package jobs binds queue job types to the collection pipeline. The
// worker binary registers these; the web tier only enqueues.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dkovacevic/toolpulse/internal/collect"
	"github.com/dkovacevic/toolpulse/internal/domain"
	"github.com/dkovacevic/toolpulse/internal/enrich"
	"github.com/dkovacevic/toolpulse/internal/feed"
	"github.com/dkovacevic/toolpulse/internal/queue"
)

// Collector runs one collection cycle.
type Collector interface {
	Run(ctx context.Context) (domain.CollectionResult, error)
}

// NewsStore is the persistence slice the handlers need.
type NewsStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.NewsItem, error)
	ListRecentWithoutContent(ctx context.Context, limit int) ([]domain.NewsItem, error)
	FillContent(ctx context.Context, id uuid.UUID, content string, translations map[string]*domain.Translation) error
	InsertIfAbsent(ctx context.Context, item domain.NewsItem) (bool, error)
}

// ArticleEnricher expands short items into full articles.
type ArticleEnricher interface {
	Available() bool
	Refine(ctx context.Context, raw domain.RawItem) enrich.Enriched
	ExpandArticle(ctx context.Context, item domain.NewsItem) (string, map[string]*domain.Translation, error)
}

// Enqueuer is the queue slice the batch handler fans out through.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.JobType, payload any) (uuid.UUID, error)
}

const defaultBatchLimit = 5

// NewsCollection runs one full collection cycle. Registered retryable: a
// failed cycle propagates so the queue retries it, and the type's
// concurrency of 1 is the durable counterpart of the in-process guard.
func NewsCollection(collector Collector) queue.Handler {
	return func(ctx context.Context, _ queue.Job) (any, error) {
		result, err := collector.Run(ctx)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

type articleGenerationResult struct {
	NewsID    uuid.UUID `json:"newsId"`
	Generated bool      `json:"generated"`
	Locales   int       `json:"locales"`
}

// ArticleGeneration expands one item into a full body plus translations.
// Registered best-effort: one unparsable article must not burn the type's
// retry budget.
func ArticleGeneration(store NewsStore, enricher ArticleEnricher) queue.Handler {
	return func(ctx context.Context, job queue.Job) (any, error) {
		var payload queue.ArticleGenerationPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode article-generation payload: %w", err)
		}

		item, err := store.GetByID(ctx, payload.NewsID)
		if err != nil {
			return nil, err
		}
		if item.Content != "" {
			slog.Debug("item already has content, skipping generation", "id", item.ID)
			return articleGenerationResult{NewsID: item.ID}, nil
		}

		body, translations, err := enricher.ExpandArticle(ctx, item)
		if err != nil {
			return nil, err
		}
		if err := store.FillContent(ctx, item.ID, body, translations); err != nil {
			return nil, err
		}

		return articleGenerationResult{
			NewsID:    item.ID,
			Generated: true,
			Locales:   len(translations),
		}, nil
	}
}

type batchResult struct {
	Enqueued int `json:"enqueued"`
}

// ArticleGenerationBatch fans out one article-generation job per recent
// item still missing a body.
func ArticleGenerationBatch(store NewsStore, q Enqueuer) queue.Handler {
	return func(ctx context.Context, job queue.Job) (any, error) {
		var payload queue.ArticleGenerationBatchPayload
		if len(job.Payload) > 0 {
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				return nil, fmt.Errorf("decode article-generation-batch payload: %w", err)
			}
		}
		limit := payload.Limit
		if limit <= 0 {
			limit = defaultBatchLimit
		}

		items, err := store.ListRecentWithoutContent(ctx, limit)
		if err != nil {
			return nil, err
		}

		enqueued := 0
		for _, item := range items {
			_, err := q.Enqueue(ctx, queue.JobArticleGeneration, queue.ArticleGenerationPayload{NewsID: item.ID})
			if err != nil {
				return batchResult{Enqueued: enqueued}, err
			}
			enqueued++
		}
		return batchResult{Enqueued: enqueued}, nil
	}
}

type fetchFromXResult struct {
	Collected int `json:"collected"`
	Saved     int `json:"saved"`
}

// FetchFromX pulls a configured X/Twitter bridge feed through the regular
// feed adapter and persists what survives the recency window. Registered
// best-effort: bridge feeds flake too often to be worth retries.
func FetchFromX(fetcher collect.FeedFetcher, enricher ArticleEnricher, store NewsStore) queue.Handler {
	return func(ctx context.Context, job queue.Job) (any, error) {
		var payload queue.FetchFromXPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode fetch-from-x payload: %w", err)
		}
		if payload.FeedURL == "" {
			return nil, fmt.Errorf("fetch-from-x payload has no feed url")
		}

		src := feed.Source{Name: "X", URL: payload.FeedURL, Category: domain.DefaultCategory}
		items, err := fetcher.Fetch(ctx, src)
		if err != nil {
			return nil, err
		}

		cutoff := time.Now().Add(-collect.RecencyWindow)
		saved := 0
		for _, raw := range items {
			if !raw.PublishedAt.After(cutoff) {
				continue
			}
			raw.Category = src.Category
			raw.ToolHint = feed.DetectTool(raw.Title, raw.Description)

			enriched := enricher.Refine(ctx, raw)
			created, err := store.InsertIfAbsent(ctx, domain.NewsItem{
				Title:       enriched.Title,
				Description: enriched.Description,
				URL:         enriched.URL,
				PublishedOn: enriched.PublishedAt,
				Category:    enriched.Category,
				SourceType:  domain.SourceScrape,
				AIGenerated: enriched.AIGenerated,
				Tags:        enriched.Tags,
			})
			if err != nil {
				slog.Warn("persist failed for X item", "title", enriched.Title, "error", err)
				continue
			}
			if created {
				saved++
			}
		}

		return fetchFromXResult{Collected: len(items), Saved: saved}, nil
	}
}
