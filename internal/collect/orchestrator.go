package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkovacevic/toolpulse/internal/domain"
	"github.com/dkovacevic/toolpulse/internal/enrich"
	"github.com/dkovacevic/toolpulse/internal/feed"
)

// RecencyWindow is how far back a feed entry may be published and still be
// collected. Older entries are discarded, not stored and not retried.
const RecencyWindow = 24 * time.Hour

// ErrAlreadyRunning is returned when a trigger arrives while a cycle is in
// progress. It is a no-op signal, not a failure.
var ErrAlreadyRunning = errors.New("collection already in progress")

// FeedFetcher pulls normalized items from one configured source.
type FeedFetcher interface {
	Fetch(ctx context.Context, src feed.Source) ([]domain.RawItem, error)
}

// Enricher refines raw items and generates the bonus tip.
type Enricher interface {
	Available() bool
	Refine(ctx context.Context, raw domain.RawItem) enrich.Enriched
	GenerateTip(ctx context.Context, toolSlug string) (enrich.Enriched, error)
}

// NewsGateway is the dedup/persistence slice the cycle writes through.
type NewsGateway interface {
	InsertIfAbsent(ctx context.Context, item domain.NewsItem) (bool, error)
	ListTools(ctx context.Context) ([]domain.Tool, error)
}

// Status is the ephemeral per-process view of the most recent cycle. It
// resets to "never run" on restart.
type Status struct {
	IsCollecting bool                     `json:"isCollecting"`
	LastRun      *time.Time               `json:"lastRun,omitempty"`
	LastResult   *domain.CollectionResult `json:"lastResult,omitempty"`
}

// Orchestrator runs full collection cycles: fetch every source in declared
// order, filter by recency, enrich, persist, and generate one bonus tip.
// At most one cycle runs per process; the guard is an atomic
// compare-and-swap, so concurrent triggers cannot both enter the cycle.
type Orchestrator struct {
	fetcher  FeedFetcher
	enricher Enricher
	store    NewsGateway
	sources  []feed.Source
	rotation []string

	collecting atomic.Bool
	now        func() time.Time
	pickTool   func(n int) int

	mu         sync.Mutex
	lastRun    *time.Time
	lastResult *domain.CollectionResult
}

func NewOrchestrator(fetcher FeedFetcher, enricher Enricher, store NewsGateway, sources []feed.Source) *Orchestrator {
	return &Orchestrator{
		fetcher:  fetcher,
		enricher: enricher,
		store:    store,
		sources:  sources,
		rotation: feed.TipRotation,
		now:      time.Now,
		pickTool: rand.Intn,
	}
}

// Status reports whether a cycle is running plus the last completed run.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		IsCollecting: o.collecting.Load(),
		LastRun:      o.lastRun,
		LastResult:   o.lastResult,
	}
}

// Run executes one collection cycle. A second call while a cycle is in
// progress returns ErrAlreadyRunning immediately.
func (o *Orchestrator) Run(ctx context.Context) (domain.CollectionResult, error) {
	if !o.collecting.CompareAndSwap(false, true) {
		slog.Info("collection trigger ignored, cycle already in progress")
		return domain.CollectionResult{}, ErrAlreadyRunning
	}
	return o.cycle(ctx)
}

// RunAsync starts a cycle on a fresh goroutine if none is in progress and
// reports whether it started. The decision is the same compare-and-swap
// Run uses, so two concurrent triggers cannot both be told they started a
// cycle.
func (o *Orchestrator) RunAsync(ctx context.Context) bool {
	if !o.collecting.CompareAndSwap(false, true) {
		slog.Info("collection trigger ignored, cycle already in progress")
		return false
	}
	go func() {
		_, _ = o.cycle(ctx)
	}()
	return true
}

// cycle runs with the guard held. The guard is always released, whether
// the body finished, errored or panicked; a failed cycle's partial counts
// are dropped.
func (o *Orchestrator) cycle(ctx context.Context) (result domain.CollectionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("collection cycle panicked", "panic", r)
			err = fmt.Errorf("collection cycle panicked: %v", r)
		}
		o.finish(result, err)
	}()

	slog.Info("collection cycle started", "sources", len(o.sources))
	result, err = o.runCycle(ctx)
	if err != nil {
		slog.Error("collection cycle failed", "error", err)
		return domain.CollectionResult{}, err
	}

	slog.Info("collection cycle finished", "collected", result.Collected, "saved", result.Saved)
	return result, nil
}

func (o *Orchestrator) finish(result domain.CollectionResult, err error) {
	o.mu.Lock()
	now := o.now()
	o.lastRun = &now
	if err == nil {
		r := result
		o.lastResult = &r
	}
	o.mu.Unlock()
	o.collecting.Store(false)
}

func (o *Orchestrator) runCycle(ctx context.Context) (domain.CollectionResult, error) {
	mapping, err := o.buildToolMapping(ctx)
	if err != nil {
		return domain.CollectionResult{}, err
	}

	raw := o.fetchAll(ctx)
	fresh := o.filterRecent(raw)

	saved := 0
	for _, item := range fresh {
		enriched := o.enricher.Refine(ctx, item)
		if o.persist(ctx, enriched, mapping, domain.SourceRSS) {
			saved++
		}
	}

	if o.generateTip(ctx, mapping) {
		saved++
	}

	return domain.CollectionResult{Collected: len(raw), Saved: saved}, nil
}

// buildToolMapping rebuilds the name/slug lookup from the current catalog.
// No incremental invalidation: the mapping lives for exactly one cycle.
func (o *Orchestrator) buildToolMapping(ctx context.Context) (*domain.ToolMapping, error) {
	tools, err := o.store.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("build tool mapping: %w", err)
	}
	mapping := domain.NewToolMapping(tools)
	slog.Debug("tool mapping rebuilt", "entries", mapping.Len())
	return mapping, nil
}

// fetchAll walks the sources sequentially in declared order. A failed feed
// is logged and contributes zero items; it never aborts the cycle.
func (o *Orchestrator) fetchAll(ctx context.Context) []domain.RawItem {
	var all []domain.RawItem
	for _, src := range o.sources {
		items, err := o.fetcher.Fetch(ctx, src)
		if err != nil {
			slog.Warn("feed fetch failed, skipping source", "source", src.Name, "error", err)
			continue
		}
		for i := range items {
			items[i].Category = src.Category
			items[i].ToolHint = feed.DetectTool(items[i].Title, items[i].Description)
		}
		slog.Debug("fetched feed", "source", src.Name, "items", len(items))
		all = append(all, items...)
	}
	return all
}

func (o *Orchestrator) filterRecent(items []domain.RawItem) []domain.RawItem {
	cutoff := o.now().Add(-RecencyWindow)
	fresh := items[:0]
	for _, item := range items {
		if item.PublishedAt.After(cutoff) {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

func (o *Orchestrator) persist(ctx context.Context, enriched enrich.Enriched, mapping *domain.ToolMapping, sourceType domain.SourceType) bool {
	item := domain.NewsItem{
		Title:       enriched.Title,
		Description: enriched.Description,
		URL:         enriched.URL,
		PublishedOn: enriched.PublishedAt,
		Category:    enriched.Category,
		ImageURL:    enriched.ImageURL,
		SourceType:  sourceType,
		AIGenerated: enriched.AIGenerated,
		Tags:        enriched.Tags,
		Slug:        slugify(enriched.Title),
	}
	if item.PublishedOn.IsZero() {
		item.PublishedOn = o.now()
	}
	if id, ok := mapping.Lookup(enriched.ToolSlug); ok {
		item.ToolID = &id
	}

	created, err := o.store.InsertIfAbsent(ctx, item)
	if err != nil {
		slog.Warn("persist failed, item not saved", "title", item.Title, "error", err)
		return false
	}
	return created
}

// generateTip picks one tool from the rotation and attempts a single bonus
// "Tips & Tricks" item. Best effort: without the generation capability, or
// on any failure, the cycle simply has no tip.
func (o *Orchestrator) generateTip(ctx context.Context, mapping *domain.ToolMapping) bool {
	if !o.enricher.Available() || len(o.rotation) == 0 {
		return false
	}

	toolSlug := o.rotation[o.pickTool(len(o.rotation))]
	tip, err := o.enricher.GenerateTip(ctx, toolSlug)
	if err != nil {
		slog.Warn("tip generation failed", "tool", toolSlug, "error", err)
		return false
	}
	tip.PublishedAt = o.now()

	return o.persist(ctx, tip, mapping, domain.SourceGeneratedTip)
}

var slugStripExpr = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(title string) string {
	slug := strings.ToLower(title)
	slug = slugStripExpr.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 96 {
		slug = strings.Trim(slug[:96], "-")
	}
	return slug
}
