package collect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovacevic/toolpulse/internal/domain"
	"github.com/dkovacevic/toolpulse/internal/enrich"
	"github.com/dkovacevic/toolpulse/internal/feed"
)

// fakeFetcher serves canned items per source name. A nil entry means the
// feed fails. block, when set, stalls every fetch until released.
type fakeFetcher struct {
	items map[string][]domain.RawItem
	block chan struct{}
}

func (f *fakeFetcher) Fetch(_ context.Context, src feed.Source) ([]domain.RawItem, error) {
	if f.block != nil {
		<-f.block
	}
	items, ok := f.items[src.Name]
	if !ok {
		return nil, errors.New("feed returned 500")
	}
	return items, nil
}

// fakeEnricher passes items through, optionally marking them enriched.
type fakeEnricher struct {
	available bool
	tip       *enrich.Enriched
}

func (f *fakeEnricher) Available() bool { return f.available }

func (f *fakeEnricher) Refine(_ context.Context, raw domain.RawItem) enrich.Enriched {
	return enrich.Enriched{RawItem: raw, ToolSlug: raw.ToolHint, AIGenerated: f.available}
}

func (f *fakeEnricher) GenerateTip(_ context.Context, toolSlug string) (enrich.Enriched, error) {
	if f.tip == nil {
		return enrich.Enriched{}, errors.New("tip generation failed")
	}
	tip := *f.tip
	tip.ToolSlug = toolSlug
	return tip, nil
}

// memStore dedups on exact title or url match, like the real gateway.
type memStore struct {
	mu    sync.Mutex
	items []domain.NewsItem
	tools []domain.Tool

	insertErr error
	toolsErr  error
}

func (s *memStore) InsertIfAbsent(_ context.Context, item domain.NewsItem) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.Title == item.Title || (item.URL != "" && existing.URL == item.URL) {
			return false, nil
		}
	}
	s.items = append(s.items, item)
	return true, nil
}

func (s *memStore) ListTools(_ context.Context) ([]domain.Tool, error) {
	if s.toolsErr != nil {
		return nil, s.toolsErr
	}
	return s.tools, nil
}

func (s *memStore) saved() []domain.NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.NewsItem(nil), s.items...)
}

func freshItem(title, url string) domain.RawItem {
	return domain.RawItem{
		Title:       title,
		Description: "description",
		URL:         url,
		PublishedAt: time.Now().Add(-time.Hour),
	}
}

func newTestOrchestrator(fetcher FeedFetcher, enricher Enricher, store NewsGateway, sources []feed.Source) *Orchestrator {
	o := NewOrchestrator(fetcher, enricher, store, sources)
	o.pickTool = func(int) int { return 0 }
	return o
}

func TestRun_CollectsAndSaves(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]domain.RawItem{
		"a": {freshItem("First", "https://a.example/1"), freshItem("Second", "https://a.example/2")},
	}}
	store := &memStore{}
	o := newTestOrchestrator(fetcher, &fakeEnricher{}, store, []feed.Source{{Name: "a", Category: "Industry News"}})

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Collected)
	assert.Equal(t, 2, result.Saved)
	assert.Len(t, store.saved(), 2)

	status := o.Status()
	assert.False(t, status.IsCollecting)
	require.NotNil(t, status.LastRun)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, 2, status.LastResult.Saved)
}

func TestRun_StaleItemsDiscarded(t *testing.T) {
	stale := freshItem("Three days old", "https://a.example/old")
	stale.PublishedAt = time.Now().Add(-72 * time.Hour)

	fetcher := &fakeFetcher{items: map[string][]domain.RawItem{
		"a": {stale, freshItem("Fresh", "https://a.example/new")},
	}}
	store := &memStore{}
	o := newTestOrchestrator(fetcher, &fakeEnricher{}, store, []feed.Source{{Name: "a"}})

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Collected, "collected counts raw items before filtering")
	assert.Equal(t, 1, result.Saved)
	for _, item := range store.saved() {
		assert.NotEqual(t, "Three days old", item.Title)
	}
}

func TestRun_DuplicateTitleAcrossFeeds(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]domain.RawItem{
		"a": {freshItem("OpenAI Announces GPT-5", "https://a.example/gpt5")},
		"b": {freshItem("OpenAI Announces GPT-5", "https://b.example/gpt5")},
	}}
	store := &memStore{}
	o := newTestOrchestrator(fetcher, &fakeEnricher{}, store,
		[]feed.Source{{Name: "a"}, {Name: "b"}})

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Collected)
	assert.Equal(t, 1, result.Saved, "first-seen wins on exact title match")
	assert.Len(t, store.saved(), 1)
}

func TestRun_SaveIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]domain.RawItem{
		"a": {freshItem("Same item", "https://a.example/same")},
	}}
	store := &memStore{}
	o := newTestOrchestrator(fetcher, &fakeEnricher{}, store, []feed.Source{{Name: "a"}})

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Saved)
	assert.Len(t, store.saved(), 1)
}

func TestRun_AllFeedsFail(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]domain.RawItem{}}
	store := &memStore{}
	o := newTestOrchestrator(fetcher, &fakeEnricher{}, store,
		[]feed.Source{{Name: "a"}, {Name: "b"}})

	result, err := o.Run(context.Background())
	require.NoError(t, err, "failed feeds must not fail the cycle")

	assert.Equal(t, 0, result.Collected)
	assert.Equal(t, 0, result.Saved)
}

func TestRun_GracefulDegradationWithoutEnrichment(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]domain.RawItem{
		"a": {freshItem("Raw title survives", "https://a.example/raw")},
	}}
	store := &memStore{}
	o := newTestOrchestrator(fetcher, &fakeEnricher{available: false}, store, []feed.Source{{Name: "a"}})

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Saved)

	item := store.saved()[0]
	assert.Equal(t, "Raw title survives", item.Title)
	assert.Equal(t, "description", item.Description)
	assert.False(t, item.AIGenerated)
}

func TestRun_BonusTipCounted(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]domain.RawItem{"a": nil}}
	fetcher.items["a"] = []domain.RawItem{}
	store := &memStore{}
	enricher := &fakeEnricher{
		available: true,
		tip: &enrich.Enriched{
			RawItem: domain.RawItem{
				Title:       "Use keyboard shortcuts",
				Description: "Faster prompting",
				Category:    "Tips & Tricks",
				PublishedAt: time.Now(),
			},
			AIGenerated: true,
		},
	}
	o := newTestOrchestrator(fetcher, enricher, store, []feed.Source{{Name: "a"}})

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Collected)
	assert.Equal(t, 1, result.Saved, "the bonus tip counts toward saved")
	require.Len(t, store.saved(), 1)
	assert.Equal(t, domain.SourceGeneratedTip, store.saved()[0].SourceType)
}

func TestRun_ToolMappingAssociatesItems(t *testing.T) {
	toolID := uuid.New()
	fetcher := &fakeFetcher{items: map[string][]domain.RawItem{
		"a": {freshItem("ChatGPT ships memory", "https://a.example/mem")},
	}}
	store := &memStore{tools: []domain.Tool{{ID: toolID, Slug: "chatgpt", Name: "ChatGPT"}}}
	o := newTestOrchestrator(fetcher, &fakeEnricher{}, store, []feed.Source{{Name: "a"}})

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	item := store.saved()[0]
	require.NotNil(t, item.ToolID)
	assert.Equal(t, toolID, *item.ToolID)
}

func TestRun_MutualExclusion(t *testing.T) {
	fetcher := &fakeFetcher{
		items: map[string][]domain.RawItem{"a": {}},
		block: make(chan struct{}),
	}
	store := &memStore{}
	o := newTestOrchestrator(fetcher, &fakeEnricher{}, store, []feed.Source{{Name: "a"}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		return o.Status().IsCollecting
	}, time.Second, time.Millisecond)

	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.True(t, o.Status().IsCollecting)

	close(fetcher.block)
	<-done
	assert.False(t, o.Status().IsCollecting)
}

func TestRunAsync_ConcurrentTriggersSingleWinner(t *testing.T) {
	fetcher := &fakeFetcher{
		items: map[string][]domain.RawItem{"a": {}},
		block: make(chan struct{}),
	}
	store := &memStore{}
	o := newTestOrchestrator(fetcher, &fakeEnricher{}, store, []feed.Source{{Name: "a"}})

	const triggers = 8
	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if o.RunAsync(context.Background()) {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load(), "exactly one trigger may report started")

	close(fetcher.block)
	require.Eventually(t, func() bool {
		return !o.Status().IsCollecting
	}, time.Second, time.Millisecond)
}

func TestRunAsync_AvailableAgainAfterCycle(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]domain.RawItem{"a": {}}}
	o := newTestOrchestrator(fetcher, &fakeEnricher{}, &memStore{}, []feed.Source{{Name: "a"}})

	require.True(t, o.RunAsync(context.Background()))
	require.Eventually(t, func() bool {
		return !o.Status().IsCollecting
	}, time.Second, time.Millisecond)

	assert.True(t, o.RunAsync(context.Background()), "guard must be free once the cycle finished")
}

func TestRun_PersistErrorsAbsorbed(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]domain.RawItem{
		"a": {freshItem("Will not save", "https://a.example/x")},
	}}
	store := &memStore{insertErr: errors.New("disk full")}
	o := newTestOrchestrator(fetcher, &fakeEnricher{}, store, []feed.Source{{Name: "a"}})

	result, err := o.Run(context.Background())
	require.NoError(t, err, "per-item persistence failures must not fail the cycle")
	assert.Equal(t, 1, result.Collected)
	assert.Equal(t, 0, result.Saved)
}

func TestRun_GuardReleasedOnCycleError(t *testing.T) {
	store := &memStore{toolsErr: errors.New("db unreachable")}
	o := newTestOrchestrator(&fakeFetcher{}, &fakeEnricher{}, store, nil)

	_, err := o.Run(context.Background())
	require.Error(t, err)

	assert.False(t, o.Status().IsCollecting, "guard must be released after a failed cycle")
	assert.Nil(t, o.Status().LastResult, "a failed cycle records no result")

	// A later trigger must be able to start again.
	store.toolsErr = nil
	_, err = o.Run(context.Background())
	assert.NoError(t, err)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "openai-announces-gpt-5", slugify("OpenAI Announces GPT-5!"))
	assert.Equal(t, "tips-tricks", slugify("  Tips & Tricks  "))
}
