package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dkovacevic/toolpulse/internal/domain"
)

const (
	maxTitleLen       = 80
	maxDescriptionLen = 200
	maxTags           = 5
)

// TranslationLocales are the target locales for full-article expansion.
var TranslationLocales = []string{"de", "sr"}

// ChatClient is the slice of the generation capability the enricher needs.
type ChatClient interface {
	Available() bool
	Chat(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// Enriched is a raw item after classification. AIGenerated is true exactly
// when the generation capability produced the fields.
type Enriched struct {
	domain.RawItem
	Tags        []string
	ToolSlug    string
	AIGenerated bool
}

// Enricher refines raw feed items and synthesizes full article bodies.
// Every operation degrades to the raw input instead of failing the batch.
type Enricher struct {
	client ChatClient
}

func NewEnricher(client ChatClient) *Enricher {
	return &Enricher{client: client}
}

// Available reports whether enrichment will actually call the model.
func (e *Enricher) Available() bool {
	return e.client != nil && e.client.Available()
}

type refineResponse struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	RelatedTool string   `json:"related_tool"`
}

const refineSystemPrompt = `You curate an AI-tools news feed for company employees.
Rewrite the given news item. Respond with a JSON object:
{"title": "<max 80 chars>", "description": "<max 200 chars, why this matters to AI tool users>",
"category": "<one of: New Features, Tips & Tricks, Industry News, Tutorial, Product Launch, AI Research>",
"tags": ["<3 to 5 short tags>"], "related_tool": "<tool slug or empty string>"}`

// Refine rewrites one item: concise title, short "why it matters"
// description, one category from the fixed set, 3-5 tags and an optional
// related-tool slug. One round trip per item. Without a credential the raw
// item passes through unchanged; an unparsable response falls back to the
// raw fields for that item only.
func (e *Enricher) Refine(ctx context.Context, raw domain.RawItem) Enriched {
	out := Enriched{RawItem: raw, ToolSlug: raw.ToolHint}
	if !e.Available() {
		return out
	}

	user := fmt.Sprintf("Title: %s\nDescription: %s\nSource category: %s", raw.Title, raw.Description, raw.Category)
	reply, err := e.client.Chat(ctx, refineSystemPrompt, user, true)
	if err != nil {
		slog.Warn("enrichment call failed, keeping raw item", "title", raw.Title, "error", err)
		return out
	}

	var parsed refineResponse
	if err := json.Unmarshal([]byte(unfence(reply)), &parsed); err != nil {
		slog.Warn("enrichment response unparsable, keeping raw item", "title", raw.Title, "error", err)
		return out
	}

	if t := strings.TrimSpace(parsed.Title); t != "" {
		out.Title = clamp(t, maxTitleLen)
	}
	if d := strings.TrimSpace(parsed.Description); d != "" {
		out.Description = clamp(d, maxDescriptionLen)
	}
	out.Category = normalizeCategory(parsed.Category, raw.Category)
	out.Tags = normalizeTags(parsed.Tags)
	if slug := strings.TrimSpace(parsed.RelatedTool); slug != "" {
		out.ToolSlug = slug
	}
	out.AIGenerated = true
	return out
}

const tipSystemPrompt = `You write practical tips for an AI-tools directory.
Respond with a JSON object:
{"title": "<max 80 chars, actionable tip headline>", "description": "<max 200 chars summary>",
"tags": ["<3 to 5 short tags>"]}`

// GenerateTip produces one bonus "Tips & Tricks" item for a tool. Unlike
// Refine there is nothing to fall back to, so failures are returned.
func (e *Enricher) GenerateTip(ctx context.Context, toolSlug string) (Enriched, error) {
	if !e.Available() {
		return Enriched{}, fmt.Errorf("generation capability unavailable")
	}

	user := fmt.Sprintf("Write one practical, non-obvious tip for using %s effectively.", toolSlug)
	reply, err := e.client.Chat(ctx, tipSystemPrompt, user, true)
	if err != nil {
		return Enriched{}, fmt.Errorf("generate tip for %s: %w", toolSlug, err)
	}

	var parsed refineResponse
	if err := json.Unmarshal([]byte(unfence(reply)), &parsed); err != nil {
		return Enriched{}, fmt.Errorf("parse tip for %s: %w", toolSlug, err)
	}
	if strings.TrimSpace(parsed.Title) == "" {
		return Enriched{}, fmt.Errorf("tip for %s has no title", toolSlug)
	}

	return Enriched{
		RawItem: domain.RawItem{
			Title:       clamp(strings.TrimSpace(parsed.Title), maxTitleLen),
			Description: clamp(strings.TrimSpace(parsed.Description), maxDescriptionLen),
			Category:    "Tips & Tricks",
		},
		Tags:        normalizeTags(parsed.Tags),
		ToolSlug:    toolSlug,
		AIGenerated: true,
	}, nil
}

const expandSystemPrompt = `You write articles for an AI-tools news site.
Write a well-structured 400-600 word English article expanding the given
news item. Plain text paragraphs, no markdown headers.`

const translateSystemPrompt = `You translate news articles. Respond with a JSON object:
{"title": "<translated title>", "description": "<translated description>", "content": "<translated article body>"}`

var localeNames = map[string]string{
	"de": "German",
	"sr": "Serbian",
}

// ExpandArticle synthesizes a full English body for an item and requests
// one structured translation per target locale. Each translation call is
// independent: a failed locale is logged and skipped, it blocks neither
// the other locale nor the English body.
func (e *Enricher) ExpandArticle(ctx context.Context, item domain.NewsItem) (string, map[string]*domain.Translation, error) {
	if !e.Available() {
		return "", nil, fmt.Errorf("generation capability unavailable")
	}

	user := fmt.Sprintf("Title: %s\nSummary: %s", item.Title, item.Description)
	body, err := e.client.Chat(ctx, expandSystemPrompt, user, false)
	if err != nil {
		return "", nil, fmt.Errorf("expand article %q: %w", item.Title, err)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", nil, fmt.Errorf("expand article %q: empty body", item.Title)
	}

	translations := make(map[string]*domain.Translation)
	for _, locale := range TranslationLocales {
		tr, err := e.translate(ctx, locale, item.Title, item.Description, body)
		if err != nil {
			slog.Warn("translation failed, skipping locale", "locale", locale, "title", item.Title, "error", err)
			continue
		}
		translations[locale] = tr
	}

	return body, translations, nil
}

func (e *Enricher) translate(ctx context.Context, locale, title, description, body string) (*domain.Translation, error) {
	name, ok := localeNames[locale]
	if !ok {
		name = locale
	}

	user := fmt.Sprintf("Translate to %s.\nTitle: %s\nDescription: %s\nArticle:\n%s", name, title, description, body)
	reply, err := e.client.Chat(ctx, translateSystemPrompt, user, true)
	if err != nil {
		return nil, err
	}

	var tr domain.Translation
	if err := json.Unmarshal([]byte(unfence(reply)), &tr); err != nil {
		return nil, fmt.Errorf("parse %s translation: %w", locale, err)
	}
	if tr.Title == "" {
		return nil, fmt.Errorf("%s translation has no title", locale)
	}
	return &tr, nil
}

func clamp(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

func normalizeCategory(category, fallback string) string {
	category = strings.TrimSpace(category)
	for _, c := range domain.Categories {
		if strings.EqualFold(c, category) {
			return c
		}
	}
	if fallback != "" {
		return fallback
	}
	return domain.DefaultCategory
}

func normalizeTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}
