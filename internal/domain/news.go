package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceType describes where a news item came from.
type SourceType string

const (
	SourceManual       SourceType = "manual"
	SourceRSS          SourceType = "rss"
	SourceScrape       SourceType = "scrape"
	SourceGeneratedTip SourceType = "generated_tip"
)

// Categories a collected item may be classified into.
var Categories = []string{
	"New Features",
	"Tips & Tricks",
	"Industry News",
	"Tutorial",
	"Product Launch",
	"AI Research",
}

const DefaultCategory = "Industry News"

// NewsItem is one collected or manually authored news entry.
// (Title, URL) is the dedup key: a collection run skips an item that
// matches an existing row on either field.
type NewsItem struct {
	ID              uuid.UUID               `json:"id"`
	Title           string                  `json:"title"`
	Description     string                  `json:"description"`
	Content         string                  `json:"content,omitempty"`
	URL             string                  `json:"url,omitempty"`
	PublishedOn     time.Time               `json:"publishedOn"`
	CreatedAt       time.Time               `json:"createdAt"`
	Category        string                  `json:"category,omitempty"`
	ImageURL        string                  `json:"imageUrl,omitempty"`
	SourceType      SourceType              `json:"sourceType"`
	AIGenerated     bool                    `json:"aiGenerated"`
	ToolID          *uuid.UUID              `json:"toolId,omitempty"`
	Tags            []string                `json:"tags,omitempty"`
	EngagementScore int                     `json:"engagementScore"`
	Featured        bool                    `json:"featured"`
	Slug            string                  `json:"slug,omitempty"`
	Translations    map[string]*Translation `json:"translations,omitempty"`
}

// Translation is the localized rendering of an item produced by the
// article-generation job.
type Translation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content,omitempty"`
}

// RawItem is a feed entry before enrichment. Text fields are already
// HTML-stripped by the feed adapter.
type RawItem struct {
	Title       string
	Description string
	URL         string
	PublishedAt time.Time
	ImageURL    string
	Category    string
	ToolHint    string
}

// CollectionResult summarizes one collection cycle.
type CollectionResult struct {
	Collected int `json:"collected"`
	Saved     int `json:"saved"`
}
