package feed

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source is one configured feed. Sources are processed one at a time in
// declared order to keep rate limits predictable.
type Source struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
}

// DefaultSources is the compiled-in feed table.
var DefaultSources = []Source{
	{Name: "OpenAI Blog", URL: "https://openai.com/blog/rss.xml", Category: "Product Launch"},
	{Name: "Google AI Blog", URL: "https://blog.google/technology/ai/rss/", Category: "AI Research"},
	{Name: "Anthropic News", URL: "https://www.anthropic.com/news/rss.xml", Category: "Product Launch"},
	{Name: "Hugging Face Blog", URL: "https://huggingface.co/blog/feed.xml", Category: "New Features"},
	{Name: "The Verge AI", URL: "https://www.theverge.com/rss/ai-artificial-intelligence/index.xml", Category: "Industry News"},
	{Name: "VentureBeat AI", URL: "https://venturebeat.com/category/ai/feed/", Category: "Industry News"},
	{Name: "MIT Technology Review AI", URL: "https://www.technologyreview.com/topic/artificial-intelligence/feed", Category: "AI Research"},
}

// toolKeywords maps substrings found in headlines to a tool slug in the
// catalog. Matching is case-insensitive; declared order is precedence, so
// a headline naming several tools resolves the same way every cycle.
// Product names come before vendor names: "OpenAI ships ChatGPT memory"
// should resolve to the product.
var toolKeywords = []struct {
	keyword string
	slug    string
}{
	{"chatgpt", "chatgpt"},
	{"gpt-4", "chatgpt"},
	{"gpt-5", "chatgpt"},
	{"claude", "claude"},
	{"gemini", "gemini"},
	{"copilot", "github-copilot"},
	{"midjourney", "midjourney"},
	{"dall-e", "dall-e"},
	{"dalle", "dall-e"},
	{"stable diffusion", "stable-diffusion"},
	{"perplexity", "perplexity"},
	{"cursor", "cursor"},
	{"notion ai", "notion-ai"},
	{"openai", "chatgpt"},
	{"anthropic", "claude"},
}

// TipRotation lists the tool slugs the bonus tip generator cycles through.
var TipRotation = []string{
	"chatgpt",
	"claude",
	"gemini",
	"github-copilot",
	"midjourney",
	"perplexity",
	"notion-ai",
}

// DetectTool scans a headline and description for a known tool name and
// returns the matching catalog slug, or "" when nothing matches. The
// first keyword in declared order wins.
func DetectTool(title, description string) string {
	text := strings.ToLower(title + " " + description)
	for _, entry := range toolKeywords {
		if strings.Contains(text, entry.keyword) {
			return entry.slug
		}
	}
	return ""
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads a YAML source-table override. An operator can swap the
// feed list without a rebuild; the compiled-in table stays the default.
func LoadSources(r io.Reader) ([]Source, error) {
	var f sourcesFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("sources file contains no sources")
	}
	for i, s := range f.Sources {
		if s.URL == "" {
			return nil, fmt.Errorf("source %d (%s) has no url", i, s.Name)
		}
	}
	return f.Sources, nil
}
