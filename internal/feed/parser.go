package feed

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dkovacevic/toolpulse/internal/domain"
)

// MaxItemsPerFeed caps how many entries one feed contributes to a cycle.
const MaxItemsPerFeed = 10

const fetchTimeout = 20 * time.Second

// Fetcher downloads and normalizes one feed into raw items.
type Fetcher struct {
	client *http.Client
}

// NewFetcher wires an HTTP client; a nil client gets a 20s timeout default.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &Fetcher{client: client}
}

type rss struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string       `xml:"title"`
	Link        string       `xml:"link"`
	Description string       `xml:"description"`
	PubDate     string       `xml:"pubDate"`
	Date        string       `xml:"date"`
	Enclosure   rssEnclosure `xml:"enclosure"`
}

type rssEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// Fetch downloads the feed and returns up to MaxItemsPerFeed normalized
// items tagged with the source's category. Entries without a title or a
// link are dropped. The caller decides what a failed feed means for the
// rest of the cycle; Fetch itself has no side effects beyond the request.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]domain.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", src.Name, err)
	}
	req.Header.Set("User-Agent", "toolpulse/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", src.Name, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name, err)
	}

	items, err := Parse(body, src.Category)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.Name, err)
	}
	return items, nil
}

// Parse normalizes an RSS 2.0 or Atom document. A well-formed feed with
// zero entries is not an error; it yields zero items. Exposed separately
// so tests can exercise normalization without a network round trip.
func Parse(body []byte, category string) ([]domain.RawItem, error) {
	switch rootElement(body) {
	case "rss":
		var doc rss
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("malformed RSS document: %w", err)
		}
		return fromRSS(doc.Channel.Items, category), nil
	case "feed":
		var af atomFeed
		if err := xml.Unmarshal(body, &af); err != nil {
			return nil, fmt.Errorf("malformed Atom document: %w", err)
		}
		return fromAtom(af.Entries, category), nil
	default:
		return nil, fmt.Errorf("document is neither RSS nor Atom")
	}
}

// rootElement returns the local name of the document's first element, or
// "" when the input is not XML.
func rootElement(body []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local
		}
	}
}

func fromRSS(entries []rssItem, category string) []domain.RawItem {
	items := make([]domain.RawItem, 0, len(entries))
	for _, e := range entries {
		if len(items) == MaxItemsPerFeed {
			break
		}
		title := StripHTML(e.Title)
		link := strings.TrimSpace(e.Link)
		if title == "" || link == "" {
			continue
		}

		imageURL := ""
		if strings.HasPrefix(e.Enclosure.Type, "image/") {
			imageURL = e.Enclosure.URL
		}

		items = append(items, domain.RawItem{
			Title:       title,
			Description: StripHTML(e.Description),
			URL:         link,
			PublishedAt: parseDate(e.PubDate, e.Date),
			ImageURL:    imageURL,
			Category:    category,
		})
	}
	return items
}

func fromAtom(entries []atomEntry, category string) []domain.RawItem {
	items := make([]domain.RawItem, 0, len(entries))
	for _, e := range entries {
		if len(items) == MaxItemsPerFeed {
			break
		}
		title := StripHTML(e.Title)
		link := pickAtomLink(e.Links)
		if title == "" || link == "" {
			continue
		}

		desc := e.Summary
		if desc == "" {
			desc = e.Content
		}

		items = append(items, domain.RawItem{
			Title:       title,
			Description: StripHTML(desc),
			URL:         link,
			PublishedAt: parseDate(e.Published, e.Updated),
			Category:    category,
		})
	}
	return items
}

func pickAtomLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate tries the candidates in order and falls back to now so that
// published-at is always populated.
func parseDate(candidates ...string) time.Time {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t
			}
		}
	}
	return time.Now()
}

// StripHTML removes markup and decodes entities from feed text. Feeds
// routinely embed markup in titles and descriptions.
func StripHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(html.UnescapeString(s))
	}
	return strings.TrimSpace(strings.Join(strings.Fields(doc.Text()), " "))
}
