// Package feed supplies inspiration to agents from RSS/Atom feeds and keeps
// a small world-news cache for the read API sidebar.
package feed

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"chorus/internal/config"
	"chorus/internal/logging"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

// ErrNoItem means the chosen feed yielded no usable item.
var ErrNoItem = errors.New("no usable feed item")

const (
	maxSnippetRunes = 150
	pickWindow      = 10
	noSnippet       = "No snippet available."
)

// Item is one piece of inspiration.
type Item struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Snippet   string    `json:"snippet,omitempty"`
	Source    string    `json:"source_id"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Published time.Time `json:"pubDate,omitzero"`
}

// Source returns one inspiration item drawn from feeds.
type Source interface {
	Fetch(ctx context.Context, feeds []string) (*Item, error)
}

// RSSSource fetches items with gofeed.
type RSSSource struct {
	parser  *gofeed.Parser
	timeout time.Duration
	intn    func(int) int
	strip   *bluemonday.Policy
}

// Option customizes an RSSSource.
type Option func(*RSSSource)

// WithIntn injects the random source used to pick feeds and items.
func WithIntn(intn func(int) int) Option {
	return func(s *RSSSource) { s.intn = intn }
}

// WithHTTPClient replaces the HTTP client used for fetching.
func WithHTTPClient(c *http.Client) Option {
	return func(s *RSSSource) { s.parser.Client = c }
}

// NewRSSSource creates an RSS inspiration source.
func NewRSSSource(cfg config.FeedsConfig, opts ...Option) *RSSSource {
	p := gofeed.NewParser()
	p.UserAgent = "chorus/2 (+rss inspiration)"
	s := &RSSSource{
		parser:  p,
		timeout: cfg.GetTimeout(),
		intn:    rand.IntN,
		strip:   bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch picks one feed at random, then one item among its first ten.
// The item must carry a title and a link.
func (s *RSSSource) Fetch(ctx context.Context, feeds []string) (*Item, error) {
	if len(feeds) == 0 {
		return nil, fmt.Errorf("%w: no feeds configured", ErrNoItem)
	}
	feedURL := feeds[s.intn(len(feeds))]
	logging.FeedDebug("Selected feed %s", feedURL)

	parsed, err := s.parse(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if len(parsed.Items) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoItem, feedURL)
	}

	window := min(pickWindow, len(parsed.Items))
	raw := parsed.Items[s.intn(window)]
	if raw == nil || strings.TrimSpace(raw.Title) == "" || strings.TrimSpace(raw.Link) == "" {
		logging.FeedWarn("Item without title or link in %s", feedURL)
		return nil, fmt.Errorf("%w: item missing title or link", ErrNoItem)
	}

	item := s.toItem(parsed, raw, feedURL)
	logging.Feed("Fetched %q from %s", item.Title, item.Source)
	return &item, nil
}

func (s *RSSSource) parse(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	parsed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", feedURL, err)
	}
	return parsed, nil
}

func (s *RSSSource) toItem(parsed *gofeed.Feed, raw *gofeed.Item, feedURL string) Item {
	item := Item{
		Title:    strings.TrimSpace(raw.Title),
		Link:     strings.TrimSpace(raw.Link),
		Snippet:  s.snippet(raw),
		Source:   sourceName(parsed, feedURL),
		ImageURL: imageURL(raw),
	}
	switch {
	case raw.PublishedParsed != nil:
		item.Published = raw.PublishedParsed.UTC()
	case raw.UpdatedParsed != nil:
		item.Published = raw.UpdatedParsed.UTC()
	}
	return item
}

// snippet returns plain text of at most maxSnippetRunes, with "..."
// appended when the text was cut.
func (s *RSSSource) snippet(raw *gofeed.Item) string {
	body := raw.Description
	if strings.TrimSpace(body) == "" {
		body = raw.Content
	}
	text := html.UnescapeString(s.strip.Sanitize(body))
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return noSnippet
	}
	if utf8.RuneCountInString(text) <= maxSnippetRunes {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:maxSnippetRunes])) + "..."
}

func sourceName(parsed *gofeed.Feed, feedURL string) string {
	if t := strings.TrimSpace(parsed.Title); t != "" {
		return t
	}
	if u, err := url.Parse(feedURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return feedURL
}
