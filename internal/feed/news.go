package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"chorus/internal/logging"

	"golang.org/x/sync/errgroup"
)

const (
	newsPerFeed  = 5
	newsCapacity = 10
)

// NewsCache holds the newest headlines across a fixed set of feeds.
type NewsCache struct {
	src     *RSSSource
	feeds   []string
	refresh time.Duration

	mu      sync.RWMutex
	items   []Item
	updated time.Time
}

// NewNewsCache creates an empty cache. Call Run to populate it.
func NewNewsCache(src *RSSSource, feeds []string, refresh time.Duration) *NewsCache {
	if refresh <= 0 {
		refresh = 2 * time.Minute
	}
	return &NewsCache{src: src, feeds: feeds, refresh: refresh}
}

// Items returns a copy of the cached headlines, newest first.
func (c *NewsCache) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Updated reports when the cache was last filled.
func (c *NewsCache) Updated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}

// Refresh fetches every feed in parallel. A failing feed is logged and
// skipped; the cache is replaced only when at least one item came back.
func (c *NewsCache) Refresh(ctx context.Context) int {
	results := make([][]Item, len(c.feeds))

	var g errgroup.Group
	g.SetLimit(4)
	for i, feedURL := range c.feeds {
		g.Go(func() error {
			parsed, err := c.src.parse(ctx, feedURL)
			if err != nil {
				logging.FeedWarn("News refresh: %v", err)
				return nil
			}
			n := min(newsPerFeed, len(parsed.Items))
			items := make([]Item, 0, n)
			for _, raw := range parsed.Items[:n] {
				if raw == nil {
					continue
				}
				it := c.src.toItem(parsed, raw, feedURL)
				it.Snippet = ""
				items = append(items, it)
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var all []Item
	for _, r := range results {
		all = append(all, r...)
	}
	if len(all) == 0 {
		logging.FeedWarn("News refresh produced no items; keeping %d cached", len(c.Items()))
		return 0
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Published.After(all[j].Published)
	})
	if len(all) > newsCapacity {
		all = all[:newsCapacity]
	}

	c.mu.Lock()
	c.items = all
	c.updated = time.Now()
	c.mu.Unlock()

	logging.Feed("News cache updated with %d articles", len(all))
	return len(all)
}

// Run refreshes immediately and then on every interval until ctx ends.
func (c *NewsCache) Run(ctx context.Context) {
	c.Refresh(ctx)

	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}
