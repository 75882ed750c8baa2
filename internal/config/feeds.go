package config

import "time"

// FeedsConfig configures RSS inspiration and the world-news sidebar cache.
type FeedsConfig struct {
	Timeout     string   `yaml:"timeout"`
	NewsFeeds   []string `yaml:"news_feeds"`
	NewsRefresh string   `yaml:"news_refresh"`
}

// GetTimeout returns the per-fetch timeout as a duration.
func (f FeedsConfig) GetTimeout() time.Duration {
	return parseDuration(f.Timeout, 30*time.Second)
}

// GetNewsRefresh returns the news cache refresh interval.
func (f FeedsConfig) GetNewsRefresh() time.Duration {
	return parseDuration(f.NewsRefresh, 2*time.Minute)
}
