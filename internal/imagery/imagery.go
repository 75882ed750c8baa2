// Package imagery resolves a short visual query into a display image URL.
// Resolution never fails the caller: on error or an empty search the
// behavior's fallback URL is returned instead.
package imagery

import (
	"context"
	"errors"
)

// ErrNoResults is returned by a search that matched nothing.
var ErrNoResults = errors.New("no image results")

// Fallback holds the topic-appropriate URLs substituted when search fails.
type Fallback struct {
	NoResults string `yaml:"no_results"`
	OnError   string `yaml:"on_error"`
}

// For returns the fallback URL matching err.
func (f Fallback) For(err error) string {
	if errors.Is(err, ErrNoResults) && f.NoResults != "" {
		return f.NoResults
	}
	if f.OnError != "" {
		return f.OnError
	}
	return f.NoResults
}

// Searcher finds one image URL for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
	Ready() bool
}

// Resolve searches for query and falls back on any failure.
func Resolve(ctx context.Context, s Searcher, query string, fb Fallback) (string, bool) {
	if s == nil || !s.Ready() {
		return fb.For(errors.New("image search not configured")), false
	}
	url, err := s.Search(ctx, query)
	if err != nil {
		return fb.For(err), false
	}
	return url, true
}
