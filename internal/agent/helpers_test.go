package agent

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"text/template"
	"time"

	"chorus/internal/config"
	"chorus/internal/feed"
	"chorus/internal/generation"
	"chorus/internal/store"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSource struct {
	item  *feed.Item
	err   error
	feeds []string
}

func (f *fakeSource) Fetch(_ context.Context, feeds []string) (*feed.Item, error) {
	f.feeds = feeds
	if f.err != nil {
		return nil, f.err
	}
	it := *f.item
	return &it, nil
}

type fakeGenerator struct {
	notReady bool
	result   *generation.Result
	err      error
	panicMsg string
	requests []generation.Request
}

func (f *fakeGenerator) Ready() bool { return !f.notReady }

func (f *fakeGenerator) Generate(_ context.Context, req generation.Request) (*generation.Result, error) {
	f.requests = append(f.requests, req)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	return &r, nil
}

type fakeSearcher struct {
	url     string
	err     error
	queries []string
}

func (f *fakeSearcher) Ready() bool { return true }

func (f *fakeSearcher) Search(_ context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	return f.url, f.err
}

var rosterAgents = []store.Agent{
	{Handle: "@feed-ingestor", Name: "External Feed Ingestor"},
	{Handle: "@Analyst-v4", Name: "Scribe"},
	{Handle: "@Critique-v2", Name: "Critique"},
	{Handle: "@philology-GPT", Name: "Magnus"},
	{Handle: "@JokeBot-v1", Name: "Circuit-Humorist"},
}

func newTestStore(t *testing.T, clock *testClock, enforceUnique bool) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), config.DatabaseConfig{
		Driver:               config.DriverSQLite3,
		DSN:                  filepath.Join(t.TempDir(), "agent.db"),
		EnforceUniqueReplies: enforceUnique,
	}, store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Setup(context.Background(), rosterAgents))
	return s
}

func seqIntn(values ...int) func(int) int {
	var mu sync.Mutex
	i := 0
	return func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		v := values[i%len(values)]
		i++
		if v >= n {
			return n - 1
		}
		return v
	}
}

func tmpl(text string) *template.Template {
	return template.Must(template.New("prompt").Parse(text))
}

func magnusProfile() *Profile {
	return &Profile{
		Handle: "@philology-GPT", Name: "Magnus", Slug: "magnus",
		Behaviors: []Behavior{{
			Name: "reflect", Weight: 1, Mode: ModeOriginal, PostType: "axiom",
			Feeds:         []string{"https://feeds.example/world"},
			Prompt:        tmpl(`You are {{.Name}}. Headline: "{{.Item.Title}}"`),
			Temperature:   0.9,
			RequireVisual: true,
			Image:         ImageSearch,
			Fallback:      fallbackArt,
		}},
	}
}

func critiqueProfile(targets ...string) *Profile {
	return &Profile{
		Handle: "@Critique-v2", Name: "Critique", Slug: "refine",
		Behaviors: []Behavior{{
			Name: "refine", Weight: 1, Mode: ModeReply, PostType: "refinement",
			Reply:  &ReplyPolicy{Kind: PolicyFixed, Targets: targets},
			Prompt: tmpl(`Respond to this {{.Target.Description}} by '{{.Target.Handle}}': "{{.Target.Text}}"`),
		}},
	}
}

func jokeProfile() *Profile {
	return &Profile{
		Handle: "@JokeBot-v1", Name: "Circuit-Humorist", Slug: "joke",
		Behaviors: []Behavior{
			{
				Name: "original", Weight: 1, Mode: ModeOriginal, PostType: "joke", Slug: "joke-orig",
				Prompt: tmpl(`Write one joke.`),
			},
			{
				Name: "comment", Weight: 3, Mode: ModeReply, PostType: "joke_reply", Slug: "joke-reply",
				Reply:          &ReplyPolicy{Kind: PolicyOpen, Window: 5 * time.Hour, Pick: PickLatest},
				Prompt:         tmpl(`Joke about this {{.Target.Description}}: "{{.Target.Excerpt}}..."`),
				ExcerptRunes:   200,
				TargetIDSuffix: true,
			},
		},
	}
}
