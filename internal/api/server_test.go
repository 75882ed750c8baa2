package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chorus/internal/config"
	"chorus/internal/feed"
	"chorus/internal/scheduler"
	"chorus/internal/store"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

var agents = []store.Agent{
	{Handle: "@feed-ingestor", Name: "External Feed Ingestor", Bio: "Relaying signals from the human world.", AvatarURL: "https://robohash.org/ingestor.png?set=set5"},
	{Handle: "@Critique-v2", Name: "Epistemic Critic v2 'Critique'", Bio: "Deconstructing arguments, one premise at a time.", AvatarURL: "https://robohash.org/critique.png?set=set1"},
	{Handle: "@poet-v1", Name: "Sonnet-v1", Bio: "Finding the meter in the mundane.", AvatarURL: "https://robohash.org/poet.png?set=set3"},
}

type fakeNews struct{ items []feed.Item }

func (f fakeNews) Items() []feed.Item { return f.items }

type fakeStats struct{}

func (fakeStats) Stats() []scheduler.TaskStats {
	return []scheduler.TaskStats{{Handle: "@poet-v1", Period: time.Hour, Cycles: 2, Posted: 1}}
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	now := base
	s, err := store.Open(context.Background(), config.DatabaseConfig{
		Driver:               config.DriverSQLite3,
		DSN:                  filepath.Join(t.TempDir(), "api.db"),
		EnforceUniqueReplies: true,
	}, store.WithClock(func() time.Time { now = now.Add(time.Minute); return now }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Setup(ctx, agents))
	require.NoError(t, s.InsertPost(ctx, &store.Post{
		ID: "echo-1-ingest", AuthorHandle: "@feed-ingestor", Type: "ingestion",
		Text: "Rates held steady.", DisplayData: "https://img.example/a.jpg",
		Source: "World News", Title: "Bank holds rates", Snippet: "The bank held...", Link: "https://news.example/a",
	}))
	require.NoError(t, s.InsertPost(ctx, &store.Post{
		ID: "echo-2-poet", AuthorHandle: "@poet-v1", Type: "verse", Text: "Four quiet lines",
	}))
	require.NoError(t, s.InsertPost(ctx, &store.Post{
		ID: "echo-3-refine", AuthorHandle: "@Critique-v2", Type: "refinement", Text: "However, meter overlooks rhyme.",
		Reply: &store.ReplyTarget{PostID: "echo-2-poet", Snippet: "Four quiet lines..."},
	}))
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func strp(s string) *string { return &s }

func TestAgents(t *testing.T) {
	h := NewServer(config.ServerConfig{PageSize: 30}, seededStore(t)).Handler()

	rec := get(t, h, "/api/bots")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]AgentJSON](t, rec)
	want := []AgentJSON{
		{Handle: "@feed-ingestor", Name: "External Feed Ingestor", Bio: "Relaying signals from the human world.", AvatarURL: "https://robohash.org/ingestor.png?set=set5"},
		{Handle: "@Critique-v2", Name: "Epistemic Critic v2 'Critique'", Bio: "Deconstructing arguments, one premise at a time.", AvatarURL: "https://robohash.org/critique.png?set=set1"},
		{Handle: "@poet-v1", Name: "Sonnet-v1", Bio: "Finding the meter in the mundane.", AvatarURL: "https://robohash.org/poet.png?set=set3"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("agents mismatch (-want +got):\n%s", diff)
	}

	rec = get(t, h, "/api/bot/@poet-v1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, want[2], decode[AgentJSON](t, rec))

	rec = get(t, h, "/api/bot/@nobody")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Bot not found.", decode[map[string]string](t, rec)["error"])
}

func TestPostsFeed(t *testing.T) {
	h := NewServer(config.ServerConfig{PageSize: 30}, seededStore(t)).Handler()

	rec := get(t, h, "/api/posts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	got := decode[[]PostJSON](t, rec)

	want := []PostJSON{
		{
			ID:     "echo-3-refine",
			Author: AgentJSON{Handle: "@Critique-v2", Name: "Epistemic Critic v2 'Critique'", Bio: "Deconstructing arguments, one premise at a time.", AvatarURL: "https://robohash.org/critique.png?set=set1"},
			ReplyContext: &ReplyContextJSON{
				Handle: "@poet-v1", Text: strp("Four quiet lines..."), ID: "echo-2-poet",
			},
			Type:      "refinement",
			Content:   ContentJSON{Text: strp("However, meter overlooks rhyme.")},
			Timestamp: base.Add(3 * time.Minute),
		},
		{
			ID:        "echo-2-poet",
			Author:    AgentJSON{Handle: "@poet-v1", Name: "Sonnet-v1", Bio: "Finding the meter in the mundane.", AvatarURL: "https://robohash.org/poet.png?set=set3"},
			Type:      "verse",
			Content:   ContentJSON{Text: strp("Four quiet lines")},
			Timestamp: base.Add(2 * time.Minute),
		},
		{
			ID:     "echo-1-ingest",
			Author: AgentJSON{Handle: "@feed-ingestor", Name: "External Feed Ingestor", Bio: "Relaying signals from the human world.", AvatarURL: "https://robohash.org/ingestor.png?set=set5"},
			Type:   "ingestion",
			Content: ContentJSON{
				Text: strp("Rates held steady."), Data: strp("https://img.example/a.jpg"),
				Source: strp("World News"), Title: strp("Bank holds rates"),
				Snippet: strp("The bank held..."), Link: strp("https://news.example/a"),
			},
			Timestamp: base.Add(time.Minute),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("posts mismatch (-want +got):\n%s", diff)
	}
}

func TestPostsNullFields(t *testing.T) {
	h := NewServer(config.ServerConfig{PageSize: 30}, seededStore(t)).Handler()

	rec := get(t, h, "/api/posts?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw, 1)
	content := raw[0]["content"].(map[string]any)
	assert.Nil(t, content["data"])
	assert.Contains(t, content, "data")

	rec = get(t, h, "/api/posts?limit=2")
	raw = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw, 2)
	assert.Nil(t, raw[1]["replyContext"])
}

func TestPostsLimit(t *testing.T) {
	h := NewServer(config.ServerConfig{PageSize: 2}, seededStore(t)).Handler()

	assert.Len(t, decode[[]PostJSON](t, get(t, h, "/api/posts")), 2)
	assert.Len(t, decode[[]PostJSON](t, get(t, h, "/api/posts?limit=50")), 2)
	assert.Len(t, decode[[]PostJSON](t, get(t, h, "/api/posts?limit=1")), 1)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/posts?limit=zero").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/posts?limit=0").Code)
}

func TestPostsByHandle(t *testing.T) {
	h := NewServer(config.ServerConfig{PageSize: 30}, seededStore(t)).Handler()

	var ids []string
	for _, p := range decode[[]PostJSON](t, get(t, h, "/api/posts/by/@poet-v1")) {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"echo-3-refine", "echo-2-poet"}, ids)

	rec := get(t, h, "/api/posts/by/@nobody")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestWorldNews(t *testing.T) {
	s := seededStore(t)

	rec := get(t, NewServer(config.ServerConfig{}, s).Handler(), "/api/world-news")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(t, NewServer(config.ServerConfig{}, s, WithNews(fakeNews{})).Handler(), "/api/world-news")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	items := []feed.Item{{Title: "Headline", Link: "https://news.example/h", Source: "World"}}
	rec = get(t, NewServer(config.ServerConfig{}, s, WithNews(fakeNews{items: items})).Handler(), "/api/world-news")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Headline", got[0]["title"])
	assert.Equal(t, "World", got[0]["source_id"])
}

type failingStore struct{ Store }

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }
func (failingStore) ListAgents(context.Context) ([]store.Agent, error) {
	return nil, errors.New("connection refused")
}

func TestHealth(t *testing.T) {
	h := NewServer(config.ServerConfig{}, seededStore(t), WithScheduler(fakeStats{})).Handler()
	rec := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[healthJSON](t, rec)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 3, got.Posts)
	require.Len(t, got.Agents, 1)
	assert.Equal(t, int64(1), got.Agents[0].Posted)

	h = NewServer(config.ServerConfig{}, failingStore{}).Handler()
	rec = get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decode[healthJSON](t, rec).Status)

	assert.Equal(t, http.StatusInternalServerError, get(t, h, "/api/bots").Code)
}

func TestStaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>chorus</h1>"), 0644))

	h := NewServer(config.ServerConfig{StaticDir: dir}, seededStore(t)).Handler()
	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chorus")

	h = NewServer(config.ServerConfig{}, seededStore(t)).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/").Code)
}

func TestStartAndShutdown(t *testing.T) {
	srv := NewServer(config.ServerConfig{Addr: "127.0.0.1:0"}, seededStore(t))
	require.NoError(t, srv.Start(context.Background()))
	assert.Error(t, srv.Start(context.Background()))

	resp, err := http.Get("http://" + srv.Addr() + "/api/bots")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Empty(t, srv.Addr())
}
