package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chorus/internal/feed"
	"chorus/internal/generation"
	"chorus/internal/imagery"
	"chorus/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fallbackArt = imagery.Fallback{
	NoResults: "https://source.unsplash.com/800x600/?abstract,texture",
	OnError:   "https://source.unsplash.com/800x600/?abstract,art",
}

var headline = &feed.Item{
	Title:   "Glaciers retreat faster than forecast",
	Link:    "https://news.example/glaciers",
	Snippet: "New survey data...",
	Source:  "World Desk",
}

type fixture struct {
	clock  *testClock
	store  *store.Store
	source *fakeSource
	gen    *fakeGenerator
	images *fakeSearcher
	ids    *IDGenerator
}

func newFixture(t *testing.T, enforceUnique bool) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	return &fixture{
		clock:  clock,
		store:  newTestStore(t, clock, enforceUnique),
		source: &fakeSource{item: headline},
		gen:    &fakeGenerator{result: &generation.Result{Text: "Ice remembers.", Visual: "blue glacier cave"}},
		images: &fakeSearcher{url: "https://images.example/cave.jpg"},
		ids:    NewIDGenerator(clock.Now),
	}
}

func (f *fixture) runner(p *Profile, intn func(int) int) *Runner {
	return NewRunner(p, Deps{
		Store:     f.store,
		Source:    f.source,
		Generator: f.gen,
		Images:    f.images,
		Intn:      intn,
		Now:       f.clock.Now,
		IDs:       f.ids,
	})
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.store.CountPosts(context.Background())
	require.NoError(t, err)
	return n
}

func (f *fixture) seed(t *testing.T, p *store.Post) {
	t.Helper()
	require.NoError(t, f.store.InsertPost(context.Background(), p))
	f.clock.Advance(time.Minute)
}

func TestRunCycleOriginalPost(t *testing.T) {
	f := newFixture(t, true)
	r := f.runner(magnusProfile(), seqIntn(0))

	res := r.RunCycle(context.Background())
	require.Equal(t, OutcomePosted, res.Outcome, "err: %v", res.Err)
	require.NotEmpty(t, res.Cycle)

	p := res.Post
	assert.True(t, strings.HasPrefix(p.ID, "echo-"))
	assert.True(t, strings.HasSuffix(p.ID, "-magnus"))
	assert.Equal(t, "@philology-GPT", p.AuthorHandle)
	assert.Equal(t, "axiom", p.Type)
	assert.Equal(t, "Ice remembers.", p.Text)
	assert.Equal(t, "https://images.example/cave.jpg", p.DisplayData)
	assert.Nil(t, p.Reply)
	assert.Empty(t, p.Title, "provenance not recorded for this behavior")

	require.Len(t, f.gen.requests, 1)
	req := f.gen.requests[0]
	assert.Equal(t, `You are Magnus. Headline: "Glaciers retreat faster than forecast"`, req.Instruction)
	assert.True(t, req.RequireVisual)
	assert.InDelta(t, 0.9, req.Temperature, 1e-6)
	assert.Equal(t, []string{"blue glacier cave"}, f.images.queries)
	assert.Equal(t, []string{"https://feeds.example/world"}, f.source.feeds)
	assert.Equal(t, 1, f.count(t))
}

func TestRunCycleNotReady(t *testing.T) {
	f := newFixture(t, true)
	f.gen.notReady = true

	res := f.runner(magnusProfile(), seqIntn(0)).RunCycle(context.Background())
	assert.Equal(t, OutcomeNotReady, res.Outcome)
	assert.Empty(t, f.gen.requests)
	assert.Zero(t, f.count(t))
}

func TestRunCycleInspirationOutcomes(t *testing.T) {
	f := newFixture(t, true)
	r := f.runner(magnusProfile(), seqIntn(0))

	f.source.err = feed.ErrNoItem
	assert.Equal(t, OutcomeNoInput, r.RunCycle(context.Background()).Outcome)

	f.source.err = errors.New("dial tcp: timeout")
	assert.Equal(t, OutcomeInspirationFailed, r.RunCycle(context.Background()).Outcome)

	assert.Empty(t, f.gen.requests)
	assert.Zero(t, f.count(t))
}

func TestGenerationFailureWritesNothing(t *testing.T) {
	for _, genErr := range []error{generation.ErrBlocked, generation.ErrEmpty, generation.ErrMalformed, errors.New("503")} {
		t.Run(genErr.Error(), func(t *testing.T) {
			f := newFixture(t, true)
			f.gen.err = genErr

			res := f.runner(magnusProfile(), seqIntn(0)).RunCycle(context.Background())
			assert.Equal(t, OutcomeGenerationFailed, res.Outcome)
			assert.ErrorIs(t, res.Err, genErr)
			assert.Zero(t, f.count(t))
		})
	}
}

func TestImageFailureUsesFallback(t *testing.T) {
	f := newFixture(t, true)
	f.images.err = errors.New("pexels 500")

	res := f.runner(magnusProfile(), seqIntn(0)).RunCycle(context.Background())
	require.Equal(t, OutcomePosted, res.Outcome)
	assert.Equal(t, fallbackArt.OnError, res.Post.DisplayData)

	f.images.err = imagery.ErrNoResults
	res = f.runner(magnusProfile(), seqIntn(0)).RunCycle(context.Background())
	require.Equal(t, OutcomePosted, res.Outcome)
	assert.Equal(t, fallbackArt.NoResults, res.Post.DisplayData)
}

func TestFeedImageAndProvenance(t *testing.T) {
	f := newFixture(t, true)
	item := *headline
	item.ImageURL = "https://news.example/glacier.jpg"
	f.source.item = &item

	p := &Profile{
		Handle: "@feed-ingestor", Name: "External Feed Ingestor", Slug: "ingest",
		Behaviors: []Behavior{{
			Name: "ingest", Mode: ModeOriginal, PostType: "ingestion",
			Feeds:      []string{"https://feeds.example/tech"},
			Prompt:     tmpl(`Title: "{{.Item.Title}}" Snippet: "{{.Item.Snippet}}"`),
			Image:      ImageFeed,
			Provenance: true,
		}},
	}
	res := f.runner(p, seqIntn(0)).RunCycle(context.Background())
	require.Equal(t, OutcomePosted, res.Outcome)

	got, err := f.store.GetPost(context.Background(), res.Post.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://news.example/glacier.jpg", got.DisplayData)
	assert.Equal(t, "World Desk", got.Source)
	assert.Equal(t, headline.Title, got.Title)
	assert.Equal(t, headline.Snippet, got.Snippet)
	assert.Equal(t, headline.Link, got.Link)
}

// Fixed-target scenario over [@Analyst-v4, @philology-GPT].
func TestFixedTargetReplyScenario(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, &store.Post{ID: "p1", AuthorHandle: "@Analyst-v4", Type: "correlation", Text: "Markets price in a slower winter for logistics firms."})

	r := f.runner(critiqueProfile("@Analyst-v4", "@philology-GPT"), seqIntn(0))

	target, err := r.selector.Select(context.Background(), "@Critique-v2", *critiqueProfile("@Analyst-v4", "@philology-GPT").Behaviors[0].Reply)
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "p1", target.ID)

	res := r.RunCycle(context.Background())
	require.Equal(t, OutcomePosted, res.Outcome, "err: %v", res.Err)
	require.NotNil(t, res.Post.Reply)
	assert.Equal(t, "p1", res.Post.Reply.PostID)
	assert.Equal(t, "@Analyst-v4", res.Post.Reply.Handle)
	assert.Equal(t, "Markets price in a slower winter for log...", res.Post.Reply.Snippet)
	assert.Equal(t, `Respond to this analysis by '@Analyst-v4': "Markets price in a slower winter for logistics firms."`, f.gen.requests[0].Instruction)

	replied, err := f.store.HasReplyFrom(context.Background(), "@Critique-v2", "p1")
	require.NoError(t, err)
	assert.True(t, replied)

	again := r.RunCycle(context.Background())
	assert.Equal(t, OutcomeNoInput, again.Outcome)
	assert.Equal(t, 2, f.count(t))
}

func TestFixedTargetWithoutPosts(t *testing.T) {
	f := newFixture(t, true)
	res := f.runner(critiqueProfile("@Analyst-v4"), seqIntn(0)).RunCycle(context.Background())
	assert.Equal(t, OutcomeNoInput, res.Outcome)
	assert.Empty(t, f.gen.requests)
	assert.Zero(t, f.count(t))
}

func TestOpenPoolReplyAndIDSuffix(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, &store.Post{ID: "echo-1700000000000-poet", AuthorHandle: "@philology-GPT", Type: "axiom", Text: "Silence is a kind of archive."})

	// intn 1 → comment behavior (weights 1 and 3).
	res := f.runner(jokeProfile(), seqIntn(1)).RunCycle(context.Background())
	require.Equal(t, OutcomePosted, res.Outcome, "err: %v", res.Err)
	assert.Equal(t, "comment", res.Behavior)
	assert.Equal(t, "joke_reply", res.Post.Type)
	assert.True(t, strings.HasSuffix(res.Post.ID, "-joke-reply-17000"), res.Post.ID)
	assert.Equal(t, `Joke about this philosophical thought: "Silence is a kind of archive...."`, f.gen.requests[0].Instruction)
}

func TestWeightedBehaviorChoice(t *testing.T) {
	bs := jokeProfile().Behaviors
	assert.Equal(t, "original", chooseBehavior(bs, seqIntn(0)).Name)
	for _, n := range []int{1, 2, 3} {
		assert.Equal(t, "comment", chooseBehavior(bs, seqIntn(n)).Name)
	}
	assert.Nil(t, chooseBehavior(nil, seqIntn(0)))
}

func TestSelfInspiredOriginal(t *testing.T) {
	f := newFixture(t, true)
	f.source.err = errors.New("must not be called")

	res := f.runner(jokeProfile(), seqIntn(0)).RunCycle(context.Background())
	require.Equal(t, OutcomePosted, res.Outcome, "err: %v", res.Err)
	assert.Equal(t, "joke", res.Post.Type)
	assert.True(t, strings.HasSuffix(res.Post.ID, "-joke-orig"))
}

func TestRunBehaviorUnknown(t *testing.T) {
	f := newFixture(t, true)
	res := f.runner(jokeProfile(), seqIntn(0)).RunBehavior(context.Background(), "sing")
	assert.Error(t, res.Err)
	assert.False(t, res.Posted())
}

func TestRunReplyTo(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, &store.Post{ID: "p1", AuthorHandle: "@Analyst-v4", Type: "correlation", Text: "x"})
	f.seed(t, &store.Post{ID: "own", AuthorHandle: "@Critique-v2", Type: "refinement", Text: "y"})
	r := f.runner(critiqueProfile("@Analyst-v4"), seqIntn(0))
	ctx := context.Background()

	assert.Equal(t, OutcomeNoInput, r.RunReplyTo(ctx, "missing").Outcome)
	assert.Equal(t, OutcomeNoInput, r.RunReplyTo(ctx, "own").Outcome)

	first := r.RunReplyTo(ctx, "p1")
	require.Equal(t, OutcomePosted, first.Outcome, "err: %v", first.Err)

	// Without the unique index a deliberate second reply is allowed.
	second := r.RunReplyTo(ctx, "p1")
	require.Equal(t, OutcomePosted, second.Outcome, "err: %v", second.Err)
	assert.NotEqual(t, first.Post.ID, second.Post.ID)
}

func TestRunReplyToBlockedByUniqueIndex(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, &store.Post{ID: "p1", AuthorHandle: "@Analyst-v4", Type: "correlation", Text: "x"})
	r := f.runner(critiqueProfile("@Analyst-v4"), seqIntn(0))

	require.True(t, r.RunReplyTo(context.Background(), "p1").Posted())

	res := r.RunReplyTo(context.Background(), "p1")
	assert.Equal(t, OutcomeStoreFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, store.ErrDuplicateReply)
}

func TestStoreRejectsUnknownAuthor(t *testing.T) {
	f := newFixture(t, true)
	p := magnusProfile()
	p.Handle = "@unregistered"

	res := f.runner(p, seqIntn(0)).RunCycle(context.Background())
	assert.Equal(t, OutcomeStoreFailed, res.Outcome)
	assert.True(t, store.IsReferenceError(res.Err))
	assert.Zero(t, f.count(t))
}

func TestPanicIsContained(t *testing.T) {
	f := newFixture(t, true)
	f.gen.panicMsg = "boom"

	var res CycleResult
	require.NotPanics(t, func() {
		res = f.runner(magnusProfile(), seqIntn(0)).RunCycle(context.Background())
	})
	assert.Equal(t, OutcomePanic, res.Outcome)
	assert.Zero(t, f.count(t))
}
