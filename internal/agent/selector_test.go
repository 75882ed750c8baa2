package agent

import (
	"context"
	"testing"
	"time"

	"chorus/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Open pool, 5h window: posts at T-1h (X), T-6h (Y), T-2h (self).
// Only the T-1h post is eligible, under either pick.
func TestOpenPoolWindowScenario(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestStore(t, clock, true)
	ctx := context.Background()
	now := clock.Now()

	clock.now = now.Add(-6 * time.Hour)
	require.NoError(t, s.InsertPost(ctx, &store.Post{ID: "y", AuthorHandle: "@philology-GPT", Type: "axiom"}))
	clock.now = now.Add(-2 * time.Hour)
	require.NoError(t, s.InsertPost(ctx, &store.Post{ID: "self", AuthorHandle: "@JokeBot-v1", Type: "joke"}))
	clock.now = now.Add(-1 * time.Hour)
	require.NoError(t, s.InsertPost(ctx, &store.Post{ID: "x", AuthorHandle: "@Analyst-v4", Type: "correlation"}))
	clock.now = now

	sel := NewSelector(s, seqIntn(0), clock.Now)
	for _, pick := range []Pick{PickRandom, PickLatest} {
		got, err := sel.Select(ctx, "@JokeBot-v1", ReplyPolicy{Kind: PolicyOpen, Window: 5 * time.Hour, Pick: pick})
		require.NoError(t, err)
		require.NotNil(t, got, "pick %s", pick)
		assert.Equal(t, "x", got.ID)
	}
}

func TestOpenPoolEmpty(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestStore(t, clock, true)
	sel := NewSelector(s, seqIntn(0), clock.Now)

	got, err := sel.Select(context.Background(), "@JokeBot-v1", ReplyPolicy{Kind: PolicyOpen, Window: time.Hour, Pick: PickRandom})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFixedPolicyNeverTargetsSelf(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestStore(t, clock, true)
	ctx := context.Background()
	require.NoError(t, s.InsertPost(ctx, &store.Post{ID: "mine", AuthorHandle: "@Critique-v2", Type: "refinement"}))

	sel := NewSelector(s, seqIntn(0), clock.Now)
	got, err := sel.Select(ctx, "@Critique-v2", ReplyPolicy{Kind: PolicyFixed, Targets: []string{"@Critique-v2"}})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestPickSkipsAnsweredPosts(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestStore(t, clock, true)
	ctx := context.Background()

	require.NoError(t, s.InsertPost(ctx, &store.Post{ID: "older", AuthorHandle: "@Analyst-v4", Type: "correlation"}))
	clock.Advance(time.Minute)
	require.NoError(t, s.InsertPost(ctx, &store.Post{ID: "newer", AuthorHandle: "@philology-GPT", Type: "axiom"}))
	clock.Advance(time.Minute)
	require.NoError(t, s.InsertPost(ctx, &store.Post{ID: "r", AuthorHandle: "@JokeBot-v1", Type: "joke_reply",
		Reply: &store.ReplyTarget{PostID: "newer"}}))
	clock.Advance(time.Minute)

	sel := NewSelector(s, seqIntn(0), clock.Now)
	got, err := sel.Select(ctx, "@JokeBot-v1", ReplyPolicy{Kind: PolicyOpen, Window: time.Hour, Pick: PickLatest})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "older", got.ID)
}

func TestUnknownPolicy(t *testing.T) {
	sel := NewSelector(nil, seqIntn(0), time.Now)
	_, err := sel.Select(context.Background(), "@a", ReplyPolicy{Kind: "gossip"})
	assert.Error(t, err)
}
