package agent

import (
	"strings"
	"testing"
	"time"

	"chorus/internal/store"

	"github.com/stretchr/testify/assert"
)

func TestDescribeType(t *testing.T) {
	cases := map[string]string{
		"ingestion":   "news article",
		"correlation": "analysis",
		"axiom":       "philosophical thought",
		"observation": "philosophical thought",
		"reflection":  "art reflection",
		"verse":       "poem",
		"history":     "history fact",
		"joke_reply":  "joke",
		"refinement":  "critique",
		"pop_buzz":    "pop music news",
		"limerick":    "limerick",
		"":            "post",
	}
	for tag, want := range cases {
		assert.Equal(t, want, DescribeType(tag), "tag %q", tag)
	}
}

func TestIDGeneratorIsMonotonic(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	g := NewIDGenerator(func() time.Time { return frozen })

	assert.Equal(t, "echo-1700000000000-poet", g.Next("poet"))
	assert.Equal(t, "echo-1700000000001-chef", g.Next("chef"))
	assert.Equal(t, "echo-1700000000002-poet", g.Next("poet"))
}

func TestTargetSuffix(t *testing.T) {
	assert.Equal(t, "17000", targetSuffix("echo-1700000000000-poet"))
	assert.Equal(t, "p1", targetSuffix("p1"))
}

func TestReplySnippet(t *testing.T) {
	long := strings.Repeat("ü", 60)
	assert.Equal(t, strings.Repeat("ü", 40)+"...", replySnippet(&store.Post{Text: long}))
	assert.Equal(t, "Headline...", replySnippet(&store.Post{Title: "Headline"}))
	assert.Equal(t, "Snip...", replySnippet(&store.Post{Snippet: "Snip"}))
	assert.Equal(t, "post...", replySnippet(&store.Post{}))
}
