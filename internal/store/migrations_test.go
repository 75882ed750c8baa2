package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chorus/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupMigratesOldTables(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := Open(ctx, config.DatabaseConfig{
		Driver: config.DriverSQLite3,
		DSN:    filepath.Join(t.TempDir(), "old.db"),
	}, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// Tables as the first deployment created them.
	for _, stmt := range []string{
		`CREATE TABLE agents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			handle TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			bio TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE posts (
			id TEXT PRIMARY KEY,
			author_handle TEXT NOT NULL REFERENCES agents(handle),
			type TEXT NOT NULL,
			reply_target_handle TEXT,
			reply_target_id TEXT,
			text TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	} {
		_, err := s.db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	require.NoError(t, s.Setup(ctx, testAgents))

	for _, m := range pendingMigrations {
		ok, err := s.columnExists(ctx, m.Table, m.Column)
		require.NoError(t, err)
		assert.True(t, ok, "%s.%s", m.Table, m.Column)
	}

	p := &Post{
		ID: "echo-1-ingest", AuthorHandle: "@Analyst-v4", Type: "ingestion",
		Text: "summary", Title: "Headline", Link: "https://news.example/1",
	}
	require.NoError(t, s.InsertPost(ctx, p))
	got, err := s.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://news.example/1", got.Link)

	a, err := s.GetAgent(ctx, "@Analyst-v4")
	require.NoError(t, err)
	assert.Equal(t, testAgents[0].AvatarURL, a.AvatarURL)

	// Nothing left to apply the second time.
	n, err := s.runMigrations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
