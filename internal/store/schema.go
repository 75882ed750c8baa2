package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chorus/internal/logging"
)

const uniqueReplyIndex = "idx_posts_unique_reply"

func (s *Store) agentsTableDDL() string {
	idCol := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	tsType := "TIMESTAMP"
	if !isSQLite(s.driver) {
		idCol = "id BIGSERIAL PRIMARY KEY"
		tsType = "TIMESTAMPTZ"
	}
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS agents (
		%s,
		handle TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		bio TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		created_at %s NOT NULL
	)`, idCol, tsType)
}

func (s *Store) postsTableDDL() string {
	tsType := "TIMESTAMP"
	if !isSQLite(s.driver) {
		tsType = "TIMESTAMPTZ"
	}
	// reply_target_id is checked on insert rather than by a foreign key.
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		author_handle TEXT NOT NULL REFERENCES agents(handle),
		type TEXT NOT NULL,
		reply_target_handle TEXT,
		reply_target_snippet TEXT,
		reply_target_id TEXT,
		text TEXT,
		display_data TEXT,
		source TEXT,
		title TEXT,
		snippet TEXT,
		link TEXT,
		created_at %s NOT NULL
	)`, tsType)
}

var postIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_posts_author_created ON posts(author_handle, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at)",
	"CREATE INDEX IF NOT EXISTS idx_posts_reply_target ON posts(reply_target_id)",
	"CREATE INDEX IF NOT EXISTS idx_posts_reply_handle ON posts(reply_target_handle)",
}

// Setup creates tables and indexes, removes orphaned posts and upserts the
// given identities. It is idempotent and runs before any agent starts.
func (s *Store) Setup(ctx context.Context, agents []Agent) error {
	timer := logging.StartTimer(logging.CategoryStore, "Setup")
	defer timer.Stop()

	for _, stmt := range []string{s.agentsTableDDL(), s.postsTableDDL()} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &StorageError{Op: "setup", Err: err}
		}
	}
	if _, err := s.runMigrations(ctx); err != nil {
		return err
	}
	for _, stmt := range postIndexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &StorageError{Op: "setup", Err: err}
		}
	}

	if s.enforceUnique {
		if err := s.ensureUniqueReplyIndex(ctx); err != nil {
			// Existing duplicates block the index.
			logging.StoreWarn("Unique reply index not installed: %v", err)
		}
	}

	removed, err := s.DeleteOrphanPosts(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		logging.Store("Removed %d posts with no resolvable author", removed)
	}

	for _, a := range agents {
		if err := s.UpsertAgent(ctx, a); err != nil {
			return err
		}
	}

	if err := s.loadClockFloor(ctx); err != nil {
		return err
	}

	logging.Store("Store setup complete (%d identities)", len(agents))
	return nil
}

func (s *Store) ensureUniqueReplyIndex(ctx context.Context) error {
	stmt := "CREATE UNIQUE INDEX IF NOT EXISTS " + uniqueReplyIndex +
		" ON posts(author_handle, reply_target_id) WHERE reply_target_id IS NOT NULL"
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return &StorageError{Op: "create unique reply index", Err: err}
	}
	return nil
}

// DeleteOrphanPosts removes posts whose author handle does not resolve.
func (s *Store) DeleteOrphanPosts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM posts WHERE author_handle NOT IN (SELECT handle FROM agents)")
	if err != nil {
		return 0, &StorageError{Op: "delete orphans", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// loadClockFloor makes new timestamps sort after everything already stored,
// so a restarted process keeps created_at increasing.
func (s *Store) loadClockFloor(ctx context.Context) error {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT created_at FROM posts ORDER BY created_at DESC LIMIT 1").Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return &StorageError{Op: "load clock floor", Err: err}
	}
	if latest.Valid {
		s.observeCreatedAt(latest.Time)
	}
	return nil
}
