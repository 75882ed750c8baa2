package store

import (
	"context"
	"fmt"

	"chorus/internal/logging"
)

// Migration adds one column that older deployments lack.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations upgrades tables created before a column existed.
// Provenance and reply snippets were added after the first deployment.
var pendingMigrations = []Migration{
	{"posts", "reply_target_snippet", "TEXT"},
	{"posts", "display_data", "TEXT"},
	{"posts", "source", "TEXT"},
	{"posts", "title", "TEXT"},
	{"posts", "snippet", "TEXT"},
	{"posts", "link", "TEXT"},
	{"agents", "avatar_url", "TEXT NOT NULL DEFAULT ''"},
}

// runMigrations adds any missing columns. Failures stop setup: a posts
// table without provenance columns cannot accept inserts.
func (s *Store) runMigrations(ctx context.Context) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "runMigrations")
	defer timer.Stop()

	applied := 0
	for _, m := range pendingMigrations {
		ok, err := s.columnExists(ctx, m.Table, m.Column)
		if err != nil {
			return applied, &StorageError{Op: "inspect " + m.Table, Err: err}
		}
		if ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return applied, &StorageError{Op: "migrate " + m.Table + "." + m.Column, Err: err}
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}
	return applied, nil
}

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	if !isSQLite(s.driver) {
		var n int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2",
			table, column).Scan(&n)
		return n > 0, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       any
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &primaryKey); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
