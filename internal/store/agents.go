package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertAgent inserts an identity. An existing handle is left untouched.
// Identities are stamped with wall time; the store clock orders posts only.
func (s *Store) UpsertAgent(ctx context.Context, a Agent) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO agents (handle, name, bio, avatar_url, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (handle) DO NOTHING`),
		a.Handle, a.Name, a.Bio, a.AvatarURL, time.Now().UTC())
	if err != nil {
		return &StorageError{Op: "upsert agent", Err: err}
	}
	return nil
}

// GetAgent returns the identity for handle or ErrNotFound.
func (s *Store) GetAgent(ctx context.Context, handle string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT handle, name, bio, avatar_url FROM agents WHERE handle = ?"), handle).
		Scan(&a.Handle, &a.Name, &a.Bio, &a.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get agent", Err: err}
	}
	return &a, nil
}

// ListAgents returns all identities in creation order.
func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT handle, name, bio, avatar_url FROM agents ORDER BY id")
	if err != nil {
		return nil, &StorageError{Op: "list agents", Err: err}
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.Handle, &a.Name, &a.Bio, &a.AvatarURL); err != nil {
			return nil, &StorageError{Op: "list agents", Err: err}
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list agents", Err: err}
	}
	return agents, nil
}
