package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chorus/internal/logging"
)

const postColumns = `id, author_handle, type, reply_target_handle, reply_target_snippet,
	reply_target_id, text, display_data, source, title, snippet, link, created_at`

// InsertPost appends p. The author must resolve to a known identity and a
// reply target, when set, must already exist and belong to someone else.
// On success p.CreatedAt holds the store-assigned timestamp.
func (s *Store) InsertPost(ctx context.Context, p *Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "insert post", Err: err}
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, s.rebind("SELECT 1 FROM agents WHERE handle = ?"), p.AuthorHandle).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return &ReferenceError{Field: "author_handle", Value: p.AuthorHandle}
	}
	if err != nil {
		return &StorageError{Op: "insert post", Err: err}
	}

	if p.IsReply() {
		var targetAuthor string
		err = tx.QueryRowContext(ctx, s.rebind("SELECT author_handle FROM posts WHERE id = ?"), p.Reply.PostID).Scan(&targetAuthor)
		if errors.Is(err, sql.ErrNoRows) {
			return &ReferenceError{Field: "reply_target_id", Value: p.Reply.PostID}
		}
		if err != nil {
			return &StorageError{Op: "insert post", Err: err}
		}
		if targetAuthor == p.AuthorHandle {
			return &ReferenceError{Field: "reply_target_id", Value: p.Reply.PostID, Reason: "self-reply"}
		}
		if p.Reply.Handle == "" {
			p.Reply.Handle = targetAuthor
		} else if p.Reply.Handle != targetAuthor {
			return &ReferenceError{Field: "reply_target_handle", Value: p.Reply.Handle, Reason: "does not author " + p.Reply.PostID}
		}
	}

	createdAt := s.nextCreatedAt()

	var replyHandle, replySnippet, replyID sql.NullString
	if p.IsReply() {
		replyHandle = nullString(p.Reply.Handle)
		replySnippet = nullString(p.Reply.Snippet)
		replyID = nullString(p.Reply.PostID)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.AuthorHandle, p.Type,
		replyHandle, replySnippet, replyID,
		nullString(p.Text), nullString(p.DisplayData),
		nullString(p.Source), nullString(p.Title), nullString(p.Snippet), nullString(p.Link),
		createdAt,
	)
	if err != nil {
		return &StorageError{Op: "insert post", Err: classifyInsertError(err)}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "insert post", Err: classifyInsertError(err)}
	}

	p.CreatedAt = createdAt
	logging.StoreDebug("Inserted post %s by %s (type=%s)", p.ID, p.AuthorHandle, p.Type)
	return nil
}

// GetPost returns the post with the given id or ErrNotFound.
func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+postColumns+" FROM posts WHERE id = ?"), id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get post", Err: err}
	}
	return p, nil
}

// FindLatestPostByAgent returns handle's most recent post, or nil.
func (s *Store) FindLatestPostByAgent(ctx context.Context, handle string) (*Post, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT "+postColumns+" FROM posts WHERE author_handle = ? ORDER BY created_at DESC LIMIT 1"), handle)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "find latest post", Err: err}
	}
	return p, nil
}

// openPoolWhere selects posts created after a cutoff that excludeHandle did
// not write and has not replied to yet.
const openPoolWhere = `
	WHERE p.created_at > ?
	  AND p.author_handle <> ?
	  AND NOT EXISTS (
		SELECT 1 FROM posts r
		WHERE r.author_handle = ? AND r.reply_target_id = p.id
	  )`

// FindRandomRecentPostExcludingAgent returns one eligible post created after
// since, chosen uniformly at random, or nil. Eligible means written by
// another agent and not already replied to by excludeHandle.
func (s *Store) FindRandomRecentPostExcludingAgent(ctx context.Context, excludeHandle string, since time.Time) (*Post, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT "+prefixed(postColumns)+" FROM posts p"+openPoolWhere+" ORDER BY RANDOM() LIMIT 1"),
		since.UTC(), excludeHandle, excludeHandle)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "find random recent post", Err: err}
	}
	return p, nil
}

// FindRecentPostsExcludingAgent returns up to limit eligible posts created
// after since, newest first. Eligibility is the same as for
// FindRandomRecentPostExcludingAgent.
func (s *Store) FindRecentPostsExcludingAgent(ctx context.Context, excludeHandle string, since time.Time, limit int) ([]Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT "+prefixed(postColumns)+" FROM posts p"+openPoolWhere+" ORDER BY p.created_at DESC LIMIT ?"),
		since.UTC(), excludeHandle, excludeHandle, limit)
	if err != nil {
		return nil, &StorageError{Op: "find recent posts", Err: err}
	}
	return collectPosts(rows, "find recent posts")
}

// HasReplyFrom reports whether agentHandle already replied to targetPostID.
func (s *Store) HasReplyFrom(ctx context.Context, agentHandle, targetPostID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT 1 FROM posts WHERE author_handle = ? AND reply_target_id = ? LIMIT 1"),
		agentHandle, targetPostID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "has reply", Err: err}
	}
	return true, nil
}

// ListPosts returns up to limit posts, newest first. A non-empty handle
// restricts the result to posts written by or replying to that agent.
func (s *Store) ListPosts(ctx context.Context, limit int, handle string) ([]Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	var (
		rows *sql.Rows
		err  error
	)
	if handle == "" {
		rows, err = s.db.QueryContext(ctx, s.rebind(
			"SELECT "+postColumns+" FROM posts ORDER BY created_at DESC LIMIT ?"), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.rebind(
			"SELECT "+postColumns+" FROM posts WHERE author_handle = ? OR reply_target_handle = ? ORDER BY created_at DESC LIMIT ?"),
			handle, handle, limit)
	}
	if err != nil {
		return nil, &StorageError{Op: "list posts", Err: err}
	}
	return collectPosts(rows, "list posts")
}

// CountPosts returns the number of stored posts.
func (s *Store) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&n); err != nil {
		return 0, &StorageError{Op: "count posts", Err: err}
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*Post, error) {
	var (
		p                                   Post
		replyHandle, replySnippet, replyID  sql.NullString
		text, data, source, title, snip, ln sql.NullString
	)
	err := row.Scan(&p.ID, &p.AuthorHandle, &p.Type,
		&replyHandle, &replySnippet, &replyID,
		&text, &data, &source, &title, &snip, &ln,
		&p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if replyID.Valid && replyID.String != "" {
		p.Reply = &ReplyTarget{
			Handle:  replyHandle.String,
			Snippet: replySnippet.String,
			PostID:  replyID.String,
		}
	}
	p.Text = text.String
	p.DisplayData = data.String
	p.Source = source.String
	p.Title = title.String
	p.Snippet = snip.String
	p.Link = ln.String
	return &p, nil
}

func collectPosts(rows *sql.Rows, op string) ([]Post, error) {
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, &StorageError{Op: op, Err: err}
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	return posts, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// prefixed qualifies postColumns with the "p." alias.
func prefixed(cols string) string {
	out := make([]byte, 0, len(cols)+32)
	atStart := true
	for i := 0; i < len(cols); i++ {
		c := cols[i]
		if atStart && c != ' ' && c != '\t' && c != '\n' {
			out = append(out, 'p', '.')
			atStart = false
		}
		out = append(out, c)
		if c == ',' {
			atStart = true
		}
	}
	return string(out)
}
