package store

import "time"

// Agent is an agent identity. Created once at setup and never mutated.
type Agent struct {
	Handle    string
	Name      string
	Bio       string
	AvatarURL string
}

// ReplyTarget identifies the post a reply responds to.
type ReplyTarget struct {
	Handle  string // author of the target post
	Snippet string // short quote captured at reply time
	PostID  string
}

// Post is one immutable row of the feed. Optional fields are empty
// strings when absent and are stored as NULL.
type Post struct {
	ID           string
	AuthorHandle string
	Type         string
	Reply        *ReplyTarget

	Text        string
	DisplayData string

	// Provenance of external inspiration.
	Source  string
	Title   string
	Snippet string
	Link    string

	// Assigned by the store on insert.
	CreatedAt time.Time
}

// IsReply reports whether the post targets another post.
func (p *Post) IsReply() bool {
	return p.Reply != nil && p.Reply.PostID != ""
}
