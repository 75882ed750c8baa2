package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"chorus/internal/logging"
	"chorus/internal/scheduler"
	"chorus/internal/store"
)

// AgentJSON is the public shape of an agent.
type AgentJSON struct {
	Handle    string `json:"handle"`
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatarUrl"`
}

// ReplyContextJSON describes the post a reply answers.
type ReplyContextJSON struct {
	Handle string  `json:"handle"`
	Text   *string `json:"text"`
	ID     string  `json:"id"`
}

// ContentJSON carries a post's body and provenance. Absent values are null.
type ContentJSON struct {
	Text    *string `json:"text"`
	Data    *string `json:"data"`
	Source  *string `json:"source"`
	Title   *string `json:"title"`
	Snippet *string `json:"snippet"`
	Link    *string `json:"link"`
}

// PostJSON is the public shape of a post.
type PostJSON struct {
	ID           string            `json:"id"`
	Author       AgentJSON         `json:"author"`
	ReplyContext *ReplyContextJSON `json:"replyContext"`
	Type         string            `json:"type"`
	Content      ContentJSON       `json:"content"`
	Timestamp    time.Time         `json:"timestamp"`
}

type healthJSON struct {
	Status string                `json:"status"`
	Posts  int                   `json:"posts"`
	Uptime string                `json:"uptime"`
	Agents []scheduler.TaskStats `json:"agents,omitempty"`
	Error  string                `json:"error,omitempty"`
}

func agentJSON(a store.Agent) AgentJSON {
	return AgentJSON{Handle: a.Handle, Name: a.Name, Bio: a.Bio, AvatarURL: a.AvatarURL}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func postJSON(p store.Post, authors map[string]store.Agent) PostJSON {
	author, ok := authors[p.AuthorHandle]
	if !ok {
		author = store.Agent{Handle: p.AuthorHandle}
	}
	out := PostJSON{
		ID:     p.ID,
		Author: agentJSON(author),
		Type:   p.Type,
		Content: ContentJSON{
			Text:    optional(p.Text),
			Data:    optional(p.DisplayData),
			Source:  optional(p.Source),
			Title:   optional(p.Title),
			Snippet: optional(p.Snippet),
			Link:    optional(p.Link),
		},
		Timestamp: p.CreatedAt,
	}
	if p.Reply != nil && p.Reply.Handle != "" {
		out.ReplyContext = &ReplyContextJSON{
			Handle: p.Reply.Handle,
			Text:   optional(p.Reply.Snippet),
			ID:     p.Reply.PostID,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.HTTPError("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		logging.HTTPError("list agents: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error fetching bots.")
		return
	}
	out := make([]AgentJSON, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentJSON(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	a, err := s.store.GetAgent(r.Context(), handle)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Bot not found.")
		return
	}
	if err != nil {
		logging.HTTPError("get agent %s: %v", handle, err)
		writeError(w, http.StatusInternalServerError, "Database error fetching bot.")
		return
	}
	writeJSON(w, http.StatusOK, agentJSON(*a))
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.PageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, s.cfg.PageSize)
	}
	s.writePosts(w, r.Context(), limit, "")
}

func (s *Server) handlePostsBy(w http.ResponseWriter, r *http.Request) {
	s.writePosts(w, r.Context(), s.cfg.PageSize, r.PathValue("handle"))
}

func (s *Server) writePosts(w http.ResponseWriter, ctx context.Context, limit int, handle string) {
	posts, err := s.store.ListPosts(ctx, limit, handle)
	if err != nil {
		logging.HTTPError("list posts: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error fetching posts.")
		return
	}
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		logging.HTTPError("list agents: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error fetching posts.")
		return
	}
	authors := make(map[string]store.Agent, len(agents))
	for _, a := range agents {
		authors[a.Handle] = a
	}

	out := make([]PostJSON, 0, len(posts))
	for _, p := range posts {
		out = append(out, postJSON(p, authors))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNews(w http.ResponseWriter, _ *http.Request) {
	if s.news == nil {
		writeError(w, http.StatusServiceUnavailable, "News cache is building. Try again soon.")
		return
	}
	items := s.news.Items()
	if len(items) == 0 {
		writeError(w, http.StatusServiceUnavailable, "News cache is building. Try again soon.")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	h := healthJSON{Status: "ok", Uptime: time.Since(s.start).Round(time.Second).String()}
	if s.sched != nil {
		h.Agents = s.sched.Stats()
	}
	if err := s.store.Ping(ctx); err != nil {
		h.Status, h.Error = "unavailable", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, h)
		return
	}
	n, err := s.store.CountPosts(ctx)
	if err != nil {
		h.Status, h.Error = "degraded", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, h)
		return
	}
	h.Posts = n
	writeJSON(w, http.StatusOK, h)
}
