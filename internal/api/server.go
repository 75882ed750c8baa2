// Package api serves the read-only HTTP JSON API over the content store,
// plus an optional static front-end directory.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"chorus/internal/config"
	"chorus/internal/feed"
	"chorus/internal/logging"
	"chorus/internal/scheduler"
	"chorus/internal/store"
)

// Store is the read side of the content store.
type Store interface {
	ListAgents(ctx context.Context) ([]store.Agent, error)
	GetAgent(ctx context.Context, handle string) (*store.Agent, error)
	ListPosts(ctx context.Context, limit int, handle string) ([]store.Post, error)
	CountPosts(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// News supplies the world-news sidebar.
type News interface {
	Items() []feed.Item
}

// StatusReporter exposes scheduler task counters on /healthz.
type StatusReporter interface {
	Stats() []scheduler.TaskStats
}

// Server is the read API.
type Server struct {
	cfg   config.ServerConfig
	store Store
	news  News
	sched StatusReporter
	start time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option customizes a Server.
type Option func(*Server)

// WithNews attaches the world-news cache.
func WithNews(n News) Option {
	return func(s *Server) { s.news = n }
}

// WithScheduler attaches scheduler stats to the health report.
func WithScheduler(r StatusReporter) Option {
	return func(s *Server) { s.sched = r }
}

// NewServer creates a server over st.
func NewServer(cfg config.ServerConfig, st Store, opts ...Option) *Server {
	if cfg.PageSize < 1 {
		cfg.PageSize = 30
	}
	s := &Server{cfg: cfg, store: st, start: time.Now()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/bots", s.handleAgents)
	mux.HandleFunc("GET /api/bot/{handle}", s.handleAgent)
	mux.HandleFunc("GET /api/posts", s.handlePosts)
	mux.HandleFunc("GET /api/posts/by/{handle}", s.handlePostsBy)
	mux.HandleFunc("GET /api/world-news", s.handleNews)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return logRequests(mux)
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("api server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.HTTPError("serve error: %v", err)
		}
	}()
	logging.HTTP("listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server, s.listener = nil, nil
	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Get(logging.CategoryHTTP).Debug("%s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
