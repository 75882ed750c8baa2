package agent

import (
	"context"
	"fmt"
	"time"

	"chorus/internal/logging"
	"chorus/internal/store"
)

// openPoolScan bounds how many recent candidates a "latest" pick examines.
const openPoolScan = 10

// Store is the part of the content store agents depend on.
type Store interface {
	InsertPost(ctx context.Context, p *store.Post) error
	GetPost(ctx context.Context, id string) (*store.Post, error)
	FindLatestPostByAgent(ctx context.Context, handle string) (*store.Post, error)
	FindRandomRecentPostExcludingAgent(ctx context.Context, excludeHandle string, since time.Time) (*store.Post, error)
	FindRecentPostsExcludingAgent(ctx context.Context, excludeHandle string, since time.Time, limit int) ([]store.Post, error)
	HasReplyFrom(ctx context.Context, agentHandle, targetPostID string) (bool, error)
}

// Selector decides which post, if any, an agent may reply to right now.
type Selector struct {
	store Store
	intn  func(int) int
	now   func() time.Time
}

// NewSelector creates a selector over s.
func NewSelector(s Store, intn func(int) int, now func() time.Time) *Selector {
	return &Selector{store: s, intn: intn, now: now}
}

// Select returns an eligible target for self under policy, or nil.
// A target is never authored by self and never one self already answered.
func (s *Selector) Select(ctx context.Context, self string, policy ReplyPolicy) (*store.Post, error) {
	switch policy.Kind {
	case PolicyFixed:
		return s.selectFixed(ctx, self, policy.Targets)
	case PolicyOpen:
		return s.selectOpen(ctx, self, policy)
	default:
		return nil, fmt.Errorf("unknown reply policy %q", policy.Kind)
	}
}

func (s *Selector) selectFixed(ctx context.Context, self string, targets []string) (*store.Post, error) {
	candidates := make([]string, 0, len(targets))
	for _, h := range targets {
		if h != self {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	handle := candidates[0]
	if len(candidates) > 1 {
		handle = candidates[s.intn(len(candidates))]
	}
	log := logging.Get(logging.CategorySelector).With("agent", self, "target_agent", handle)

	latest, err := s.store.FindLatestPostByAgent(ctx, handle)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		log.Debug("no post from %s yet", handle)
		return nil, nil
	}
	return s.eligible(ctx, self, latest, log)
}

func (s *Selector) selectOpen(ctx context.Context, self string, policy ReplyPolicy) (*store.Post, error) {
	since := s.now().Add(-policy.Window)
	log := logging.Get(logging.CategorySelector).With("agent", self, "window", policy.Window.String())

	if policy.Pick == PickRandom {
		p, err := s.store.FindRandomRecentPostExcludingAgent(ctx, self, since)
		if err != nil || p == nil {
			return nil, err
		}
		return s.eligible(ctx, self, p, log)
	}

	posts, err := s.store.FindRecentPostsExcludingAgent(ctx, self, since, openPoolScan)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		p, err := s.eligible(ctx, self, &posts[i], log)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	log.Debug("no eligible posts in window")
	return nil, nil
}

// eligible applies the two rules every policy shares: no self-reply and no
// second reply to the same post.
func (s *Selector) eligible(ctx context.Context, self string, p *store.Post, log *logging.ContextLogger) (*store.Post, error) {
	if p.AuthorHandle == self {
		return nil, nil
	}
	replied, err := s.store.HasReplyFrom(ctx, self, p.ID)
	if err != nil {
		return nil, err
	}
	if replied {
		log.Debug("already replied to %s", p.ID)
		return nil, nil
	}
	return p, nil
}
