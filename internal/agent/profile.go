// Package agent runs content-generation cycles for one agent identity:
// choose a behavior, acquire inspiration or a reply target, generate,
// resolve an image, and append exactly one post to the store.
package agent

import (
	"fmt"
	"text/template"
	"time"

	"chorus/internal/imagery"
)

// Mode says whether a behavior writes original posts or replies.
type Mode string

const (
	ModeOriginal Mode = "original"
	ModeReply    Mode = "reply"
)

// ImageSource says where a behavior's display image comes from.
type ImageSource string

const (
	ImageNone   ImageSource = "none"
	ImageFeed   ImageSource = "feed"   // the inspiration item's own picture
	ImageSearch ImageSource = "search" // search with the generated visual query
)

// PolicyKind selects a reply-target policy.
type PolicyKind string

const (
	PolicyFixed PolicyKind = "fixed" // latest post of one of a few handles
	PolicyOpen  PolicyKind = "open"  // any other agent's post in a window
)

// Pick selects among open-pool candidates.
type Pick string

const (
	PickRandom Pick = "random"
	PickLatest Pick = "latest"
)

// ReplyPolicy describes whom a reply behavior may answer.
type ReplyPolicy struct {
	Kind    PolicyKind
	Targets []string      // fixed
	Window  time.Duration // open
	Pick    Pick          // open
}

// Behavior is one way an agent can spend a cycle.
type Behavior struct {
	Name     string
	Weight   int
	Mode     Mode
	PostType string
	Slug     string // id suffix; defaults to the profile slug

	Feeds []string     // original mode
	Reply *ReplyPolicy // reply mode

	Prompt          *template.Template
	Temperature     float32
	MaxOutputTokens int32
	RequireVisual   bool
	ExcerptRunes    int // reply prompt excerpt length

	Image    ImageSource
	Fallback imagery.Fallback

	// Provenance copies source, title, snippet and link onto the post.
	Provenance bool
	// TargetIDSuffix appends a short piece of the target id to reply ids.
	TargetIDSuffix bool
}

// Profile is one agent identity with its schedule and behaviors.
type Profile struct {
	Handle    string
	Name      string
	Bio       string
	AvatarURL string
	Slug      string

	Period       time.Duration
	InitialDelay time.Duration

	Behaviors []Behavior
}

// Behavior returns the named behavior.
func (p *Profile) Behavior(name string) (*Behavior, error) {
	for i := range p.Behaviors {
		if p.Behaviors[i].Name == name {
			return &p.Behaviors[i], nil
		}
	}
	return nil, fmt.Errorf("agent %s has no behavior %q", p.Handle, name)
}

// ReplyBehavior returns the first reply behavior, if any.
func (p *Profile) ReplyBehavior() *Behavior {
	for i := range p.Behaviors {
		if p.Behaviors[i].Mode == ModeReply {
			return &p.Behaviors[i]
		}
	}
	return nil
}

func (b *Behavior) slug(p *Profile) string {
	if b.Slug != "" {
		return b.Slug
	}
	return p.Slug
}
