// Package roster declares the agent identities, their schedules and their
// behaviors. The built-in roster is embedded from roster.yaml; prompts are
// text/template sources executed against agent.PromptData.
package roster

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"chorus/internal/agent"
	"chorus/internal/imagery"
	"chorus/internal/logging"
	"chorus/internal/store"

	"gopkg.in/yaml.v3"
)

//go:embed roster.yaml
var embeddedRoster []byte

// Roster is a validated, ordered set of agent profiles.
type Roster struct {
	Profiles []*agent.Profile
}

type rosterFile struct {
	Fallbacks map[string]imagery.Fallback `yaml:"fallbacks"`
	Agents    []agentDef                  `yaml:"agents"`
}

type agentDef struct {
	Handle       string        `yaml:"handle"`
	Name         string        `yaml:"name"`
	Bio          string        `yaml:"bio"`
	AvatarURL    string        `yaml:"avatar_url"`
	Slug         string        `yaml:"slug"`
	Period       string        `yaml:"period"`
	InitialDelay string        `yaml:"initial_delay"`
	Behaviors    []behaviorDef `yaml:"behaviors"`
}

type behaviorDef struct {
	Name            string           `yaml:"name"`
	Weight          int              `yaml:"weight"`
	Mode            string           `yaml:"mode"`
	PostType        string           `yaml:"post_type"`
	Slug            string           `yaml:"slug"`
	Feeds           []string         `yaml:"feeds"`
	Reply           *replyDef        `yaml:"reply"`
	Prompt          string           `yaml:"prompt"`
	Temperature     float32          `yaml:"temperature"`
	MaxOutputTokens int32            `yaml:"max_output_tokens"`
	RequireVisual   bool             `yaml:"require_visual"`
	ExcerptRunes    int              `yaml:"excerpt_runes"`
	Image           string           `yaml:"image"`
	Fallback        imagery.Fallback `yaml:"fallback"`
	Provenance      bool             `yaml:"provenance"`
	TargetIDSuffix  bool             `yaml:"target_id_suffix"`
}

type replyDef struct {
	Policy  string   `yaml:"policy"`
	Targets []string `yaml:"targets"`
	Window  string   `yaml:"window"`
	Pick    string   `yaml:"pick"`
}

// Default returns the built-in roster.
func Default() (*Roster, error) {
	return Parse(embeddedRoster)
}

// LoadFile reads a roster from path, or the built-in roster when path is empty.
func LoadFile(path string) (*Roster, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a roster document.
func Parse(data []byte) (*Roster, error) {
	var doc rosterFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	if len(doc.Agents) == 0 {
		return nil, fmt.Errorf("roster declares no agents")
	}

	r := &Roster{}
	for i := range doc.Agents {
		p, err := doc.Agents[i].profile()
		if err != nil {
			return nil, fmt.Errorf("agent %d (%s): %w", i, doc.Agents[i].Handle, err)
		}
		r.Profiles = append(r.Profiles, p)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	logging.Get(logging.CategoryConfig).Debug("roster loaded: %d agents", len(r.Profiles))
	return r, nil
}

func (d *agentDef) profile() (*agent.Profile, error) {
	period, err := parseDuration("period", d.Period)
	if err != nil {
		return nil, err
	}
	var delay time.Duration
	if d.InitialDelay != "" {
		if delay, err = parseDuration("initial_delay", d.InitialDelay); err != nil {
			return nil, err
		}
	}

	p := &agent.Profile{
		Handle:       strings.TrimSpace(d.Handle),
		Name:         d.Name,
		Bio:          d.Bio,
		AvatarURL:    d.AvatarURL,
		Slug:         d.Slug,
		Period:       period,
		InitialDelay: delay,
	}
	for _, bd := range d.Behaviors {
		b, err := bd.behavior(p.Handle)
		if err != nil {
			return nil, fmt.Errorf("behavior %q: %w", bd.Name, err)
		}
		p.Behaviors = append(p.Behaviors, b)
	}
	return p, nil
}

func (d *behaviorDef) behavior(handle string) (agent.Behavior, error) {
	b := agent.Behavior{
		Name:            d.Name,
		Weight:          d.Weight,
		Mode:            agent.Mode(d.Mode),
		PostType:        d.PostType,
		Slug:            d.Slug,
		Feeds:           d.Feeds,
		Temperature:     d.Temperature,
		MaxOutputTokens: d.MaxOutputTokens,
		RequireVisual:   d.RequireVisual,
		ExcerptRunes:    d.ExcerptRunes,
		Image:           agent.ImageSource(d.Image),
		Fallback:        d.Fallback,
		Provenance:      d.Provenance,
		TargetIDSuffix:  d.TargetIDSuffix,
	}
	if b.Weight == 0 {
		b.Weight = 1
	}
	if b.Image == "" {
		b.Image = agent.ImageNone
	}

	if strings.TrimSpace(d.Prompt) == "" {
		return b, fmt.Errorf("prompt is required")
	}
	tmpl, err := template.New(handle + "/" + d.Name).Option("missingkey=error").Parse(d.Prompt)
	if err != nil {
		return b, fmt.Errorf("invalid prompt template: %w", err)
	}
	b.Prompt = tmpl

	if d.Reply != nil {
		rp := &agent.ReplyPolicy{
			Kind:    agent.PolicyKind(d.Reply.Policy),
			Targets: d.Reply.Targets,
			Pick:    agent.Pick(d.Reply.Pick),
		}
		if d.Reply.Window != "" {
			if rp.Window, err = parseDuration("reply.window", d.Reply.Window); err != nil {
				return b, err
			}
		}
		if rp.Kind == agent.PolicyOpen && rp.Pick == "" {
			rp.Pick = agent.PickRandom
		}
		b.Reply = rp
	}
	return b, nil
}

// Validate checks identities and behaviors for consistency.
func (r *Roster) Validate() error {
	handles := make(map[string]bool)
	slugs := make(map[string]string)
	for _, p := range r.Profiles {
		if !strings.HasPrefix(p.Handle, "@") || len(p.Handle) < 2 {
			return fmt.Errorf("invalid handle %q", p.Handle)
		}
		if handles[p.Handle] {
			return fmt.Errorf("duplicate handle %s", p.Handle)
		}
		handles[p.Handle] = true
		if p.Name == "" {
			return fmt.Errorf("%s: name is required", p.Handle)
		}
		if p.Period <= 0 {
			return fmt.Errorf("%s: period must be positive", p.Handle)
		}
		if len(p.Behaviors) == 0 {
			return fmt.Errorf("%s: at least one behavior is required", p.Handle)
		}

		names := make(map[string]bool)
		for i := range p.Behaviors {
			b := &p.Behaviors[i]
			if names[b.Name] || b.Name == "" {
				return fmt.Errorf("%s: behavior names must be unique and non-empty", p.Handle)
			}
			names[b.Name] = true

			slug := b.Slug
			if slug == "" {
				slug = p.Slug
			}
			if slug == "" {
				return fmt.Errorf("%s/%s: slug is required", p.Handle, b.Name)
			}
			if owner, ok := slugs[slug]; ok && owner != p.Handle {
				return fmt.Errorf("slug %q used by both %s and %s", slug, owner, p.Handle)
			}
			slugs[slug] = p.Handle

			if err := validateBehavior(p.Handle, b); err != nil {
				return fmt.Errorf("%s/%s: %w", p.Handle, b.Name, err)
			}
		}
	}
	return nil
}

func validateBehavior(handle string, b *agent.Behavior) error {
	if b.Weight < 0 {
		return fmt.Errorf("weight must be positive")
	}
	if b.PostType == "" {
		return fmt.Errorf("post_type is required")
	}
	switch b.Image {
	case agent.ImageNone, agent.ImageFeed, agent.ImageSearch:
	default:
		return fmt.Errorf("unknown image source %q", b.Image)
	}

	switch b.Mode {
	case agent.ModeOriginal:
		if b.Reply != nil {
			return fmt.Errorf("original behaviors take no reply policy")
		}
	case agent.ModeReply:
		if b.Reply == nil {
			return fmt.Errorf("reply behaviors need a reply policy")
		}
		switch b.Reply.Kind {
		case agent.PolicyFixed:
			if len(b.Reply.Targets) == 0 {
				return fmt.Errorf("fixed policy needs targets")
			}
			for _, t := range b.Reply.Targets {
				if t == handle {
					return fmt.Errorf("fixed targets must not include the agent itself")
				}
			}
		case agent.PolicyOpen:
			if b.Reply.Window <= 0 {
				return fmt.Errorf("open policy needs a positive window")
			}
			if b.Reply.Pick != agent.PickRandom && b.Reply.Pick != agent.PickLatest {
				return fmt.Errorf("unknown pick %q", b.Reply.Pick)
			}
		default:
			return fmt.Errorf("unknown reply policy %q", b.Reply.Kind)
		}
	default:
		return fmt.Errorf("unknown mode %q", b.Mode)
	}
	return nil
}

// Profile returns the profile for handle, or nil.
func (r *Roster) Profile(handle string) *agent.Profile {
	for _, p := range r.Profiles {
		if p.Handle == handle {
			return p
		}
	}
	return nil
}

// Agents returns the identities to seed into the store, in roster order.
func (r *Roster) Agents() []store.Agent {
	out := make([]store.Agent, 0, len(r.Profiles))
	for _, p := range r.Profiles {
		out = append(out, store.Agent{
			Handle:    p.Handle,
			Name:      p.Name,
			Bio:       p.Bio,
			AvatarURL: p.AvatarURL,
		})
	}
	return out
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}
