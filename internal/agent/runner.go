package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"chorus/internal/feed"
	"chorus/internal/generation"
	"chorus/internal/imagery"
	"chorus/internal/logging"
	"chorus/internal/store"

	"github.com/google/uuid"
)

const (
	replySnippetRunes   = 40
	defaultExcerptRunes = 250
)

// Outcome classifies how a cycle ended. Only OutcomePosted writes a row.
type Outcome string

const (
	OutcomePosted            Outcome = "posted"
	OutcomeNotReady          Outcome = "skipped_not_ready"
	OutcomeNoInput           Outcome = "skipped_no_input"
	OutcomeInspirationFailed Outcome = "aborted_inspiration"
	OutcomeGenerationFailed  Outcome = "aborted_generation"
	OutcomeStoreFailed       Outcome = "aborted_store"
	OutcomePanic             Outcome = "aborted_panic"
)

// CycleResult reports one cycle. Err is informational; cycles never fail
// their caller.
type CycleResult struct {
	Cycle    string
	Agent    string
	Behavior string
	Outcome  Outcome
	Post     *store.Post
	Err      error
	Duration time.Duration
}

// Posted reports whether the cycle wrote a post.
func (r CycleResult) Posted() bool { return r.Outcome == OutcomePosted }

// Deps are the collaborators shared by every runner.
type Deps struct {
	Store     Store
	Source    feed.Source
	Generator generation.Generator
	Images    imagery.Searcher
	IDs       *IDGenerator
	Intn      func(int) int
	Now       func() time.Time
}

// Runner executes cycles for one agent.
type Runner struct {
	profile  *Profile
	deps     Deps
	selector *Selector
}

// NewRunner creates a runner for profile.
func NewRunner(profile *Profile, deps Deps) *Runner {
	if deps.Intn == nil {
		deps.Intn = rand.IntN
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.IDs == nil {
		deps.IDs = NewIDGenerator(deps.Now)
	}
	return &Runner{
		profile:  profile,
		deps:     deps,
		selector: NewSelector(deps.Store, deps.Intn, deps.Now),
	}
}

// Profile returns the runner's agent profile.
func (r *Runner) Profile() *Profile { return r.profile }

// Handle returns the agent handle.
func (r *Runner) Handle() string { return r.profile.Handle }

// RunCycle draws a behavior by weight and runs it.
func (r *Runner) RunCycle(ctx context.Context) CycleResult {
	b := chooseBehavior(r.profile.Behaviors, r.deps.Intn)
	if b == nil {
		return CycleResult{Agent: r.profile.Handle, Outcome: OutcomeNoInput, Err: errors.New("no behaviors")}
	}
	return r.run(ctx, b, nil)
}

// RunBehavior runs the named behavior once.
func (r *Runner) RunBehavior(ctx context.Context, name string) CycleResult {
	b, err := r.profile.Behavior(name)
	if err != nil {
		return CycleResult{Agent: r.profile.Handle, Behavior: name, Outcome: OutcomeNoInput, Err: err}
	}
	return r.run(ctx, b, nil)
}

// RunReplyTo replies to one specific post with the agent's reply behavior.
// Self-replies are refused. An earlier reply to the same post is only
// logged; with unique replies enforced the insert still fails.
func (r *Runner) RunReplyTo(ctx context.Context, postID string) CycleResult {
	res := CycleResult{Agent: r.profile.Handle, Outcome: OutcomeNoInput}
	b := r.profile.ReplyBehavior()
	if b == nil {
		res.Err = fmt.Errorf("agent %s has no reply behavior", r.profile.Handle)
		return res
	}
	res.Behavior = b.Name
	log := logging.ForAgent(r.profile.Handle).With("behavior", b.Name, "target", postID)

	target, err := r.deps.Store.GetPost(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("manual reply target %s not found", postID)
		res.Err = err
		return res
	}
	if err != nil {
		log.Error("manual reply lookup failed: %v", err)
		res.Outcome = OutcomeStoreFailed
		res.Err = err
		return res
	}
	if target.AuthorHandle == r.profile.Handle {
		log.Warn("refusing to reply to own post %s", postID)
		res.Err = errors.New("cannot reply to own post")
		return res
	}
	if replied, err := r.deps.Store.HasReplyFrom(ctx, r.profile.Handle, postID); err == nil && replied {
		log.Warn("already replied to %s; trying anyway", postID)
	}
	return r.run(ctx, b, target)
}

// run executes one cycle. It never panics and writes at most one row.
func (r *Runner) run(ctx context.Context, b *Behavior, target *store.Post) (res CycleResult) {
	res = CycleResult{
		Cycle:    uuid.NewString(),
		Agent:    r.profile.Handle,
		Behavior: b.Name,
	}
	start := time.Now()
	log := logging.ForAgent(r.profile.Handle).With("cycle", res.Cycle, "behavior", b.Name)

	logging.Audit(logging.AuditEvent{
		Type: logging.AuditCycleStart, Agent: res.Agent, Cycle: res.Cycle, Behavior: b.Name,
	})
	defer func() {
		if rec := recover(); rec != nil {
			res.Outcome = OutcomePanic
			res.Err = fmt.Errorf("panic: %v", rec)
			res.Post = nil
			log.Error("cycle panicked: %v", rec)
		}
		res.Duration = time.Since(start)
		auditResult(res)
	}()

	if !r.deps.Generator.Ready() {
		log.Warn("generation provider not configured; standing by")
		res.Outcome = OutcomeNotReady
		return res
	}

	// Inspiration or reply target.
	var item *feed.Item
	switch b.Mode {
	case ModeOriginal:
		if len(b.Feeds) == 0 {
			// Self-inspired behaviors (e.g. original jokes) need no input.
			break
		}
		it, err := r.deps.Source.Fetch(ctx, b.Feeds)
		if errors.Is(err, feed.ErrNoItem) {
			log.Info("no usable inspiration: %v", err)
			res.Outcome, res.Err = OutcomeNoInput, err
			return res
		}
		if err != nil {
			log.Warn("inspiration fetch failed: %v", err)
			res.Outcome, res.Err = OutcomeInspirationFailed, err
			return res
		}
		item = it
	case ModeReply:
		if target == nil {
			if b.Reply == nil {
				res.Outcome, res.Err = OutcomeNoInput, errors.New("reply behavior without policy")
				return res
			}
			t, err := r.selector.Select(ctx, r.profile.Handle, *b.Reply)
			if err != nil {
				log.Error("reply target lookup failed: %v", err)
				res.Outcome, res.Err = OutcomeStoreFailed, err
				return res
			}
			if t == nil {
				log.Info("no eligible reply target")
				res.Outcome = OutcomeNoInput
				return res
			}
			target = t
		}
		log = log.With("target", target.ID)
		logging.Audit(logging.AuditEvent{
			Type: logging.AuditReplySelected, Agent: res.Agent, Cycle: res.Cycle,
			Behavior: b.Name, Target: target.ID,
		})
	}

	// Generation.
	prompt, err := renderPrompt(b, r.profile, item, target)
	if err != nil {
		log.Error("prompt render failed: %v", err)
		res.Outcome, res.Err = OutcomeGenerationFailed, err
		return res
	}
	out, err := r.deps.Generator.Generate(ctx, generation.Request{
		Instruction:     prompt,
		Temperature:     b.Temperature,
		MaxOutputTokens: b.MaxOutputTokens,
		RequireVisual:   b.RequireVisual,
	})
	if err != nil {
		log.Warn("generation failed: %v", err)
		res.Outcome, res.Err = OutcomeGenerationFailed, err
		return res
	}

	post := &store.Post{
		AuthorHandle: r.profile.Handle,
		Type:         b.PostType,
		Text:         out.Text,
		DisplayData:  r.displayImage(ctx, b, item, out, log),
	}
	slug := b.slug(r.profile)
	if target != nil {
		post.Reply = &store.ReplyTarget{
			Handle:  target.AuthorHandle,
			Snippet: replySnippet(target),
			PostID:  target.ID,
		}
		if b.TargetIDSuffix {
			slug += "-" + targetSuffix(target.ID)
		}
	}
	if b.Provenance && item != nil {
		post.Source = item.Source
		post.Title = item.Title
		post.Snippet = item.Snippet
		post.Link = item.Link
	}
	post.ID = r.deps.IDs.Next(slug)

	// Persistence.
	if err := r.deps.Store.InsertPost(ctx, post); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateReply):
			log.Warn("reply to %s already exists; dropping", post.Reply.PostID)
		case store.IsReferenceError(err):
			log.Error("post rejected: %v", err)
		default:
			log.Error("store write failed: %v", err)
		}
		res.Outcome, res.Err = OutcomeStoreFailed, err
		return res
	}

	log.Info("posted %s (%s)", post.ID, post.Type)
	res.Outcome = OutcomePosted
	res.Post = post
	return res
}

// displayImage picks the post's display image. Image failures substitute
// the behavior's fallback and never abort the cycle.
func (r *Runner) displayImage(ctx context.Context, b *Behavior, item *feed.Item, out *generation.Result, log *logging.ContextLogger) string {
	switch b.Image {
	case ImageFeed:
		if item != nil && item.ImageURL != "" {
			return item.ImageURL
		}
		return b.Fallback.NoResults
	case ImageSearch:
		query := out.Visual
		if query == "" && item != nil {
			query = item.Title
		}
		if query == "" {
			return b.Fallback.For(imagery.ErrNoResults)
		}
		url, ok := imagery.Resolve(ctx, r.deps.Images, query, b.Fallback)
		if !ok {
			log.Warn("image search for %q failed; using fallback", query)
		}
		return url
	default:
		return ""
	}
}

func auditResult(res CycleResult) {
	ev := logging.AuditEvent{
		Agent:    res.Agent,
		Cycle:    res.Cycle,
		Behavior: res.Behavior,
		Duration: res.Duration,
	}
	switch res.Outcome {
	case OutcomePosted:
		ev.Type = logging.AuditCyclePosted
		ev.PostID = res.Post.ID
		if res.Post.Reply != nil {
			ev.Target = res.Post.Reply.PostID
		}
	case OutcomeNotReady, OutcomeNoInput:
		ev.Type = logging.AuditCycleSkipped
		ev.Reason = string(res.Outcome)
	default:
		ev.Type = logging.AuditCycleAborted
		ev.Reason = string(res.Outcome)
		if res.Err != nil {
			ev.Reason += ": " + res.Err.Error()
		}
	}
	logging.Audit(ev)
}

// chooseBehavior draws one behavior with probability proportional to weight.
func chooseBehavior(behaviors []Behavior, intn func(int) int) *Behavior {
	switch len(behaviors) {
	case 0:
		return nil
	case 1:
		return &behaviors[0]
	}
	total := 0
	for _, b := range behaviors {
		total += max(b.Weight, 1)
	}
	n := intn(total)
	for i := range behaviors {
		w := max(behaviors[i].Weight, 1)
		if n < w {
			return &behaviors[i]
		}
		n -= w
	}
	return &behaviors[len(behaviors)-1]
}

// replySource is the text a reply quotes: body, else title, else snippet.
func replySource(p *store.Post) string {
	for _, s := range []string{p.Text, p.Title, p.Snippet} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return "post"
}

func replySnippet(p *store.Post) string {
	return truncateRunes(replySource(p), replySnippetRunes) + "..."
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
