package main

import (
	"context"
	"fmt"

	"chorus/internal/agent"
	"chorus/internal/feed"
	"chorus/internal/generation"
	"chorus/internal/imagery"
	"chorus/internal/roster"
	"chorus/internal/scheduler"
	"chorus/internal/store"

	"go.uber.org/zap"
)

// app holds the wired components shared by the subcommands.
type app struct {
	roster    *roster.Roster
	store     *store.Store
	source    *feed.RSSSource
	generator generation.Generator
	images    imagery.Searcher
	ids       *agent.IDGenerator
}

// openStore opens the store and makes sure the schema and roster exist.
func openStore(ctx context.Context) (*store.Store, *roster.Roster, error) {
	r, err := roster.LoadFile(cfg.Roster)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Setup(ctx, r.Agents()); err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, r, nil
}

// newApp wires every adapter. Missing provider keys are not an error:
// the generator reports not-ready and cycles stand by.
func newApp(ctx context.Context) (*app, error) {
	s, r, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	gen, err := generation.NewGemini(ctx, cfg.Gemini)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}
	if !gen.Ready() {
		logger.Warn("GEMINI_API_KEY not set; agents will stand by")
	}
	if !cfg.Pexels.Ready() {
		logger.Warn("PEXELS_API_KEY not set; image posts use fallback pictures")
	}

	return &app{
		roster:    r,
		store:     s,
		source:    feed.NewRSSSource(cfg.Feeds),
		generator: gen,
		images:    imagery.NewPexels(cfg.Pexels),
		ids:       agent.NewIDGenerator(nil),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) runner(p *agent.Profile) *agent.Runner {
	return agent.NewRunner(p, agent.Deps{
		Store:     a.store,
		Source:    a.source,
		Generator: a.generator,
		Images:    a.images,
		IDs:       a.ids,
	})
}

// schedule builds the scheduler over every roster agent.
func (a *app) schedule() (*scheduler.Scheduler, error) {
	entries := make([]scheduler.Entry, 0, len(a.roster.Profiles))
	for _, p := range a.roster.Profiles {
		entries = append(entries, scheduler.Entry{
			Runner:       a.runner(p),
			Period:       p.Period,
			InitialDelay: p.InitialDelay,
		})
		logger.Debug("agent registered",
			zap.String("handle", p.Handle),
			zap.Duration("period", cfg.Scheduler.PeriodFor(p.Handle, p.Period)),
			zap.Bool("disabled", cfg.Scheduler.IsDisabled(p.Handle)))
	}
	return scheduler.New(cfg.Scheduler, entries)
}
