// Package scheduler drives every enabled agent on its own periodic timer.
//
// Each agent owns one task: a first tick after the agent's initial delay,
// then one tick per period. A tick that arrives while the agent's previous
// cycle is still running is skipped and audited. A process-wide semaphore
// bounds how many cycles run at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chorus/internal/agent"
	"chorus/internal/config"
	"chorus/internal/logging"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrShutdownTimeout is returned by Stop when in-flight cycles outlive the
// shutdown grace period.
var ErrShutdownTimeout = errors.New("in-flight cycles did not finish within the shutdown grace period")

// Cycler runs one cycle for one agent. *agent.Runner implements it.
type Cycler interface {
	Handle() string
	RunCycle(ctx context.Context) agent.CycleResult
}

// Entry is one agent to schedule.
type Entry struct {
	Runner       Cycler
	Period       time.Duration
	InitialDelay time.Duration
}

// TaskStats counts what one agent's task has done.
type TaskStats struct {
	Handle      string        `json:"handle"`
	Period      time.Duration `json:"period"`
	Ticks       int64         `json:"ticks"`
	Cycles      int64         `json:"cycles"`
	Posted      int64         `json:"posted"`
	Overlaps    int64         `json:"overlaps"`
	Running     bool          `json:"running"`
	LastOutcome agent.Outcome `json:"lastOutcome,omitempty"`
	LastRun     time.Time     `json:"lastRun,omitzero"`
}

type task struct {
	entry   Entry
	running atomic.Bool

	ticks    atomic.Int64
	cycles   atomic.Int64
	posted   atomic.Int64
	overlaps atomic.Int64

	mu          sync.Mutex
	lastOutcome agent.Outcome
	lastRun     time.Time
}

// Scheduler coordinates the per-agent tasks.
type Scheduler struct {
	cfg   config.SchedulerConfig
	tasks []*task
	sem   *semaphore.Weighted

	mu           sync.Mutex
	started      bool
	stopLoops    context.CancelFunc
	cancelCycles context.CancelFunc
	cycleCtx     context.Context
	loops        *errgroup.Group
	inflight     sync.WaitGroup
}

// New builds a scheduler. Disabled handles are dropped here, and any
// configured period override replaces the entry's period.
func New(cfg config.SchedulerConfig, entries []Entry) (*Scheduler, error) {
	limit := cfg.MaxConcurrentCycles
	if limit < 1 {
		limit = 1
	}
	s := &Scheduler{cfg: cfg, sem: semaphore.NewWeighted(int64(limit))}

	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Runner == nil {
			return nil, fmt.Errorf("scheduler entry without runner")
		}
		h := e.Runner.Handle()
		if seen[h] {
			return nil, fmt.Errorf("agent %s scheduled twice", h)
		}
		seen[h] = true
		if cfg.IsDisabled(h) {
			logging.Scheduler("%s disabled by configuration", h)
			continue
		}
		e.Period = cfg.PeriodFor(h, e.Period)
		if e.Period <= 0 {
			return nil, fmt.Errorf("agent %s has no period", h)
		}
		s.tasks = append(s.tasks, &task{entry: e})
	}
	return s, nil
}

// Len reports how many agents are scheduled.
func (s *Scheduler) Len() int { return len(s.tasks) }

// Start launches every task. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	loopCtx, stopLoops := context.WithCancel(ctx)
	// Cycles outlive the tick loops so that Stop can drain them.
	cycleCtx, cancelCycles := context.WithCancel(context.WithoutCancel(ctx))
	s.stopLoops, s.cancelCycles, s.cycleCtx = stopLoops, cancelCycles, cycleCtx

	g, gctx := errgroup.WithContext(loopCtx)
	for _, t := range s.tasks {
		g.Go(func() error {
			s.loop(gctx, t)
			return nil
		})
	}
	s.loops = g

	logging.Scheduler("started %d agents (max %d concurrent cycles)", len(s.tasks), s.limit())
	return nil
}

// Stop halts all timers, then waits for in-flight cycles for up to the
// shutdown grace period. Cycles still running after that are cancelled.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopLoops == nil {
		s.mu.Unlock()
		return nil
	}
	stopLoops, cancelCycles, loops := s.stopLoops, s.cancelCycles, s.loops
	s.stopLoops = nil
	s.mu.Unlock()

	stopLoops()
	_ = loops.Wait()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	grace := s.cfg.GetShutdownGrace()
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		cancelCycles()
		logging.Scheduler("all cycles drained")
		return nil
	case <-timer.C:
	}

	logging.SchedulerWarn("cycles still running after %v; cancelling", grace)
	cancelCycles()
	<-done
	return ErrShutdownTimeout
}

// Stats returns a snapshot of every task.
func (s *Scheduler) Stats() []TaskStats {
	out := make([]TaskStats, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		st := TaskStats{
			Handle:      t.entry.Runner.Handle(),
			Period:      t.entry.Period,
			Ticks:       t.ticks.Load(),
			Cycles:      t.cycles.Load(),
			Posted:      t.posted.Load(),
			Overlaps:    t.overlaps.Load(),
			Running:     t.running.Load(),
			LastOutcome: t.lastOutcome,
			LastRun:     t.lastRun,
		}
		t.mu.Unlock()
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) limit() int {
	if s.cfg.MaxConcurrentCycles < 1 {
		return 1
	}
	return s.cfg.MaxConcurrentCycles
}

func (s *Scheduler) loop(ctx context.Context, t *task) {
	handle := t.entry.Runner.Handle()
	logging.SchedulerDebug("%s: first cycle in %v, then every %v", handle, t.entry.InitialDelay, t.entry.Period)

	first := time.NewTimer(t.entry.InitialDelay)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
		s.tick(t)
	}

	ticker := time.NewTicker(t.entry.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(t)
		}
	}
}

// tick starts a cycle unless the previous one is still running.
func (s *Scheduler) tick(t *task) {
	t.ticks.Add(1)
	handle := t.entry.Runner.Handle()
	if !t.running.CompareAndSwap(false, true) {
		t.overlaps.Add(1)
		logging.SchedulerWarn("%s: previous cycle still running; skipping tick", handle)
		logging.Audit(logging.AuditEvent{Type: logging.AuditTickOverlap, Agent: handle})
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer t.running.Store(false)
		s.runCycle(t)
	}()
}

func (s *Scheduler) runCycle(t *task) {
	handle := t.entry.Runner.Handle()
	if err := s.sem.Acquire(s.cycleCtx, 1); err != nil {
		logging.SchedulerDebug("%s: cycle abandoned before start: %v", handle, err)
		return
	}
	defer s.sem.Release(1)

	ctx, cancel := context.WithTimeout(s.cycleCtx, s.cfg.GetCycleTimeout())
	defer cancel()

	res := t.entry.Runner.RunCycle(ctx)
	t.cycles.Add(1)
	if res.Posted() {
		t.posted.Add(1)
	}
	t.mu.Lock()
	t.lastOutcome = res.Outcome
	t.lastRun = time.Now()
	t.mu.Unlock()
	logging.SchedulerDebug("%s: cycle %s finished: %s", handle, res.Cycle, res.Outcome)
}
