// Package scheduler attaches recurring cron triggers to sync targets and
// fires conditional syncs for sacred-time markers supplied by the
// calendar/astronomy collaborator.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MKWorldWide/MKronoSphere/internal/syncer"
	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

type Config struct {
	// Timezone is the default IANA zone for cron evaluation; per-target
	// schedule timezones override it via a CRON_TZ prefix.
	Timezone string
}

type schedDef struct {
	targetID string
	spec     string
}

// Scheduler owns one cron runner. Targets attach at registration time and
// detach deterministically: after Detach returns, the target's trigger
// cannot fire again, even if it was already due.
type Scheduler struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	exec   *syncer.Executor
	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location

	entries map[string]cron.EntryID
	defs    map[string]schedDef

	runCtx  context.Context
	started bool

	mmu         sync.Mutex
	markerOrder []string
	markers     map[string]Marker
}

func New(cfg Config, exec *syncer.Executor, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		cfg:  cfg,
		log:  log,
		exec: exec,
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]cron.EntryID{},
		defs:    map[string]schedDef{},
		markers: map[string]Marker{},
	}
	s.loc = s.loadLocation(cfg.Timezone)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	return s
}

func (s *Scheduler) loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.runCtx = ctx
	s.started = true
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
}

func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	c := s.c
	s.mu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// in-flight jobs continue in background
	}
	s.log.Info("scheduler stopped")
}

// Apply updates the default timezone. A change swaps in a fresh cron
// runner with every definition re-registered against the new location.
//
// The old runner is stopped and drained only after s.mu is released:
// its in-flight jobs run fire, which takes s.mu, so waiting on them
// under the lock would deadlock.
func (s *Scheduler) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if oldTZ == newTZ {
		s.mu.Unlock()
		return
	}

	old := s.c
	s.loc = s.loadLocation(newTZ)
	loc := s.loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	s.entries = map[string]cron.EntryID{}
	for id, d := range s.defs {
		entryID, err := s.addFuncLocked(d.spec, id)
		if err != nil {
			// The expression parsed at attach time; a failure here means
			// the definition predates a semantic change and is dropped
			// loudly.
			s.log.Error("schedule lost on restart", logx.String("target", id), logx.Err(err))
			delete(s.defs, id)
			continue
		}
		s.entries[id] = entryID
	}
	started := s.started
	if started {
		s.c.Start()
	}
	s.mu.Unlock()

	if started {
		<-old.Stop().Done()
	} else {
		old.Stop()
	}
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()))
}

// Attach installs the target's recurring trigger. An unparsable cron
// expression fails here, at registration time, never later at fire time.
func (s *Scheduler) Attach(t *syncer.Target) error {
	if t == nil || t.Schedule == nil {
		return errors.New("target has no schedule")
	}
	spec := strings.TrimSpace(t.Schedule.CronExpr)
	if spec == "" {
		return errors.New("schedule cron expression is empty")
	}
	if tz := strings.TrimSpace(t.Schedule.Timezone); tz != "" &&
		!strings.HasPrefix(spec, "TZ=") && !strings.HasPrefix(spec, "CRON_TZ=") {
		spec = "CRON_TZ=" + tz + " " + spec
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[t.ID]; ok {
		s.c.Remove(old)
	}
	entryID, err := s.addFuncLocked(spec, t.ID)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s.entries[t.ID] = entryID
	s.defs[t.ID] = schedDef{targetID: t.ID, spec: spec}
	s.log.Info("schedule attached", logx.String("target", t.ID), logx.String("spec", spec))
	return nil
}

func (s *Scheduler) addFuncLocked(spec, targetID string) (cron.EntryID, error) {
	return s.c.AddFunc(spec, func() { s.fire(targetID) })
}

// fire runs one scheduled sync. The membership check makes Detach
// deterministic: a job already dispatched by cron for a removed target
// becomes a no-op.
func (s *Scheduler) fire(targetID string) {
	s.mu.Lock()
	_, attached := s.entries[targetID]
	ctx := s.runCtx
	s.mu.Unlock()
	if !attached {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.exec.SyncTarget(ctx, targetID, nil); err != nil {
		s.log.Warn("scheduled sync failed", logx.String("target", targetID), logx.Err(err))
	}
}

// Detach removes the target's trigger.
func (s *Scheduler) Detach(targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[targetID]
	if !ok {
		return
	}
	delete(s.entries, targetID)
	delete(s.defs, targetID)
	s.c.Remove(id)
	s.log.Info("schedule detached", logx.String("target", targetID))
}

// Attached reports whether the target currently has a trigger installed.
func (s *Scheduler) Attached(targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[targetID]
	return ok
}
