// Package syncer implements the synchronization half of the dispatch
// engine: target and strategy registries plus the executor that pushes
// event state to targets.
//
// Known limitation, kept on purpose: the per-call timeout races the
// strategy but does not cancel it. A timed-out strategy may still be
// running (and may still land its side effects) after the executor has
// reported failure and released its concurrency slot.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
	"github.com/MKWorldWide/MKronoSphere/internal/eventbus"
	"github.com/MKWorldWide/MKronoSphere/internal/gate"
	"github.com/MKWorldWide/MKronoSphere/internal/storage"
	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

type Config struct {
	// MaxConcurrent is the in-flight ceiling; a call over the ceiling
	// fails immediately with ReasonConcurrencyLimit (no queuing).
	MaxConcurrent int

	// Timeout bounds a single delivery attempt.
	Timeout time.Duration

	RetryEnabled   bool
	RetryMax       int
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	return c
}

// ScheduleHook lets the executor delegate schedule lifecycle to the
// scheduler without importing it. Attach errors abort target registration
// (an unparsable cron expression is a contract error, caught up front).
type ScheduleHook interface {
	Attach(t *Target) error
	Detach(targetID string)
}

// Executor runs deliveries against registered targets.
type Executor struct {
	mu  sync.Mutex
	cfg Config

	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store

	strategies *StrategyRegistry
	targets    *TargetRegistry
	slots      *gate.Gate

	hook ScheduleHook
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, store storage.Store) *Executor {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{
		cfg:        cfg,
		log:        log,
		bus:        bus,
		store:      store,
		strategies: NewStrategyRegistry(log),
		targets:    NewTargetRegistry(log),
		slots:      gate.New(cfg.MaxConcurrent),
	}
}

func (x *Executor) Strategies() *StrategyRegistry { return x.strategies }
func (x *Executor) Targets() *TargetRegistry      { return x.targets }

// InFlight reports the current in-flight delivery count.
func (x *Executor) InFlight() int { return x.slots.InFlight() }

func (x *Executor) SetScheduleHook(h ScheduleHook) {
	x.mu.Lock()
	x.hook = h
	x.mu.Unlock()
}

// Apply updates runtime tunables (config hot reload).
func (x *Executor) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	x.mu.Lock()
	x.cfg = cfg
	x.mu.Unlock()
	x.slots.Resize(cfg.MaxConcurrent)
}

func (x *Executor) snapshot() Config {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.cfg
}

// AddTarget registers a target and, when it carries a schedule descriptor,
// installs its recurring trigger. A schedule that fails to parse rejects
// the whole registration.
func (x *Executor) AddTarget(t *Target) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("target id is required")
	}
	x.targets.Add(t)

	x.mu.Lock()
	hook := x.hook
	x.mu.Unlock()
	if hook != nil && t.Schedule != nil {
		if err := hook.Attach(t); err != nil {
			x.targets.Remove(t.ID)
			return fmt.Errorf("attach schedule for %s: %w", t.ID, err)
		}
	}

	x.log.Info("target added", logx.String("target", t.ID), logx.String("category", string(t.Category)), logx.Bool("active", t.Active))
	if x.bus != nil {
		x.bus.Publish(eventbus.Event{Type: eventbus.TypeTargetAdded, Data: t})
	}
	return nil
}

// RemoveTarget de-registers a target and cancels its schedule. Removal is
// deterministic: once this returns, the trigger fires no more, even if it
// was already due.
func (x *Executor) RemoveTarget(id string) bool {
	t, ok := x.targets.Remove(id)
	if !ok {
		return false
	}

	x.mu.Lock()
	hook := x.hook
	x.mu.Unlock()
	if hook != nil {
		hook.Detach(id)
	}

	x.log.Info("target removed", logx.String("target", id))
	if x.bus != nil {
		x.bus.Publish(eventbus.Event{Type: eventbus.TypeTargetRemoved, Data: t})
	}
	return true
}

// SyncTarget delivers the (optional) event to one target.
//
// Guard order is fixed: unknown target is a caller error; an inactive
// target and a full concurrency gate are expected states reported as
// failed Results, never as errors.
func (x *Executor) SyncTarget(ctx context.Context, targetID string, ev *event.Event) (Result, error) {
	start := time.Now()

	t, ok := x.targets.Get(targetID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrTargetNotFound, targetID)
	}
	if !t.Active {
		return x.finish(ctx, Result{
			TargetID:  t.ID,
			Timestamp: time.Now(),
			Error:     ReasonInactive,
		}), nil
	}
	if !x.slots.TryAcquire() {
		return x.finish(ctx, Result{
			TargetID:  t.ID,
			Timestamp: time.Now(),
			Error:     ReasonConcurrencyLimit,
		}), nil
	}
	// Hard contract: the slot is released on every exit path below,
	// including caller errors, timeouts, and strategy panics.
	defer x.slots.Release()

	strat, ok := x.strategies.Resolve(t)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrNoStrategy, targetID)
	}

	cfg := x.snapshot()
	maxAttempts := 1
	if cfg.RetryEnabled {
		maxAttempts += cfg.RetryMax
	}

	var (
		meta     map[string]any
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		meta, lastErr = x.attempt(ctx, strat, t, ev, cfg.Timeout)
		if lastErr == nil {
			break
		}
		if attempt == maxAttempts {
			break
		}
		// Linear backoff: baseDelay * attemptNumber.
		select {
		case <-time.After(cfg.RetryBaseDelay * time.Duration(attempt)):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = maxAttempts
		}
	}

	res := Result{
		TargetID:  t.ID,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Attempts:  attempts,
		Metadata:  meta,
	}
	if lastErr == nil {
		res.Success = true
		x.targets.SetLastSync(t.ID, res.Timestamp)
	} else if maxAttempts > 1 && attempts == maxAttempts {
		res.Error = fmt.Sprintf("retries exhausted after %d attempts: %v", attempts, lastErr)
	} else {
		res.Error = lastErr.Error()
	}
	return x.finish(ctx, res), nil
}

// SyncAllTargets delivers to every active target in strict sequential
// chunks sized to the concurrency ceiling: chunk N+1 is issued only after
// chunk N has fully settled. Per-target errors are folded into failed
// Results so one bad target cannot abort the sweep.
func (x *Executor) SyncAllTargets(ctx context.Context, ev *event.Event) []Result {
	targets := x.targets.Active()
	chunk := x.snapshot().MaxConcurrent
	if chunk <= 0 {
		chunk = 1
	}

	results := make([]Result, 0, len(targets))
	for i := 0; i < len(targets); i += chunk {
		end := i + chunk
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[i:end]
		out := make([]Result, len(batch))

		var wg sync.WaitGroup
		for j, t := range batch {
			wg.Add(1)
			go func(j int, id string) {
				defer wg.Done()
				r, err := x.SyncTarget(ctx, id, ev)
				if err != nil {
					r = Result{TargetID: id, Timestamp: time.Now(), Error: err.Error(), Attempts: 0}
				}
				out[j] = r
			}(j, t.ID)
		}
		wg.Wait()
		results = append(results, out...)
	}
	return results
}

// attempt races one strategy execution against the per-call timeout.
// The loser of the race is not awaited further.
func (x *Executor) attempt(ctx context.Context, strat Strategy, t *Target, ev *event.Event, timeout time.Duration) (map[string]any, error) {
	type outcome struct {
		meta map[string]any
		err  error
	}
	// Buffered so the losing goroutine can complete without a receiver.
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("strategy panic: %v", r)}
			}
		}()
		m, err := strat.Execute(ctx, t, ev)
		ch <- outcome{meta: m, err: err}
	}()

	if timeout <= 0 {
		o := <-ch
		return o.meta, o.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case o := <-ch:
		return o.meta, o.err
	case <-timer.C:
		return nil, fmt.Errorf("timeout after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// finish logs, records, and publishes one produced result.
func (x *Executor) finish(ctx context.Context, res Result) Result {
	if res.Success {
		x.log.Info("sync completed",
			logx.String("target", res.TargetID),
			logx.Int("attempts", res.Attempts),
			logx.Duration("took", res.Duration))
	} else {
		x.log.Warn("sync failed",
			logx.String("target", res.TargetID),
			logx.String("reason", res.Error),
			logx.Int("attempts", res.Attempts))
	}

	if x.store != nil {
		// History is best-effort; a persistence hiccup must not fail a sync.
		if err := x.store.AppendSync(ctx, storage.SyncEntry{
			At:       res.Timestamp,
			TargetID: res.TargetID,
			Success:  res.Success,
			Error:    res.Error,
			Attempts: res.Attempts,
			TookMS:   res.Duration.Milliseconds(),
		}); err != nil {
			x.log.Debug("sync history write failed", logx.Err(err))
		}
	}
	if x.bus != nil {
		x.bus.Publish(eventbus.Event{Type: eventbus.TypeSyncCompleted, Data: res})
	}
	return res
}
