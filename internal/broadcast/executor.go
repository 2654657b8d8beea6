// Package broadcast implements the rebroadcast half of the dispatch
// engine: a channel registry plus the executor that fans notable events
// out to every available channel.
//
// The same timeout caveat as the sync side applies: a channel that loses
// the timeout race is not cancelled and its side effects may still land
// after the executor has reported false for it.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
	"github.com/MKWorldWide/MKronoSphere/internal/eventbus"
	"github.com/MKWorldWide/MKronoSphere/internal/gate"
	"github.com/MKWorldWide/MKronoSphere/internal/storage"
	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

type Config struct {
	// MaxConcurrent caps in-flight broadcast calls; at the ceiling a
	// signal is dropped (empty mapping), never queued.
	MaxConcurrent int

	// Timeout bounds each individual channel attempt.
	Timeout time.Duration

	// RatePerSec throttles broadcast calls; 0 disables the limiter.
	// Over-rate signals are dropped, not delayed, matching the
	// non-blocking gate policy.
	RatePerSec int

	Filter Filter
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// Executor fans pulse signals out to registered channels.
type Executor struct {
	mu  sync.Mutex
	cfg Config

	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store

	channels *ChannelRegistry
	slots    *gate.Gate
	limiter  *rate.Limiter
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, store storage.Store) *Executor {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	x := &Executor{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		store:    store,
		channels: NewChannelRegistry(log),
		slots:    gate.New(cfg.MaxConcurrent),
	}
	if cfg.RatePerSec > 0 {
		x.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return x
}

func (x *Executor) Channels() *ChannelRegistry { return x.channels }

// InFlight reports the current in-flight broadcast count.
func (x *Executor) InFlight() int { return x.slots.InFlight() }

// RegisterChannel adds a channel and announces it on the bus.
func (x *Executor) RegisterChannel(c Channel) {
	if c == nil || c.ID() == "" {
		return
	}
	x.channels.Register(c)
	x.log.Info("broadcast channel registered", logx.String("channel", c.ID()), logx.Int("priority", c.Priority()))
	if x.bus != nil {
		x.bus.Publish(eventbus.Event{Type: eventbus.TypeChannelRegistered, Data: c.ID()})
	}
}

// Apply updates runtime tunables (config hot reload).
func (x *Executor) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	x.mu.Lock()
	x.cfg = cfg
	if cfg.RatePerSec > 0 {
		x.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	} else {
		x.limiter = nil
	}
	x.mu.Unlock()
	x.slots.Resize(cfg.MaxConcurrent)
}

func (x *Executor) snapshot() (Config, *rate.Limiter) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.cfg, x.limiter
}

// Broadcast fans the signal out to every currently available channel and
// returns the per-channel outcome mapping. The signal's status is set to
// delivered only when every invoked channel succeeded.
//
// Suppression (filter, rate, ceiling) returns an empty mapping without
// touching any channel.
func (x *Executor) Broadcast(ctx context.Context, sig *Signal) map[string]bool {
	results := map[string]bool{}
	if sig == nil || sig.Event == nil {
		return results
	}

	cfg, limiter := x.snapshot()

	// Single evaluate-once gate; channels are never consulted for a
	// suppressed signal.
	if !cfg.Filter.Allows(sig.Event) {
		x.log.Debug("signal suppressed by filter",
			logx.String("pulse", sig.ID),
			logx.Int("priority", sig.Event.Priority),
			logx.String("category", string(sig.Event.Category)))
		return results
	}
	if limiter != nil && !limiter.Allow() {
		x.log.Debug("signal dropped by rate limit", logx.String("pulse", sig.ID))
		return results
	}
	if !x.slots.TryAcquire() {
		x.log.Warn("signal dropped at concurrency ceiling",
			logx.String("pulse", sig.ID),
			logx.Int("ceiling", x.slots.Limit()))
		return results
	}
	defer x.slots.Release()

	start := time.Now()
	chans := x.channels.Available()

	var (
		wg sync.WaitGroup
		rm sync.Mutex
	)
	for _, c := range chans {
		wg.Add(1)
		go func(c Channel) {
			defer wg.Done()
			ok := x.runOne(ctx, c, sig, cfg.Timeout)
			rm.Lock()
			results[c.ID()] = ok
			rm.Unlock()
		}(c)
	}
	wg.Wait()

	// Aggregate: every invoked channel must have succeeded. Zero invoked
	// channels counts as (vacuously) delivered.
	delivered := true
	for _, ok := range results {
		if !ok {
			delivered = false
			break
		}
	}
	if delivered {
		sig.Status = StatusDelivered
	} else {
		sig.Status = StatusFailed
	}

	x.log.Info("broadcast completed",
		logx.String("pulse", sig.ID),
		logx.String("status", string(sig.Status)),
		logx.Int("channels", len(results)),
		logx.Duration("took", time.Since(start)))

	if x.store != nil {
		entry := storage.BroadcastEntry{
			At:       time.Now(),
			PulseID:  sig.ID,
			EventID:  sig.Event.ID,
			Status:   string(sig.Status),
			Channels: results,
		}
		if err := x.store.AppendBroadcast(ctx, entry); err != nil {
			x.log.Debug("broadcast history write failed", logx.Err(err))
		}
	}
	if x.bus != nil {
		x.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastCompleted, Data: Outcome{Signal: sig, Channels: results}})
	}
	return results
}

// Outcome is the payload published with a broadcast-completed notification.
type Outcome struct {
	Signal   *Signal
	Channels map[string]bool
}

// BroadcastEvent wraps the event in a fresh signal and broadcasts it.
func (x *Executor) BroadcastEvent(ctx context.Context, ev *event.Event, recipients []string) (*Signal, map[string]bool) {
	sig := NewSignal(ev, recipients)
	return sig, x.Broadcast(ctx, sig)
}

// BroadcastMessage synthesizes a minimal system event from free text and
// broadcasts it. Severity derives the priority: error is high, warning is
// medium-high, anything else mid-range.
func (x *Executor) BroadcastMessage(ctx context.Context, text, severity string, recipients []string) (*Signal, map[string]bool) {
	ev := event.New(event.CategorySystem, text)
	ev.Tags = []string{"message", severity}
	switch severity {
	case "error":
		ev.Priority = event.PriorityHigh
	case "warning", "warn":
		ev.Priority = event.PriorityMedHigh
	default:
		ev.Priority = event.PriorityMedium
	}
	return x.BroadcastEvent(ctx, ev, recipients)
}

// runOne races a single channel attempt against the per-channel timeout.
// A channel that errors, panics, or times out contributes false without
// disturbing its siblings.
func (x *Executor) runOne(ctx context.Context, c Channel, sig *Signal, timeout time.Duration) bool {
	// Buffered so the losing goroutine can finish without a receiver.
	ch := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- fmt.Errorf("channel panic: %v", r)
			}
		}()
		ch <- c.Broadcast(ctx, sig)
	}()

	var err error
	if timeout <= 0 {
		err = <-ch
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case err = <-ch:
		case <-timer.C:
			err = fmt.Errorf("timeout after %s", timeout)
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	if err != nil {
		x.log.Warn("channel broadcast failed",
			logx.String("channel", c.ID()),
			logx.String("pulse", sig.ID),
			logx.Err(err))
		return false
	}
	return true
}
