package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
	"github.com/MKWorldWide/MKronoSphere/internal/eventbus"
	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

// spyChannel records broadcasts and fails on command.
type spyChannel struct {
	id        string
	prio      int
	available bool
	err       error
	delay     time.Duration

	mu    sync.Mutex
	calls int
}

func newSpy(id string, prio int) *spyChannel {
	return &spyChannel{id: id, prio: prio, available: true}
}

func (c *spyChannel) ID() string      { return c.id }
func (c *spyChannel) Priority() int   { return c.prio }
func (c *spyChannel) Available() bool { return c.available }

func (c *spyChannel) Broadcast(ctx context.Context, sig *Signal) error {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.err
}

func (c *spyChannel) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func fastCfg() Config {
	return Config{MaxConcurrent: 4, Timeout: time.Second}
}

func newTestExecutor(cfg Config) *Executor {
	return New(cfg, logx.Nop(), nil, nil)
}

func TestBroadcastAllSucceed(t *testing.T) {
	x := newTestExecutor(fastCfg())
	a, b := newSpy("a", 1), newSpy("b", 2)
	x.RegisterChannel(a)
	x.RegisterChannel(b)

	sig := NewSignal(event.New(event.CategorySystem, "x"), nil)
	results := x.Broadcast(context.Background(), sig)

	if len(results) != 2 || !results["a"] || !results["b"] {
		t.Fatalf("results = %v", results)
	}
	if sig.Status != StatusDelivered {
		t.Fatalf("status = %q, want delivered", sig.Status)
	}
}

func TestBroadcastOneFailureMarksFailed(t *testing.T) {
	x := newTestExecutor(fastCfg())
	a, b, c := newSpy("a", 1), newSpy("b", 2), newSpy("c", 3)
	b.err = fmt.Errorf("sink broken")
	x.RegisterChannel(a)
	x.RegisterChannel(b)
	x.RegisterChannel(c)

	sig := NewSignal(event.New(event.CategorySystem, "x"), nil)
	results := x.Broadcast(context.Background(), sig)

	if len(results) != 3 {
		t.Fatalf("results = %v, want an entry per channel", results)
	}
	if !results["a"] || results["b"] || !results["c"] {
		t.Fatalf("results = %v", results)
	}
	if sig.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", sig.Status)
	}
}

func TestBroadcastZeroChannelsIsDelivered(t *testing.T) {
	x := newTestExecutor(fastCfg())
	sig := NewSignal(event.New(event.CategorySystem, "x"), nil)
	results := x.Broadcast(context.Background(), sig)
	if len(results) != 0 {
		t.Fatalf("results = %v", results)
	}
	if sig.Status != StatusDelivered {
		t.Fatalf("status = %q, zero channels is vacuously delivered", sig.Status)
	}
}

func TestBroadcastSkipsUnavailableChannels(t *testing.T) {
	x := newTestExecutor(fastCfg())
	up, down := newSpy("up", 1), newSpy("down", 9)
	down.available = false
	x.RegisterChannel(up)
	x.RegisterChannel(down)

	sig := NewSignal(event.New(event.CategorySystem, "x"), nil)
	results := x.Broadcast(context.Background(), sig)

	if _, ok := results["down"]; ok {
		t.Fatalf("unavailable channel must not appear in results: %v", results)
	}
	if down.callCount() != 0 {
		t.Fatalf("unavailable channel was invoked")
	}
	if sig.Status != StatusDelivered {
		t.Fatalf("status = %q", sig.Status)
	}
}

func TestBroadcastFilterSuppression(t *testing.T) {
	cfg := fastCfg()
	cfg.Filter = Filter{
		MinPriority:        7,
		RequiredTags:       []string{"alert"},
		ExcludedCategories: []event.Category{event.CategoryFinancial},
	}
	x := newTestExecutor(cfg)
	spy := newSpy("spy", 1)
	x.RegisterChannel(spy)

	mk := func(prio int, tags []string, cat event.Category) *Signal {
		ev := event.New(cat, "x")
		ev.Priority = prio
		ev.Tags = tags
		return NewSignal(ev, nil)
	}

	cases := []struct {
		name string
		sig  *Signal
		want bool
	}{
		{"passes", mk(8, []string{"alert"}, event.CategorySystem), true},
		{"below min priority", mk(6, []string{"alert"}, event.CategorySystem), false},
		{"missing required tag", mk(8, []string{"info"}, event.CategorySystem), false},
		{"excluded category", mk(8, []string{"alert"}, event.CategoryFinancial), false},
	}
	for _, tc := range cases {
		before := spy.callCount()
		results := x.Broadcast(context.Background(), tc.sig)
		invoked := spy.callCount() > before
		if invoked != tc.want {
			t.Errorf("%s: invoked = %v, want %v", tc.name, invoked, tc.want)
		}
		if !tc.want {
			if len(results) != 0 {
				t.Errorf("%s: suppressed signal returned results %v", tc.name, results)
			}
			if tc.sig.Status != StatusPending {
				t.Errorf("%s: suppressed signal status = %q, want pending", tc.name, tc.sig.Status)
			}
		}
	}
}

func TestBroadcastChannelTimeoutContributesFalse(t *testing.T) {
	cfg := fastCfg()
	cfg.Timeout = 20 * time.Millisecond
	x := newTestExecutor(cfg)
	slow := newSpy("slow", 1)
	slow.delay = 500 * time.Millisecond
	fast := newSpy("fast", 2)
	x.RegisterChannel(slow)
	x.RegisterChannel(fast)

	sig := NewSignal(event.New(event.CategorySystem, "x"), nil)
	results := x.Broadcast(context.Background(), sig)

	if results["slow"] || !results["fast"] {
		t.Fatalf("results = %v", results)
	}
	if sig.Status != StatusFailed {
		t.Fatalf("status = %q", sig.Status)
	}
}

func TestBroadcastRateLimitDrops(t *testing.T) {
	cfg := fastCfg()
	cfg.RatePerSec = 1
	x := newTestExecutor(cfg)
	spy := newSpy("spy", 1)
	x.RegisterChannel(spy)

	first := x.Broadcast(context.Background(), NewSignal(event.New(event.CategorySystem, "a"), nil))
	second := x.Broadcast(context.Background(), NewSignal(event.New(event.CategorySystem, "b"), nil))

	if len(first) != 1 {
		t.Fatalf("first broadcast should pass: %v", first)
	}
	if len(second) != 0 {
		t.Fatalf("second broadcast should be rate-dropped: %v", second)
	}
	if spy.callCount() != 1 {
		t.Fatalf("channel calls = %d, want 1", spy.callCount())
	}
}

func TestBroadcastMessageSeverityMapping(t *testing.T) {
	cases := []struct {
		severity string
		want     int
	}{
		{"error", event.PriorityHigh},
		{"warning", event.PriorityMedHigh},
		{"warn", event.PriorityMedHigh},
		{"info", event.PriorityMedium},
		{"", event.PriorityMedium},
	}
	for _, tc := range cases {
		x := newTestExecutor(fastCfg())
		spy := newSpy("spy", 1)
		x.RegisterChannel(spy)

		sig, results := x.BroadcastMessage(context.Background(), "the text", tc.severity, nil)
		if sig.Event.Priority != tc.want {
			t.Errorf("severity %q: priority = %d, want %d", tc.severity, sig.Event.Priority, tc.want)
		}
		if sig.Event.Category != event.CategorySystem || sig.Event.Description != "the text" {
			t.Errorf("severity %q: event = %+v", tc.severity, sig.Event)
		}
		if !sig.Event.HasTag("message") {
			t.Errorf("severity %q: missing message tag", tc.severity)
		}
		if !results["spy"] {
			t.Errorf("severity %q: results = %v", tc.severity, results)
		}
	}
}

func TestBroadcastCompletedNotification(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	x := New(fastCfg(), logx.Nop(), bus, nil)
	x.RegisterChannel(newSpy("a", 1))

	// Drain the channel-registered notification first.
	select {
	case e := <-ch:
		if e.Type != eventbus.TypeChannelRegistered || e.Data != "a" {
			t.Fatalf("unexpected first notification: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("no channel-registered notification")
	}

	sig, _ := x.BroadcastEvent(context.Background(), event.New(event.CategorySystem, "x"), nil)
	select {
	case e := <-ch:
		if e.Type != eventbus.TypeBroadcastCompleted {
			t.Fatalf("type = %q", e.Type)
		}
		out, ok := e.Data.(Outcome)
		if !ok || out.Signal.ID != sig.ID || !out.Channels["a"] {
			t.Fatalf("payload = %#v", e.Data)
		}
	case <-time.After(time.Second):
		t.Fatalf("no broadcast-completed notification")
	}
}

func TestAvailableOrdering(t *testing.T) {
	r := NewChannelRegistry(logx.Nop())
	r.Register(newSpy("low", 1))
	r.Register(newSpy("high", 9))
	tied := newSpy("tied", 9)
	r.Register(tied)
	down := newSpy("down", 10)
	down.available = false
	r.Register(down)

	got := r.Available()
	if len(got) != 3 {
		t.Fatalf("available = %d channels", len(got))
	}
	if got[0].ID() != "high" || got[1].ID() != "tied" || got[2].ID() != "low" {
		ids := []string{got[0].ID(), got[1].ID(), got[2].ID()}
		t.Fatalf("order = %v", ids)
	}
}
