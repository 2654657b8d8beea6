package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
	"github.com/MKWorldWide/MKronoSphere/internal/syncer"
	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

// recorder counts strategy executions per target.
type recorder struct {
	mu   sync.Mutex
	runs map[string]int
}

func newRecorder() *recorder { return &recorder{runs: map[string]int{}} }

func (r *recorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}

func newHarness(t *testing.T) (*Scheduler, *syncer.Executor, *recorder) {
	t.Helper()
	rec := newRecorder()
	exec := syncer.New(syncer.Config{
		MaxConcurrent:  5,
		Timeout:        time.Second,
		RetryBaseDelay: time.Millisecond,
	}, logx.Nop(), nil, nil)
	exec.Strategies().Register(&syncer.FuncStrategy{
		Name: "record",
		Prio: 5,
		Can:  func(*syncer.Target) bool { return true },
		Run: func(_ context.Context, tg *syncer.Target, _ *event.Event) (map[string]any, error) {
			rec.mu.Lock()
			rec.runs[tg.ID]++
			rec.mu.Unlock()
			if strings.HasPrefix(tg.ID, "bad") {
				return nil, fmt.Errorf("delivery refused")
			}
			return nil, nil
		},
	})
	s := New(Config{Timezone: "UTC"}, exec, logx.Nop())
	exec.SetScheduleHook(s)
	return s, exec, rec
}

func TestAttachRejectsBadCron(t *testing.T) {
	s, _, _ := newHarness(t)
	err := s.Attach(&syncer.Target{ID: "t", Schedule: &syncer.Schedule{CronExpr: "not a cron"}})
	if err == nil || !strings.Contains(err.Error(), "parse schedule") {
		t.Fatalf("err = %v", err)
	}
	if s.Attached("t") {
		t.Fatalf("failed attach must leave no trigger")
	}

	if err := s.Attach(&syncer.Target{ID: "t"}); err == nil {
		t.Fatalf("nil schedule should be rejected")
	}
	if err := s.Attach(&syncer.Target{ID: "t", Schedule: &syncer.Schedule{}}); err == nil {
		t.Fatalf("empty cron expression should be rejected")
	}
}

func TestAttachAcceptsCommonSpecs(t *testing.T) {
	s, _, _ := newHarness(t)
	specs := []string{
		"0 0 * * *",     // 5-field
		"*/5 * * * * *", // 6-field with seconds
		"@hourly",       // descriptor
	}
	for i, spec := range specs {
		id := fmt.Sprintf("t%d", i)
		err := s.Attach(&syncer.Target{ID: id, Schedule: &syncer.Schedule{CronExpr: spec}})
		if err != nil {
			t.Fatalf("spec %q: %v", spec, err)
		}
		if !s.Attached(id) {
			t.Fatalf("spec %q: not attached", spec)
		}
	}
}

func TestAttachWithTargetTimezone(t *testing.T) {
	s, _, _ := newHarness(t)
	err := s.Attach(&syncer.Target{ID: "t", Schedule: &syncer.Schedule{
		CronExpr: "0 9 * * *",
		Timezone: "America/New_York",
	}})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	bad := s.Attach(&syncer.Target{ID: "u", Schedule: &syncer.Schedule{
		CronExpr: "0 9 * * *",
		Timezone: "Mars/Olympus",
	}})
	if bad == nil {
		t.Fatalf("unknown timezone should fail at attach time")
	}
}

func TestDetachIsDeterministic(t *testing.T) {
	s, _, _ := newHarness(t)
	if err := s.Attach(&syncer.Target{ID: "t", Schedule: &syncer.Schedule{CronExpr: "@hourly"}}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	s.Detach("t")
	if s.Attached("t") {
		t.Fatalf("detach should drop the trigger")
	}
	s.Detach("t") // idempotent
}

func TestScheduledFire(t *testing.T) {
	s, exec, rec := newHarness(t)
	exec.Targets().Add(&syncer.Target{ID: "t", Active: true})
	if err := s.Attach(&syncer.Target{ID: "t", Schedule: &syncer.Schedule{CronExpr: "* * * * * *"}}); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	deadline := time.After(3 * time.Second)
	for rec.count("t") == 0 {
		select {
		case <-deadline:
			t.Fatalf("per-second schedule never fired")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestDetachedTargetNeverFires(t *testing.T) {
	s, exec, rec := newHarness(t)
	exec.Targets().Add(&syncer.Target{ID: "t", Active: true})
	if err := s.Attach(&syncer.Target{ID: "t", Schedule: &syncer.Schedule{CronExpr: "* * * * * *"}}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	s.Detach("t")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	time.Sleep(1500 * time.Millisecond)
	if got := rec.count("t"); got != 0 {
		t.Fatalf("detached target fired %d times", got)
	}
}

func TestMarkerRegistry(t *testing.T) {
	s, _, _ := newHarness(t)
	s.AddMarker(Marker{ID: "solstice", Type: MarkerTypeCosmic, Active: true})
	s.AddMarker(Marker{ID: "audit", Type: MarkerTypeCustom, Active: false})
	s.AddMarker(Marker{ID: "solstice", Type: MarkerTypeCosmic, Active: false}) // replace in place
	s.AddMarker(Marker{})                                                      // ignored

	ms := s.Markers()
	if len(ms) != 2 || ms[0].ID != "solstice" || ms[1].ID != "audit" {
		t.Fatalf("markers = %+v", ms)
	}
	if ms[0].Active {
		t.Fatalf("replacement should win")
	}

	s.RemoveMarker("solstice")
	s.RemoveMarker("solstice")
	if got := s.Markers(); len(got) != 1 || got[0].ID != "audit" {
		t.Fatalf("markers after removal = %+v", got)
	}
}

func TestTriggerSacredTime(t *testing.T) {
	s, exec, rec := newHarness(t)

	// No conditions: fires for cosmic/custom markers by default.
	exec.Targets().Add(&syncer.Target{ID: "default", Active: true})
	// Conditions by marker id.
	exec.Targets().Add(&syncer.Target{ID: "by-id", Active: true,
		Schedule: &syncer.Schedule{Conditions: []string{"solstice"}}})
	// Conditions by marker type.
	exec.Targets().Add(&syncer.Target{ID: "by-type", Active: true,
		Schedule: &syncer.Schedule{Conditions: []string{"solar"}}})
	// Non-matching conditions.
	exec.Targets().Add(&syncer.Target{ID: "other", Active: true,
		Schedule: &syncer.Schedule{Conditions: []string{"lunar-eclipse"}}})
	// Matching but inactive target: skipped by the active sweep.
	exec.Targets().Add(&syncer.Target{ID: "asleep", Active: false})
	// Failing target folds into its result.
	exec.Targets().Add(&syncer.Target{ID: "bad-default", Active: true})

	s.AddMarker(Marker{ID: "solstice", Type: MarkerTypeCosmic, Active: true})

	results, err := s.TriggerSacredTime(context.Background(), "solstice", nil)
	if err != nil {
		t.Fatalf("TriggerSacredTime: %v", err)
	}
	want := []string{"default", "by-id", "bad-default"}
	if len(results) != len(want) {
		t.Fatalf("results = %+v", results)
	}
	for i, id := range want {
		if results[i].TargetID != id {
			t.Fatalf("result %d = %+v, want target %q", i, results[i], id)
		}
	}
	for _, id := range []string{"by-type", "other", "asleep"} {
		if rec.count(id) != 0 {
			t.Fatalf("target %q should not have run", id)
		}
	}
	for _, r := range results {
		if r.TargetID == "bad-default" && r.Success {
			t.Fatalf("failing target reported success")
		}
	}
}

func TestTriggerSacredTimeByType(t *testing.T) {
	s, exec, rec := newHarness(t)
	exec.Targets().Add(&syncer.Target{ID: "solar-obs", Active: true,
		Schedule: &syncer.Schedule{Conditions: []string{"solar"}}})

	s.AddMarker(Marker{ID: "dawn", Type: "solar", Active: true})
	results, err := s.TriggerSacredTime(context.Background(), "dawn", nil)
	if err != nil || len(results) != 1 || rec.count("solar-obs") != 1 {
		t.Fatalf("results = %+v, err = %v", results, err)
	}
}

func TestTriggerSacredTimeUnknownAndInactive(t *testing.T) {
	s, _, _ := newHarness(t)
	if _, err := s.TriggerSacredTime(context.Background(), "ghost", nil); err == nil {
		t.Fatalf("unknown marker should error")
	}

	s.AddMarker(Marker{ID: "dormant", Type: MarkerTypeCosmic, Active: false})
	results, err := s.TriggerSacredTime(context.Background(), "dormant", nil)
	if err != nil {
		t.Fatalf("inactive marker must not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("inactive marker should sync nothing: %+v", results)
	}
}

func TestApplyTimezoneChangeWhileFiring(t *testing.T) {
	s, exec, rec := newHarness(t)
	exec.Targets().Add(&syncer.Target{ID: "t", Active: true})
	if err := s.Attach(&syncer.Target{ID: "t", Schedule: &syncer.Schedule{CronExpr: "* * * * * *"}}); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	// Wait for the schedule to be live so the reload races real fires.
	deadline := time.After(3 * time.Second)
	for rec.count("t") == 0 {
		select {
		case <-deadline:
			t.Fatalf("per-second schedule never fired")
		case <-time.After(50 * time.Millisecond):
		}
	}

	// Apply waits for the old runner's in-flight jobs to drain; those
	// jobs take the scheduler lock, so Apply must not hold it meanwhile.
	done := make(chan struct{})
	go func() {
		s.Apply(Config{Timezone: "America/New_York"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Apply wedged during a timezone change with live schedules")
	}

	if !s.Attached("t") {
		t.Fatalf("schedule lost across the restart")
	}

	// The replacement runner keeps firing.
	before := rec.count("t")
	deadline = time.After(3 * time.Second)
	for rec.count("t") == before {
		select {
		case <-deadline:
			t.Fatalf("schedule stopped firing after the restart")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestApplyTimezoneChangeKeepsSchedules(t *testing.T) {
	s, _, _ := newHarness(t)
	if err := s.Attach(&syncer.Target{ID: "t", Schedule: &syncer.Schedule{CronExpr: "@daily"}}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	s.Apply(Config{Timezone: "America/Chicago"})
	if !s.Attached("t") {
		t.Fatalf("timezone change must re-register existing schedules")
	}
	// Same timezone again is a no-op.
	s.Apply(Config{Timezone: "America/Chicago"})
	if !s.Attached("t") {
		t.Fatalf("no-op apply dropped the schedule")
	}
}
