package syncer

import (
	"sync"
	"time"

	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

// StrategyRegistry holds delivery strategies keyed by id. Registration
// order is preserved because it is the documented tie-breaker when two
// applicable strategies carry the same priority.
type StrategyRegistry struct {
	mu    sync.RWMutex
	log   logx.Logger
	order []string
	byID  map[string]Strategy
}

func NewStrategyRegistry(log logx.Logger) *StrategyRegistry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &StrategyRegistry{log: log, byID: map[string]Strategy{}}
}

// Register stores the strategy. Last write wins for a reused id; the
// overwrite is logged rather than silent, and the original registration
// order slot is kept so resolution stays deterministic.
func (r *StrategyRegistry) Register(s Strategy) {
	if s == nil || s.ID() == "" {
		return
	}
	r.mu.Lock()
	if _, exists := r.byID[s.ID()]; exists {
		r.log.Warn("sync strategy overwritten", logx.String("strategy", s.ID()))
	} else {
		r.order = append(r.order, s.ID())
	}
	r.byID[s.ID()] = s
	r.mu.Unlock()
}

// Resolve returns the applicable strategy with the highest priority.
// Ties go to the strategy registered first.
func (r *StrategyRegistry) Resolve(t *Target) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Strategy
	for _, id := range r.order {
		s := r.byID[id]
		if s == nil || !s.CanHandle(t) {
			continue
		}
		// Strictly greater keeps the earliest registration on ties.
		if best == nil || s.Priority() > best.Priority() {
			best = s
		}
	}
	return best, best != nil
}

// IDs returns the registered strategy ids in registration order.
func (r *StrategyRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// TargetRegistry holds registered targets in insertion order. Ordering
// matters: SyncAllTargets chunks over this order and tests depend on it
// being reproducible.
type TargetRegistry struct {
	mu    sync.RWMutex
	log   logx.Logger
	order []string
	byID  map[string]*Target
}

func NewTargetRegistry(log logx.Logger) *TargetRegistry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TargetRegistry{log: log, byID: map[string]*Target{}}
}

// Add stores the target. Re-registering an id replaces the definition in
// place (with a logged notice) so the id stays unique in the registry.
func (r *TargetRegistry) Add(t *Target) {
	if t == nil || t.ID == "" {
		return
	}
	r.mu.Lock()
	if _, exists := r.byID[t.ID]; exists {
		r.log.Warn("sync target replaced", logx.String("target", t.ID))
	} else {
		r.order = append(r.order, t.ID)
	}
	r.byID[t.ID] = t
	r.mu.Unlock()
}

func (r *TargetRegistry) Remove(id string) (*Target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return t, true
}

func (r *TargetRegistry) Get(id string) (*Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// Active returns active targets in registration order.
func (r *TargetRegistry) Active() []*Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Target, 0, len(r.order))
	for _, id := range r.order {
		if t := r.byID[id]; t != nil && t.Active {
			out = append(out, t)
		}
	}
	return out
}

// All returns every target in registration order.
func (r *TargetRegistry) All() []*Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Target, 0, len(r.order))
	for _, id := range r.order {
		if t := r.byID[id]; t != nil {
			out = append(out, t)
		}
	}
	return out
}

// SetLastSync records the last successful sync time for a target.
func (r *TargetRegistry) SetLastSync(id string, at time.Time) {
	r.mu.Lock()
	if t, ok := r.byID[id]; ok {
		t.LastSync = at
	}
	r.mu.Unlock()
}

func (r *TargetRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
