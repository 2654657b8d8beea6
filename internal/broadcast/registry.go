package broadcast

import (
	"sort"
	"sync"

	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

// ChannelRegistry holds broadcast channels keyed by id, preserving
// registration order so equal-priority channels fan out in a reproducible
// order.
type ChannelRegistry struct {
	mu    sync.RWMutex
	log   logx.Logger
	order []string
	byID  map[string]Channel
}

func NewChannelRegistry(log logx.Logger) *ChannelRegistry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ChannelRegistry{log: log, byID: map[string]Channel{}}
}

// Register stores the channel. Reusing an id replaces the previous channel
// with a logged notice.
func (r *ChannelRegistry) Register(c Channel) {
	if c == nil || c.ID() == "" {
		return
	}
	r.mu.Lock()
	if _, exists := r.byID[c.ID()]; exists {
		r.log.Warn("broadcast channel overwritten", logx.String("channel", c.ID()))
	} else {
		r.order = append(r.order, c.ID())
	}
	r.byID[c.ID()] = c
	r.mu.Unlock()
}

func (r *ChannelRegistry) Get(id string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

func (r *ChannelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Available returns the channels that report themselves available, sorted
// by descending priority (stable, so registration order breaks ties).
// Ordering has no effect on the concurrent fan-out outcome today, but it
// is the documented order should execution ever become sequential.
func (r *ChannelRegistry) Available() []Channel {
	r.mu.RLock()
	out := make([]Channel, 0, len(r.order))
	for _, id := range r.order {
		if c := r.byID[id]; c != nil && c.Available() {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}
