package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
	"github.com/MKWorldWide/MKronoSphere/internal/syncer"
	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

// Marker is a sacred-time trigger point produced by the external
// calendar/astronomy collaborator. The engine reads only id, type, and the
// active flag.
type Marker struct {
	ID     string `json:"id"`
	Type   string `json:"type"` // e.g. "cosmic", "custom", "solar", "lunar"
	Active bool   `json:"active"`
}

// Marker types that trigger targets declaring no schedule conditions.
const (
	MarkerTypeCosmic = "cosmic"
	MarkerTypeCustom = "custom"
)

func (s *Scheduler) AddMarker(m Marker) {
	if m.ID == "" {
		return
	}
	s.mmu.Lock()
	if _, exists := s.markers[m.ID]; !exists {
		s.markerOrder = append(s.markerOrder, m.ID)
	}
	s.markers[m.ID] = m
	s.mmu.Unlock()
}

func (s *Scheduler) RemoveMarker(id string) {
	s.mmu.Lock()
	defer s.mmu.Unlock()
	if _, ok := s.markers[id]; !ok {
		return
	}
	delete(s.markers, id)
	for i, mid := range s.markerOrder {
		if mid == id {
			s.markerOrder = append(s.markerOrder[:i], s.markerOrder[i+1:]...)
			break
		}
	}
}

// Markers returns all markers in registration order.
func (s *Scheduler) Markers() []Marker {
	s.mmu.Lock()
	defer s.mmu.Unlock()
	out := make([]Marker, 0, len(s.markerOrder))
	for _, id := range s.markerOrder {
		out = append(out, s.markers[id])
	}
	return out
}

// TriggerSacredTime syncs every active target whose schedule conditions
// reference the marker's id or type. Targets without conditions default to
// firing for cosmic and custom markers.
//
// This path is deliberately sequential: sacred-time triggers are rare and
// the one-thing-at-a-time discipline matters more than throughput here.
// Per-target failures are folded into their Result; one bad target never
// stops the rest.
func (s *Scheduler) TriggerSacredTime(ctx context.Context, markerID string, ev *event.Event) ([]syncer.Result, error) {
	s.mmu.Lock()
	m, ok := s.markers[markerID]
	s.mmu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sacred marker not found: %q", markerID)
	}
	if !m.Active {
		s.log.Debug("sacred marker inactive, nothing to sync", logx.String("marker", m.ID))
		return nil, nil
	}

	var results []syncer.Result
	for _, t := range s.exec.Targets().Active() {
		if !markerMatches(t, m) {
			continue
		}
		r, err := s.exec.SyncTarget(ctx, t.ID, ev)
		if err != nil {
			r = syncer.Result{TargetID: t.ID, Timestamp: time.Now(), Error: err.Error()}
		}
		results = append(results, r)
	}
	s.log.Info("sacred time sync finished",
		logx.String("marker", m.ID),
		logx.String("type", m.Type),
		logx.Int("targets", len(results)))
	return results, nil
}

func markerMatches(t *syncer.Target, m Marker) bool {
	var conds []string
	if t.Schedule != nil {
		conds = t.Schedule.Conditions
	}
	if len(conds) == 0 {
		return m.Type == MarkerTypeCosmic || m.Type == MarkerTypeCustom
	}
	for _, c := range conds {
		if c == m.ID || c == m.Type {
			return true
		}
	}
	return false
}
