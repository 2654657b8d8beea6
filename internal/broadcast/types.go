package broadcast

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
)

// Status is the delivery state of a pulse signal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Signal is one broadcastable unit. Status is the only field mutated after
// creation, and only by the executor.
type Signal struct {
	ID         string       `json:"id"`
	Event      *event.Event `json:"event"`
	Recipients []string     `json:"recipients,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
	Status     Status       `json:"status"`
}

// NewSignal wraps an event for broadcast with a fresh pulse id.
func NewSignal(ev *event.Event, recipients []string) *Signal {
	return &Signal{
		ID:         uuid.NewString(),
		Event:      ev,
		Recipients: recipients,
		Timestamp:  time.Now(),
		Status:     StatusPending,
	}
}

// Channel is one pluggable broadcast sink (console, file, network, sound).
//
// Available is consulted per broadcast; a channel may inspect its
// environment to answer, the engine does not care how. Broadcast performs one
// attempt; a nil error counts as success in the result mapping.
type Channel interface {
	ID() string
	Priority() int
	Available() bool
	Broadcast(ctx context.Context, sig *Signal) error
}

// Filter is the evaluate-once suppression gate applied before any channel
// is consulted.
type Filter struct {
	MinPriority        int
	RequiredTags       []string
	ExcludedCategories []event.Category
}

// Allows reports whether the signal's event passes the gate.
func (f Filter) Allows(ev *event.Event) bool {
	if ev == nil {
		return false
	}
	if ev.Priority < f.MinPriority {
		return false
	}
	if len(f.RequiredTags) > 0 && !ev.HasAnyTag(f.RequiredTags) {
		return false
	}
	for _, c := range f.ExcludedCategories {
		if ev.Category == c {
			return false
		}
	}
	return true
}

// ParseCategories maps raw config strings to categories, dropping blanks.
func ParseCategories(raw []string) []event.Category {
	out := make([]event.Category, 0, len(raw))
	for _, r := range raw {
		c := event.Category(strings.ToLower(strings.TrimSpace(r)))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
