// Package event defines the temporal event model shared by the sync and
// broadcast executors. Events are produced upstream (the logging component)
// and are immutable once created; the engine only attaches engine-scoped
// metadata keys where a call explicitly documents it.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies an event's origin.
type Category string

const (
	CategoryHuman     Category = "human"
	CategoryCosmic    Category = "cosmic"
	CategoryFinancial Category = "financial"
	CategoryEnergetic Category = "energetic"
	CategorySystem    Category = "system"
)

// Priority scale runs 0..10.
const (
	PriorityDefault = 5 // mid-range
	PriorityMedium  = 5
	PriorityMedHigh = 7
	PriorityHigh    = 9
)

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryHuman, CategoryCosmic, CategoryFinancial, CategoryEnergetic, CategorySystem:
		return true
	}
	return false
}

// Event is a single timestamped occurrence.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Category    Category       `json:"category"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Description string         `json:"description,omitempty"`
	Priority    int            `json:"priority"`
}

// New creates an event with a fresh id, the current timestamp, and the
// default mid-range priority. Callers set tags/metadata on the returned
// value before handing it to the engine.
func New(cat Category, description string) *Event {
	return &Event{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Category:    cat,
		Description: description,
		Priority:    PriorityDefault,
	}
}

// HasTag reports whether the event carries the given tag.
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the event carries at least one of the tags.
func (e *Event) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if e.HasTag(t) {
			return true
		}
	}
	return false
}

// SetMeta attaches an engine-scoped metadata key. The metadata map is the
// one part of an event the engine is allowed to touch.
func (e *Event) SetMeta(key string, v any) {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	e.Metadata[key] = v
}
