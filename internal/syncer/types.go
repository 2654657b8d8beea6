package syncer

import (
	"errors"
	"time"
)

// Caller errors, surfaced to the direct caller of SyncTarget. Expected
// operating states (inactive target, concurrency ceiling) are NOT errors;
// they come back as failed Results.
var (
	ErrTargetNotFound = errors.New("sync target not found")
	ErrNoStrategy     = errors.New("no sync strategy for target")
)

// Failed-result error markers for expected states.
const (
	ReasonInactive         = "inactive"
	ReasonConcurrencyLimit = "concurrency-limit"
)

// TargetCategory classifies a delivery destination.
type TargetCategory string

const (
	TargetRepository TargetCategory = "repository"
	TargetAgent      TargetCategory = "agent"
	TargetSystem     TargetCategory = "system"
	TargetCustom     TargetCategory = "custom"
)

// Connection describes how a strategy reaches the target. The engine never
// validates URL syntax; the claiming strategy interprets the descriptor.
type Connection struct {
	Method string `json:"method"` // "http", "file", "websocket", "custom"
	URL    string `json:"url,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Schedule describes an optional recurring trigger for a target.
// Conditions name sacred-time markers (by id or type) that should also
// trigger the target; an empty list means the default marker rule applies.
type Schedule struct {
	CronExpr   string   `json:"cron_expr"`
	Timezone   string   `json:"timezone,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}

// Target is a registered delivery destination. The engine only reads
// target definitions; mutation belongs to the owning caller. LastSync is
// the one field the executor maintains.
type Target struct {
	ID         string         `json:"id"`
	Category   TargetCategory `json:"category"`
	Config     map[string]any `json:"config,omitempty"`
	Connection *Connection    `json:"connection,omitempty"`
	Schedule   *Schedule      `json:"schedule,omitempty"`
	Active     bool           `json:"active"`
	LastSync   time.Time      `json:"last_sync,omitzero"`
}

// Result is the outcome of one SyncTarget call. Retries fold into a single
// final Result (Attempts counts them); there is never one Result per
// attempt.
type Result struct {
	TargetID  string         `json:"target_id"`
	Success   bool           `json:"success"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Error     string         `json:"error,omitempty"`
	Attempts  int            `json:"attempts"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
