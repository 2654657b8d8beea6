package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures history persistence.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SyncEntry records the outcome of one sync call.
// Keep it compact and schema-stable.
type SyncEntry struct {
	At       time.Time `json:"at"`
	TargetID string    `json:"target_id"`
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
	Attempts int       `json:"attempts"`
	TookMS   int64     `json:"took_ms"`
}

// BroadcastEntry records one broadcast fan-out and its per-channel outcomes.
type BroadcastEntry struct {
	At       time.Time       `json:"at"`
	PulseID  string          `json:"pulse_id"`
	EventID  string          `json:"event_id,omitempty"`
	Status   string          `json:"status"`
	Channels map[string]bool `json:"channels,omitempty"`
}
