// Package storage persists sync and broadcast history.
//
// This is observability history, not an outbox: the engine never replays
// entries, and losing them never affects delivery.
//
// Backends: "file" (JSON Lines, no dependencies) and "sqlite" (behind the
// `sqlite` build tag). Driver "none" (or empty) disables persistence.
package storage
