// Package gate provides the in-flight concurrency governor shared by the
// executors. Acquiring at capacity fails the caller immediately; it never
// blocks and never queues.
package gate

import "sync"

// Gate caps the number of simultaneously in-flight operations.
//
// Invariant: 0 <= InFlight() <= Limit() at all times. Release is mandatory
// on every exit path of an operation that acquired a slot.
type Gate struct {
	mu       sync.Mutex
	limit    int
	inFlight int
}

func New(limit int) *Gate {
	if limit <= 0 {
		limit = 1
	}
	return &Gate{limit: limit}
}

// TryAcquire takes a slot if one is free. It never blocks.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight >= g.limit {
		return false
	}
	g.inFlight++
	return true
}

// Release returns a slot. Extra releases are ignored so the count can
// never go negative.
func (g *Gate) Release() {
	g.mu.Lock()
	if g.inFlight > 0 {
		g.inFlight--
	}
	g.mu.Unlock()
}

func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

func (g *Gate) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}

// Resize changes the ceiling. Slots already in flight are unaffected; if
// the new limit is below the current in-flight count, acquisition simply
// stays closed until enough releases happen.
func (g *Gate) Resize(limit int) {
	if limit <= 0 {
		limit = 1
	}
	g.mu.Lock()
	g.limit = limit
	g.mu.Unlock()
}
