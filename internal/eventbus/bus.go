package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Notification types emitted by the engine. Subscribers are observers only;
// nothing they return or do can influence engine behavior.
const (
	TypeSyncCompleted      = "sync-completed"
	TypeBroadcastCompleted = "broadcast-completed"
	TypeTargetAdded        = "target-added"
	TypeTargetRemoved      = "target-removed"
	TypeChannelRegistered  = "channel-registered"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
// It does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, ch := range b.snapshot() {
		offer(ch, e)
	}
}

// snapshot copies the subscriber set so Publish never holds locks while
// sending.
func (b *memBus) snapshot() []chan Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	return chs
}

// offer delivers without blocking, dropping when the subscriber's buffer
// is full. A concurrent unsubscribe may close the channel mid-send, so
// the panic is swallowed.
func offer(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	id := b.seq.Add(1)
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// OnEvent runs fn for every published event until ctx is cancelled or stop
// is called. It is a convenience wrapper over Subscribe for callers that
// want a callback surface instead of a channel.
func OnEvent(ctx context.Context, b Bus, buffer int, fn func(Event)) (stop func()) {
	ch, unsub := b.Subscribe(buffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				fn(e)
			}
		}
	}()
	return func() {
		unsub()
		<-done
	}
}
