package channels

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/MKWorldWide/MKronoSphere/internal/broadcast"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
)

// Sound emits terminal bell cues; higher-priority events ring more bells.
// It is the only channel with no durable side effect.
type Sound struct {
	id   string
	prio int

	mu sync.Mutex
	w  io.Writer
}

func NewSound(priority int, w io.Writer) *Sound {
	if w == nil {
		w = os.Stdout
	}
	return &Sound{id: "sound", prio: priority, w: w}
}

func (s *Sound) ID() string      { return s.id }
func (s *Sound) Priority() int   { return s.prio }
func (s *Sound) Available() bool { return s.w != nil }

func (s *Sound) Broadcast(ctx context.Context, sig *broadcast.Signal) error {
	_ = ctx
	bells := 1
	switch {
	case sig.Event.Priority >= event.PriorityHigh:
		bells = 3
	case sig.Event.Priority >= event.PriorityMedHigh:
		bells = 2
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, strings.Repeat("\a", bells))
	return err
}
