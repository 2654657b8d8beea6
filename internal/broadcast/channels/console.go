// Package channels provides the built-in broadcast channel
// implementations: console, file, webhook, telegram, and sound. Each is an
// independent, swappable implementation of broadcast.Channel.
package channels

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MKWorldWide/MKronoSphere/internal/broadcast"
)

// Console writes one human-readable line per signal.
type Console struct {
	id   string
	prio int

	mu sync.Mutex
	w  io.Writer
}

func NewConsole(priority int, w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{id: "console", prio: priority, w: w}
}

func (c *Console) ID() string      { return c.id }
func (c *Console) Priority() int   { return c.prio }
func (c *Console) Available() bool { return c.w != nil }

func (c *Console) Broadcast(ctx context.Context, sig *broadcast.Signal) error {
	_ = ctx
	ev := sig.Event
	line := fmt.Sprintf("◉ %s [%s/p%d] %s",
		ev.Timestamp.Format(time.RFC3339), ev.Category, ev.Priority, ev.Description)
	if len(ev.Tags) > 0 {
		line += " #" + strings.Join(ev.Tags, " #")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, line)
	return err
}
