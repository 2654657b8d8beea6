package channels

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MKWorldWide/MKronoSphere/internal/broadcast"
)

// File appends one JSON line per signal to a log file.
type File struct {
	id   string
	prio int
	path string

	mu sync.Mutex
}

func NewFile(priority int, path string) *File {
	return &File{id: "file", prio: priority, path: path}
}

func (f *File) ID() string    { return f.id }
func (f *File) Priority() int { return f.prio }

func (f *File) Available() bool { return strings.TrimSpace(f.path) != "" }

func (f *File) Broadcast(ctx context.Context, sig *broadcast.Signal) error {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer fh.Close()

	return json.NewEncoder(fh).Encode(struct {
		PulseID string `json:"pulse_id"`
		Event   any    `json:"event"`
	}{PulseID: sig.ID, Event: sig.Event})
}
